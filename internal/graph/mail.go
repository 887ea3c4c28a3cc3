package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rundownhq/rundown/internal/models"
)

// graphMessage is the raw message shape returned by the provider. It is
// translated into models.Message at this boundary and never leaks upward.
type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	ReceivedDateTime string   `json:"receivedDateTime"`
	Categories       []string `json:"categories"`
}

func translateMessage(raw graphMessage) models.Message {
	bodyType := models.BodyTypeText
	if strings.EqualFold(raw.Body.ContentType, "html") {
		bodyType = models.BodyTypeHTML
	}

	received, err := time.Parse(time.RFC3339, raw.ReceivedDateTime)
	if err != nil {
		received = time.Time{}
	}

	return models.Message{
		ID:         raw.ID,
		Subject:    raw.Subject,
		Sender:     raw.From.EmailAddress.Address,
		Body:       raw.Body.Content,
		BodyType:   bodyType,
		ReceivedAt: received,
		Categories: raw.Categories,
	}
}

// EnsureCategory creates the named category in the user's master category
// list if it does not already exist, and returns the category name.
func (c *Client) EnsureCategory(ctx context.Context, accessToken, name string) (string, error) {
	categoriesURL := c.baseURL + "/me/outlook/masterCategories"

	var listing struct {
		Value []struct {
			DisplayName string `json:"displayName"`
		} `json:"value"`
	}
	if err := c.do(ctx, accessToken, http.MethodGet, categoriesURL, nil, &listing); err != nil {
		return "", fmt.Errorf("list categories: %w", err)
	}
	for _, category := range listing.Value {
		if category.DisplayName == name {
			return name, nil
		}
	}

	body := map[string]string{
		"displayName": name,
		"color":       "preset2",
	}
	var created struct {
		DisplayName string `json:"displayName"`
	}
	if err := c.do(ctx, accessToken, http.MethodPost, categoriesURL, body, &created); err != nil {
		return "", fmt.Errorf("create category: %w", err)
	}
	return created.DisplayName, nil
}

// ListRecentMessages returns inbox messages received at or after since, most
// recent first.
func (c *Client) ListRecentMessages(ctx context.Context, accessToken string, since time.Time) ([]models.Message, error) {
	params := url.Values{
		"$filter":  {fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339))},
		"$top":     {"50"},
		"$orderby": {"receivedDateTime desc"},
		"$select":  {"id,subject,from,receivedDateTime,body,categories"},
	}
	listURL := c.baseURL + "/me/mailFolders/inbox/messages?" + params.Encode()

	var listing struct {
		Value []graphMessage `json:"value"`
	}
	if err := c.do(ctx, accessToken, http.MethodGet, listURL, nil, &listing); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]models.Message, 0, len(listing.Value))
	for _, raw := range listing.Value {
		messages = append(messages, translateMessage(raw))
	}
	return messages, nil
}

// TagMessage adds a category to a message. The provider has no "add one
// category" primitive, so this reads the current set and writes back the full
// set. Tagging an already-tagged message is a no-op.
func (c *Client) TagMessage(ctx context.Context, accessToken, messageID, tag string) error {
	messageURL := fmt.Sprintf("%s/me/messages/%s?$select=categories", c.baseURL, url.PathEscape(messageID))

	var current struct {
		Categories []string `json:"categories"`
	}
	if err := c.do(ctx, accessToken, http.MethodGet, messageURL, nil, &current); err != nil {
		return fmt.Errorf("get message categories: %w", err)
	}

	for _, category := range current.Categories {
		if category == tag {
			return nil // already tagged
		}
	}

	patchURL := fmt.Sprintf("%s/me/messages/%s", c.baseURL, url.PathEscape(messageID))
	body := map[string][]string{
		"categories": append(current.Categories, tag),
	}
	if err := c.do(ctx, accessToken, http.MethodPatch, patchURL, body, nil); err != nil {
		return fmt.Errorf("patch message categories: %w", err)
	}
	return nil
}
