package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rundownhq/rundown/internal/models"
)

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// Graph reports event times with seven fractional digits and no zone suffix.
var eventTimeLayouts = []string{
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseEventTime(value string) time.Time {
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

type eventRequest struct {
	Subject string `json:"subject"`
	Body    struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	Start                      graphDateTime `json:"start"`
	End                        graphDateTime `json:"end"`
	IsReminderOn               bool          `json:"isReminderOn"`
	ReminderMinutesBeforeStart int           `json:"reminderMinutesBeforeStart"`
}

type graphEvent struct {
	ID          string        `json:"id"`
	Subject     string        `json:"subject"`
	BodyPreview string        `json:"bodyPreview"`
	Start       graphDateTime `json:"start"`
	End         graphDateTime `json:"end"`
	WebLink     string        `json:"webLink"`
}

func translateEvent(raw graphEvent) models.EventSummary {
	return models.EventSummary{
		ID:          raw.ID,
		Title:       raw.Subject,
		Description: raw.BodyPreview,
		Start:       parseEventTime(raw.Start.DateTime),
		End:         parseEventTime(raw.End.DateTime),
		WebLink:     raw.WebLink,
	}
}

// CreateEvent creates a calendar event. The v1.0 endpoint is tried first and
// the beta endpoint second; the endpoints are an ordered strategy list, and
// the last failure is returned once both are exhausted.
func (c *Client) CreateEvent(ctx context.Context, accessToken string, event models.CalendarEvent) (*models.EventSummary, error) {
	req := eventRequest{
		Subject: event.Subject,
		Start: graphDateTime{
			DateTime: models.FormatLocal(event.Start),
			TimeZone: event.Timezone,
		},
		End: graphDateTime{
			DateTime: models.FormatLocal(event.End),
			TimeZone: event.Timezone,
		},
		IsReminderOn:               event.ReminderMinutes > 0,
		ReminderMinutesBeforeStart: event.ReminderMinutes,
	}
	req.Body.ContentType = "text"
	req.Body.Content = event.Description

	var lastErr error
	for _, endpoint := range []string{c.baseURL, c.betaURL} {
		var created graphEvent
		err := c.do(ctx, accessToken, http.MethodPost, endpoint+"/me/events", req, &created)
		if err == nil {
			summary := translateEvent(created)
			return &summary, nil
		}
		lastErr = err
		log.Warn().Str("endpoint", endpoint).Err(err).Msg("create event failed")
	}
	return nil, fmt.Errorf("create event: %w", lastErr)
}

// DeleteEvent deletes a calendar event. A missing event counts as success:
// the desired end state is "event gone" either way.
func (c *Client) DeleteEvent(ctx context.Context, accessToken, eventID string) error {
	deleteURL := fmt.Sprintf("%s/me/events/%s", c.baseURL, url.PathEscape(eventID))

	err := c.do(ctx, accessToken, http.MethodDelete, deleteURL, nil, nil)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("delete event: %w", err)
}

// ListUpcomingEvents returns events starting at or after now, soonest first.
func (c *Client) ListUpcomingEvents(ctx context.Context, accessToken string) ([]models.EventSummary, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	params := url.Values{
		"$filter":  {fmt.Sprintf("start/dateTime ge '%s'", now)},
		"$top":     {"10"},
		"$orderby": {"start/dateTime"},
		"$select":  {"id,subject,bodyPreview,start,end,webLink"},
	}
	listURL := c.baseURL + "/me/events?" + params.Encode()

	var listing struct {
		Value []graphEvent `json:"value"`
	}
	if err := c.do(ctx, accessToken, http.MethodGet, listURL, nil, &listing); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]models.EventSummary, 0, len(listing.Value))
	for _, raw := range listing.Value {
		events = append(events, translateEvent(raw))
	}
	return events, nil
}
