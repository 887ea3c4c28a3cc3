// Package genai extracts calendar events from message text with a generative
// model. Extraction is best-effort: any call or parse failure means zero
// events, never a user-visible error.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rundownhq/rundown/internal/models"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// maxBodyChars caps how much of the message body goes into the prompt to
	// bound cost and latency.
	maxBodyChars = 1000

	requestTimeout = 120 * time.Second
)

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, model string) *Client {
	return NewClientWithBaseURL(apiKey, model, defaultBaseURL)
}

// NewClientWithBaseURL exists so tests can point the client at a stub server.
func NewClientWithBaseURL(apiKey, model, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// extractionResult is the JSON shape the prompt asks the model to answer with.
type extractionResult struct {
	HasEvents bool                    `json:"has_events"`
	Events    []models.ExtractedEvent `json:"events"`
}

// Extract asks the model for events mentioned in the message. It returns zero
// events when the model finds none, when the call fails, and when the reply
// cannot be parsed; all three look the same to the caller.
func (c *Client) Extract(ctx context.Context, subject, body string) []models.ExtractedEvent {
	if c.apiKey == "" {
		return nil
	}

	content, err := c.generate(ctx, c.buildPrompt(subject, body))
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("event extraction call failed")
		return nil
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(cleanJSONResponse(content)), &result); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("event extraction reply was not valid JSON")
		return nil
	}

	if !result.HasEvents {
		return nil
	}

	// Drop entries the model returned without a date; there is nothing to
	// schedule from them.
	events := make([]models.ExtractedEvent, 0, len(result.Events))
	for _, ev := range result.Events {
		if ev.Date == "" {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// generate performs one synchronous completion call and returns the model's
// text reply.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"contents": []map[string]any{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse API response: %w", err)
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from model")
	}
	return apiResp.Candidates[0].Content.Parts[0].Text, nil
}

// cleanJSONResponse removes markdown code fences and surrounding prose from
// the model reply by extracting the outermost JSON object.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx == -1 || endIdx == -1 || startIdx > endIdx {
		// No JSON object found; return as is and let the parser fail.
		return content
	}
	return strings.TrimSpace(content[startIdx : endIdx+1])
}

// buildPrompt builds the extraction instruction for one message.
func (c *Client) buildPrompt(subject, body string) string {
	return fmt.Sprintf(`You are an assistant that extracts calendar events from emails.

Analyze the email below and return a STRICT JSON object:

{
  "has_events": true/false,
  "events": [
    {
      "title": "short event title",
      "date": "YYYY-MM-DD",
      "time": "HH:MM",
      "description": "one-sentence description"
    }
  ]
}

### RULES
- Output ONLY the JSON object, no explanations.
- Extract only concrete, real dates that appear in the email. Never invent
  hypothetical dates and never output relative phrases like "tomorrow" or
  "next Friday"; convert them to actual calendar dates only when the email
  itself states the absolute date.
- If no time is specified for an event, use "09:00".
- If the email mentions no events, return {"has_events": false, "events": []}.

### EMAIL

Subject: %s

%s`, subject, truncate(body, maxBodyChars))
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
