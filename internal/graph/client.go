// Package graph wraps the Microsoft Graph mail and calendar REST API.
// Two parallel API revisions exist (v1.0 and beta); event creation tries the
// primary and falls back to the secondary.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	defaultBetaURL = "https://graph.microsoft.com/beta"

	requestTimeout = 30 * time.Second
)

// APIError is a provider error returned as a value so callers can tell
// "no results" apart from "could not fetch".
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph API error (status %d): %s", e.StatusCode, e.Message)
}

// IsPermissionError reports whether the error is an auth/consent failure the
// web surface should answer with a re-consent redirect.
func IsPermissionError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

type Client struct {
	baseURL    string
	betaURL    string
	httpClient *http.Client
}

func NewClient() *Client {
	return NewClientWithEndpoints(defaultBaseURL, defaultBetaURL)
}

// NewClientWithEndpoints exists so tests can point the client at a stub server.
func NewClientWithEndpoints(baseURL, betaURL string) *Client {
	return &Client{
		baseURL: baseURL,
		betaURL: betaURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// do performs an authenticated request and decodes a JSON response into out
// (when out is non-nil and the body is non-empty). Non-2xx responses come back
// as *APIError.
func (c *Client) do(ctx context.Context, accessToken, method, url string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiErrorFromResponse(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func apiErrorFromResponse(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: string(body)}

	var wrapped struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Code != "" {
		apiErr.Code = wrapped.Error.Code
		apiErr.Message = wrapped.Error.Message
	}
	return apiErr
}
