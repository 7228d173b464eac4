// Package crm is a thin HTTP client for the LingoDesk notification
// endpoints. It handles bearer authentication, the {"data": ...}
// response envelope, and bounded retry with exponential backoff on
// HTTP 429 and 5xx responses.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lingodesk/bellhop/internal/domain"
)

// ErrUnauthorized is returned when the session token is rejected.
var ErrUnauthorized = errors.New("crm: session token rejected")

// Client calls the CRM notification API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
}

// Config holds client configuration.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// NewClient creates a CRM client. BaseURL is the API root, e.g.
// https://crm.lingodesk.com/api/v1.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: cfg.MaxRetries,
	}
}

// ListParams filters a notification page fetch.
type ListParams struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

// ListNotifications fetches a page of notifications, newest first.
func (c *Client) ListNotifications(ctx context.Context, params ListParams) ([]domain.Notification, error) {
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if params.UnreadOnly {
		q.Set("unread_only", "true")
	}

	path := "/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var notifications []domain.Notification
	if err := c.do(ctx, http.MethodGet, path, nil, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// UnreadCount fetches the authoritative unread counter.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var result struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications/unread-count", nil, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// MarkRead acknowledges a single notification. Idempotent.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	path := "/notifications/" + url.PathEscape(id) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// MarkAllRead acknowledges every unread notification and returns the
// number affected. Idempotent.
func (c *Client) MarkAllRead(ctx context.Context) (int, error) {
	var result struct {
		Affected int `json:"affected"`
	}
	if err := c.do(ctx, http.MethodPost, "/notifications/read-all", nil, &result); err != nil {
		return 0, err
	}
	return result.Affected, nil
}

// Preferences fetches the user's notification settings.
func (c *Client) Preferences(ctx context.Context) (*domain.Preferences, error) {
	var prefs domain.Preferences
	if err := c.do(ctx, http.MethodGet, "/notifications/preferences", nil, &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// UpdatePreferences replaces the user's notification settings.
func (c *Client) UpdatePreferences(ctx context.Context, prefs domain.Preferences) error {
	return c.do(ctx, http.MethodPut, "/notifications/preferences", prefs, nil)
}

// envelope matches the CRM response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// do builds the request, handles auth, retries retryable statuses
// with exponential backoff, and unwraps the response envelope.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	fullURL := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoff(attempt)); err != nil {
				return err
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("read response body: %w", readErr)
		}

		if retryable(resp.StatusCode) {
			lastErr = fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return ErrUnauthorized
		}

		var env envelope
		if len(respBody) > 0 {
			if err := json.Unmarshal(respBody, &env); err != nil {
				return fmt.Errorf("decode response for %s %s: %w", method, path, err)
			}
		}

		if resp.StatusCode >= 400 {
			msg := http.StatusText(resp.StatusCode)
			if env.Error != nil && env.Error.Message != "" {
				msg = env.Error.Message
			}
			return fmt.Errorf("%s %s: %s (status %d)", method, path, msg, resp.StatusCode)
		}

		if result != nil {
			if len(env.Data) == 0 {
				return fmt.Errorf("%s %s: empty data in response", method, path)
			}
			if err := json.Unmarshal(env.Data, result); err != nil {
				return fmt.Errorf("decode data for %s %s: %w", method, path, err)
			}
		}
		return nil
	}

	return fmt.Errorf("%s %s: retries exhausted: %w", method, path, lastErr)
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// backoff returns exponential backoff capped at 5 seconds.
func backoff(attempt int) time.Duration {
	d := time.Duration(1<<(attempt-1)) * 250 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// sleep waits for duration or context cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
