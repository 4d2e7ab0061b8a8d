// Package client talks to a running termfocus server: REST calls for
// ingestion and actions, and a websocket for pushed render models.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/termfocus/termfocus/internal/session"
)

// StatusError is a non-2xx response. Message is the server's plain-text body.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Message)
}

// HTTPClient makes REST calls to the termfocus server.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:9876").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SendEvent posts an ingestion event and returns the server's confirmation,
// e.g. "registered 42".
func (c *HTTPClient) SendEvent(ctx context.Context, windowID, title, message string) (string, error) {
	body := map[string]string{
		"window_id":   windowID,
		"event_title": title,
		"event_msg":   message,
	}
	data, err := c.post(ctx, "/event", body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Sessions fetches /api/sessions.
func (c *HTTPClient) Sessions(ctx context.Context) (session.RenderModel, error) {
	var m session.RenderModel
	if err := c.get(ctx, "/api/sessions", &m); err != nil {
		return session.RenderModel{}, err
	}
	return m, nil
}

// Focus sends POST /api/sessions/{id}/focus.
func (c *HTTPClient) Focus(ctx context.Context, windowID string) error {
	_, err := c.post(ctx, sessionPath(windowID, "focus"), nil)
	return err
}

// MarkSeen sends POST /api/sessions/{id}/seen.
func (c *HTTPClient) MarkSeen(ctx context.Context, windowID string) error {
	_, err := c.post(ctx, sessionPath(windowID, "seen"), nil)
	return err
}

// MarkAllSeen sends POST /api/seen and returns how many flags were cleared.
func (c *HTTPClient) MarkAllSeen(ctx context.Context) (int, error) {
	data, err := c.post(ctx, "/api/seen", nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		Cleared int `json:"cleared"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("decode /api/seen: %w", err)
	}
	return out.Cleared, nil
}

func sessionPath(windowID, action string) string {
	return "/api/sessions/" + url.PathEscape(windowID) + "/" + action
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(req, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError(req, resp)
	}
	return io.ReadAll(resp.Body)
}

func statusError(req *http.Request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &StatusError{
		Method:  req.Method,
		Path:    req.URL.Path,
		Code:    resp.StatusCode,
		Message: strings.TrimSpace(string(body)),
	}
}
