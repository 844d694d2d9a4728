package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// healthTTL bounds how long a successful health response is reused.
const healthTTL = 5 * time.Minute

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used by the health cache.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithStreamTimeout bounds streaming chats. Zero leaves them unbounded.
func WithStreamTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.streamClient.Timeout = timeout
	}
}

// Client talks to the Another Me REST API.
type Client struct {
	// baseURL is the versioned API root without a trailing slash.
	baseURL string
	// apiKey is sent as a bearer token, if provided.
	apiKey string
	// httpClient executes regular requests with a timeout.
	httpClient *http.Client
	// streamClient executes streaming chats, which may outlive the regular timeout.
	streamClient *http.Client
	logger       *slog.Logger
	now          func() time.Time

	healthMu sync.Mutex
	health   *HealthResponse
	healthAt time.Time
}

// NewClient constructs a client for baseURL with timeout applied to
// non-streaming requests.
func NewClient(baseURL string, apiKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		logger:       slog.New(slog.DiscardHandler),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL reports the API root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// endpoint joins path and optional query parameters onto the base URL.
func (c *Client) endpoint(path string, query url.Values) string {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// newRequest builds a request with the shared headers applied.
func (c *Client) newRequest(ctx context.Context, method string, target string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// send executes req and returns the raw body of a 2xx response.
func (c *Client) send(client *http.Client, req *http.Request) ([]byte, error) {
	started := c.now()
	resp, err := client.Do(req)
	if err != nil {
		c.logger.Debug("api request failed", "method", req.Method, "url", req.URL.Path, "error", err)
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ctxErr)
		}
		return nil, &NetworkError{Op: req.Method + " " + req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "read " + req.URL.Path, Err: err}
	}
	c.logger.Debug("api request",
		"method", req.Method,
		"url", req.URL.Path,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", c.now().Sub(started),
	)

	// Non-2xx responses return a structured API error for status handling.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// doJSON sends payload (when non-nil) as JSON and decodes the response into out
// (when non-nil).
func (c *Client) doJSON(ctx context.Context, method string, path string, query url.Values, payload any, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := c.newRequest(ctx, method, c.endpoint(path, query), body, contentType)
	if err != nil {
		return err
	}
	raw, err := c.send(c.httpClient, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}

// getRaw returns the response body of a GET without decoding it.
func (c *Client) getRaw(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint(path, query), nil, "")
	if err != nil {
		return nil, err
	}
	return c.send(c.httpClient, req)
}

// Health returns the backend status, reusing a successful answer for five minutes.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	c.healthMu.Lock()
	if c.health != nil && c.now().Sub(c.healthAt) < healthTTL {
		cached := *c.health
		c.healthMu.Unlock()
		return &cached, nil
	}
	c.healthMu.Unlock()

	var health HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, nil, &health); err != nil {
		return nil, err
	}

	c.healthMu.Lock()
	c.health = &health
	c.healthAt = c.now()
	c.healthMu.Unlock()

	result := health
	return &result, nil
}

// HealthResponse reports backend liveness.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}
