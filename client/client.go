// Package client talks to the statement backend over its REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmcleod/cardledger/metrics"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8000"
	DefaultTimeout = 30 * time.Second

	requestIDHeader = "X-Request-ID"
)

// Client is a backend API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client for baseURL (DefaultBaseURL when empty).
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "backend-client")
	return c
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func bearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}

// do sends req. Any status >= 400 is returned as *APIError with the body
// consumed. Only the path is logged; query strings may hold credentials.
func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && req.URL.RawQuery != "" {
			urlErr.URL = req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
		}
		c.metrics.ObserveRequest(op, err, time.Since(start))
		c.logger.Warn("backend request failed",
			"operation", op,
			"path", req.URL.Path,
			"request_id", req.Header.Get(requestIDHeader),
			"error", err)
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := readAPIError(resp)
		resp.Body.Close()
		c.metrics.ObserveRequest(op, apiErr, time.Since(start))
		c.logger.Info("backend request rejected",
			"operation", op,
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"request_id", req.Header.Get(requestIDHeader))
		return nil, apiErr
	}
	c.metrics.ObserveRequest(op, nil, time.Since(start))
	c.logger.Debug("backend request",
		"operation", op,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get(requestIDHeader),
		"elapsed", time.Since(start))
	return resp, nil
}

// doJSON sends req and decodes a JSON body into out (skipped when out is
// nil).
func (c *Client) doJSON(op string, req *http.Request, out any) error {
	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
