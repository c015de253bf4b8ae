// Package client is a Go client for the mountgate HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ahrav/mountgate/pkg/common/timeutil"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8080"

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"error"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("mountgate: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("mountgate: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsUnavailable reports whether err is a 503 from the service, meaning it
// is still starting.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable
}

// Status is the body of the probe and root endpoints.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CalculateRequest is the calculator input. An empty Operation means add.
type CalculateRequest struct {
	Num1      float64 `json:"num1"`
	Num2      float64 `json:"num2"`
	Operation string  `json:"operation,omitempty"`
}

// CalculateResponse is the calculator output.
type CalculateResponse struct {
	Result  float64 `json:"result"`
	Message string  `json:"message"`
}

// Client calls a mountgate service.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	clock   timeutil.Provider
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is used as is and
// the client itself is never modified.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithTimeout sets the per-request timeout. It applies regardless of its
// position relative to WithHTTPClient.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithClock replaces the time source used by WaitReady.
func WithClock(p timeutil.Provider) Option { return func(c *Client) { c.clock = p } }

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		clock: timeutil.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

// Ready calls the startup probe.
func (c *Client) Ready(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/ready", nil, &out)
	return out, err
}

// WaitReady polls the probe until it succeeds, making at most maxAttempts
// calls spaced by interval. Connection failures are retried like 503s since
// the service may not have bound its port yet. There is no wait after the
// final call.
func (c *Client) WaitReady(ctx context.Context, maxAttempts int, interval time.Duration) (Status, error) {
	maxAttempts = max(maxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		st, err := c.Ready(ctx)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Status{}, ctx.Err()
		}

		if attempt < maxAttempts {
			if err := timeutil.Sleep(ctx, c.clock, interval); err != nil {
				return Status{}, err
			}
		}
	}
	return Status{}, fmt.Errorf("service not ready after %d attempts: %w", maxAttempts, lastErr)
}

// Info calls the root endpoint.
func (c *Client) Info(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/", nil, &out)
	return out, err
}

// Calculate calls the calculator tool.
func (c *Client) Calculate(ctx context.Context, req CalculateRequest) (CalculateResponse, error) {
	var out CalculateResponse
	err := c.do(ctx, http.MethodPost, "/api/calculator", req, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
