// Package client provides a Go client for a remote jobline instance,
// speaking the HTTP API plus the server-sent event stream.
//
// Usage:
//
//	c, err := client.New("https://jobs.example.com")
//	if err != nil { ... }
//
//	// Create a job and watch its events.
//	j, err := c.Create(ctx, job.Spec{Type: job.TypeSyncMeetings, Name: "sync"})
//	ch, err := c.WatchJob(ctx, j.ID)
//	for evt := range ch {
//	    fmt.Printf("%s: %s\n", evt.Type, evt.Data)
//	}
package client

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

	"github.com/jobline/jobline"
)

// Client talks to a remote jobline HTTP API.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. The default is
// http.DefaultClient; streaming callers typically want one without a
// global timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the jobline API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   http.DefaultClient,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// apiError is the wire shape of an API error response.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// do issues a JSON request and decodes the response into out (skipped if
// out is nil). Non-2xx responses are mapped back onto the jobline error
// taxonomy by their code, so errors.Is works across the wire.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("client: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var ae apiError
	if err := json.Unmarshal(raw, &ae); err != nil || ae.Error == "" {
		return fmt.Errorf("client: server returned %d: %s", resp.StatusCode, raw)
	}

	if sentinel := sentinelFor(ae.Code, resp.StatusCode); sentinel != nil {
		return fmt.Errorf("client: %s: %w", ae.Error, sentinel)
	}
	return fmt.Errorf("client: server returned %d (%s): %s", resp.StatusCode, ae.Code, ae.Error)
}

// sentinelFor maps the wire error code back to the local taxonomy.
// The status code disambiguates the shared "conflict"-class codes.
func sentinelFor(code string, status int) error {
	switch code {
	case "not_found":
		return jobline.ErrJobNotFound
	case "invalid_request":
		return jobline.ErrValidation
	case "retry_limit_exceeded":
		return jobline.ErrRetryLimitExceeded
	case "conflict":
		return jobline.ErrConflict
	case "upstream_unavailable":
		return jobline.ErrUpstreamUnavailable
	}
	if status == http.StatusNotFound {
		return jobline.ErrJobNotFound
	}
	return nil
}
