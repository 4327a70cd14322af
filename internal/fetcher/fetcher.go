// Package fetcher implements the HTTP feed fetcher.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrHTTPStatus marks a response with a non-2xx status code.
var ErrHTTPStatus = errors.New("unexpected HTTP status")

// Client fetches feed bodies over HTTP with a client-level timeout. It does
// not retry; retry policy belongs to the scheduler core.
type Client struct {
	http      *http.Client
	userAgent string
}

// Config holds the fetcher knobs.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// New creates a fetcher client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "castpipe/1.0"
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}
}

// Fetch retrieves the body at url. Connection failures, non-2xx statuses, and
// body-read failures surface as distinct errors.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d fetching %s", ErrHTTPStatus, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	return body, nil
}
