// Package readwise implements a streaming client for the Readwise
// highlight API (v2, offset pagination) and the Reader document API
// (v3, cursor pagination).
package readwise

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultBaseURL  = "https://readwise.io/api/v2"
	defaultListURL  = "https://readwise.io/api/v3/list"
	defaultPageSize = 1000

	// Pause between cursor pages; the Reader API asks for gentle pacing.
	defaultPageInterval = 3 * time.Second

	// Backoff applied when a 429 carries no usable Retry-After header.
	defaultRetryAfter = 5 * time.Second

	defaultTimeout = 30 * time.Second

	maxDetailLen = 512
)

// Client talks to the Readwise API. All fetch methods stream one page of
// records at a time so large libraries never sit in memory whole.
type Client struct {
	token        string
	baseURL      string
	listURL      string
	pageSize     int
	pageInterval time.Duration
	http         *http.Client
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the v2 API base URL (no trailing slash).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithListURL overrides the v3 document list URL.
func WithListURL(u string) Option {
	return func(c *Client) { c.listURL = u }
}

// WithPageSize sets the page_size parameter for offset pagination.
func WithPageSize(n int) Option {
	return func(c *Client) { c.pageSize = n }
}

// WithPageInterval sets the pause between cursor pages.
func WithPageInterval(d time.Duration) Option {
	return func(c *Client) { c.pageInterval = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Readwise client authenticating with the given token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:        token,
		baseURL:      defaultBaseURL,
		listURL:      defaultListURL,
		pageSize:     defaultPageSize,
		pageInterval: defaultPageInterval,
		http:         &http.Client{Timeout: defaultTimeout},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getPage fetches one API page. It retries 429 responses indefinitely,
// honouring the Retry-After header; every other failure is terminal.
func (c *Client) getPage(ctx context.Context, resource, url string) ([]byte, error) {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := retryAfter(resp)
			c.logger.Debug("rate limited, backing off",
				slog.String("resource", resource),
				slog.Duration("delay", delay))
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{
				Resource:   resource,
				StatusCode: resp.StatusCode,
				Detail:     truncate(string(body), maxDetailLen),
			}
		}
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}
		return body, nil
	}
}

// retryAfter reads the Retry-After header in seconds, falling back to
// the default when the header is absent or malformed.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
