package readwise

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/marginaliaapp/marginalia/internal/models"
)

// Books streams the book list one page at a time. A nil since fetches
// everything; otherwise only books updated after since are returned.
// The walk is not restartable; each call starts from the first page.
func (c *Client) Books(ctx context.Context, since *time.Time) iter.Seq2[[]models.Book, error] {
	return offsetPages(c, ctx, "books", since, wireBook.toModel)
}

// Highlights streams the highlight list one page at a time.
func (c *Client) Highlights(ctx context.Context, since *time.Time) iter.Seq2[[]models.Highlight, error] {
	return offsetPages(c, ctx, "highlights", since, wireHighlight.toModel)
}

// offsetPages walks v2 offset pagination: the first URL carries the page
// size and optional updated__gt filter, every later page is reached via
// the absolute next URL from the response, followed verbatim.
func offsetPages[W, M any](c *Client, ctx context.Context, resource string, since *time.Time, conv func(W) M) iter.Seq2[[]M, error] {
	first := fmt.Sprintf("%s/%s?%s", c.baseURL, resource, func() string {
		q := url.Values{}
		q.Set("page_size", fmt.Sprint(c.pageSize))
		if since != nil {
			q.Set("updated__gt", since.Format(time.RFC3339))
		}
		return q.Encode()
	}())

	c.logger.Info("starting fetch",
		slog.String("resource", resource),
		slog.Any("since", since))

	return func(yield func([]M, error) bool) {
		next := &first
		for next != nil {
			if ctx.Err() != nil {
				return
			}

			body, err := c.getPage(ctx, resource, *next)
			if err != nil {
				yield(nil, fmt.Errorf("readwise: fetch %s: %w", resource, err))
				return
			}

			var page collectionResponse[W]
			if err := json.Unmarshal(body, &page); err != nil {
				yield(nil, fmt.Errorf("readwise: decode %s page: %w", resource, err))
				return
			}

			c.logger.Debug("received page",
				slog.String("resource", resource),
				slog.Int64("count", page.Count),
				slog.Int("results", len(page.Results)))

			batch := make([]M, 0, len(page.Results))
			for _, w := range page.Results {
				batch = append(batch, conv(w))
			}
			if !yield(batch, nil) {
				return
			}

			next = page.Next
		}
	}
}

// Docs streams Reader documents via v3 cursor pagination. location
// optionally restricts results to one Reader location ("new", "later",
// "archive", "feed"). Consecutive pages are paced by the client's page
// interval; the first page is fetched immediately.
func (c *Client) Docs(ctx context.Context, since *time.Time, location string) iter.Seq2[[]models.Doc, error] {
	c.logger.Info("starting fetch",
		slog.String("resource", "documents"),
		slog.Any("since", since))

	pacer := rate.NewLimiter(rate.Every(c.pageInterval), 1)

	return func(yield func([]models.Doc, error) bool) {
		var cursor *string
		for {
			if err := pacer.Wait(ctx); err != nil {
				return
			}

			q := url.Values{}
			if cursor != nil {
				q.Set("pageCursor", *cursor)
			}
			if since != nil {
				q.Set("updatedAfter", since.Format(time.RFC3339))
			}
			if location != "" {
				q.Set("location", location)
			}

			body, err := c.getPage(ctx, "documents", c.listURL+"?"+q.Encode())
			if err != nil {
				yield(nil, fmt.Errorf("readwise: fetch documents: %w", err))
				return
			}

			var page listResponse
			if err := json.Unmarshal(body, &page); err != nil {
				yield(nil, fmt.Errorf("readwise: decode documents page: %w", err))
				return
			}

			c.logger.Debug("received page",
				slog.String("resource", "documents"),
				slog.Int("results", len(page.Results)))

			batch := make([]models.Doc, 0, len(page.Results))
			for _, w := range page.Results {
				batch = append(batch, w.toModel())
			}
			if !yield(batch, nil) {
				return
			}

			if page.NextPageCursor == nil {
				return
			}
			cursor = page.NextPageCursor
		}
	}
}
