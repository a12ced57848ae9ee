package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marginaliaapp/marginalia/internal/models"
)

// Snapshot materialises the whole cache as an immutable read model:
// every book (with resolved tags), every highlight (with resolved tags)
// and every document, ordered by id. UpdatedAt is the newest of the
// per-kind watermarks, or the current time when nothing has synced yet.
func (db *DB) Snapshot(ctx context.Context) (*models.Library, error) {
	books, err := db.allBooks(ctx)
	if err != nil {
		return nil, err
	}
	highlights, err := db.allHighlights(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := db.allDocs(ctx)
	if err != nil {
		return nil, err
	}

	bookTags, err := db.tagsByRecord(ctx, "book_tags", "book_id")
	if err != nil {
		return nil, err
	}
	for i := range books {
		books[i].Tags = bookTags[books[i].ID]
	}
	highlightTags, err := db.tagsByRecord(ctx, "highlight_tags", "highlight_id")
	if err != nil {
		return nil, err
	}
	for i := range highlights {
		highlights[i].Tags = highlightTags[highlights[i].ID]
	}

	asOf := time.Now()
	var newest time.Time
	for _, kind := range models.AllKinds() {
		wm, err := db.Watermark(ctx, kind)
		if err != nil {
			return nil, err
		}
		if wm != nil && wm.After(newest) {
			newest = *wm
		}
	}
	if !newest.IsZero() {
		asOf = newest
	}

	return &models.Library{
		Books:      books,
		Highlights: highlights,
		Docs:       docs,
		UpdatedAt:  asOf,
	}, nil
}

func (db *DB) allBooks(ctx context.Context) ([]models.Book, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, author, category, num_highlights,
		       last_highlight_at, updated, cover_image_url,
		       highlights_url, source_url, asin
		FROM books ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("cache: query books: %w", err)
	}
	defer rows.Close()

	var out []models.Book
	for rows.Next() {
		var b models.Book
		var lastHighlightAt, updated sql.NullTime
		err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Category,
			&b.NumHighlights, &lastHighlightAt, &updated, &b.CoverImageURL,
			&b.HighlightsURL, &b.SourceURL, &b.ASIN)
		if err != nil {
			return nil, fmt.Errorf("cache: scan book: %w", err)
		}
		b.LastHighlightAt = timePtr(lastHighlightAt)
		b.Updated = timePtr(updated)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (db *DB) allHighlights(ctx context.Context) ([]models.Highlight, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, text, note, location, location_type,
		       highlighted_at, url, color, updated, book_id
		FROM highlights ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("cache: query highlights: %w", err)
	}
	defer rows.Close()

	var out []models.Highlight
	for rows.Next() {
		var h models.Highlight
		var highlightedAt sql.NullTime
		err := rows.Scan(&h.ID, &h.Text, &h.Note, &h.Location, &h.LocationType,
			&highlightedAt, &h.URL, &h.Color, &h.Updated, &h.BookID)
		if err != nil {
			return nil, fmt.Errorf("cache: scan highlight: %w", err)
		}
		h.HighlightedAt = timePtr(highlightedAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (db *DB) allDocs(ctx context.Context) ([]models.Doc, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, url, title, author, source, category, location,
		       site_name, word_count, created_at, updated_at,
		       published_date, summary, image_url, content, source_url,
		       notes, parent_id, reading_progress, first_opened_at,
		       last_opened_at, saved_at, last_moved_at
		FROM documents ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("cache: query documents: %w", err)
	}
	defer rows.Close()

	var out []models.Doc
	for rows.Next() {
		var d models.Doc
		var wordCount sql.NullInt64
		var createdAt, updatedAt, publishedDate sql.NullTime
		var firstOpenedAt, lastOpenedAt, savedAt, lastMovedAt sql.NullTime
		err := rows.Scan(&d.ID, &d.URL, &d.Title, &d.Author, &d.Source,
			&d.Category, &d.Location, &d.SiteName, &wordCount,
			&createdAt, &updatedAt, &publishedDate, &d.Summary,
			&d.ImageURL, &d.Content, &d.SourceURL, &d.Notes, &d.ParentID,
			&d.ReadingProgress, &firstOpenedAt, &lastOpenedAt,
			&savedAt, &lastMovedAt)
		if err != nil {
			return nil, fmt.Errorf("cache: scan document: %w", err)
		}
		if wordCount.Valid {
			d.WordCount = &wordCount.Int64
		}
		d.CreatedAt = timeVal(createdAt)
		d.UpdatedAt = timeVal(updatedAt)
		d.PublishedDate = timePtr(publishedDate)
		d.FirstOpenedAt = timePtr(firstOpenedAt)
		d.LastOpenedAt = timePtr(lastOpenedAt)
		d.SavedAt = timeVal(savedAt)
		d.LastMovedAt = timeVal(lastMovedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// tagsByRecord loads every tag association from one join table, keyed by
// record id.
func (db *DB) tagsByRecord(ctx context.Context, joinTable, recordCol string) (map[int64][]models.Tag, error) {
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT j.%s, t.id, t.name
		FROM %s j JOIN tags t ON t.id = j.tag_id
		ORDER BY t.id
	`, recordCol, joinTable))
	if err != nil {
		return nil, fmt.Errorf("cache: query %s: %w", joinTable, err)
	}
	defer rows.Close()

	out := make(map[int64][]models.Tag)
	for rows.Next() {
		var recordID int64
		var t models.Tag
		if err := rows.Scan(&recordID, &t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("cache: scan %s: %w", joinTable, err)
		}
		out[recordID] = append(out[recordID], t)
	}
	return out, rows.Err()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	tt := t.Time
	return &tt
}

func timeVal(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
