package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marginaliaapp/marginalia/internal/models"
)

// Store defines the cache operations the rest of the application depends
// on. Consumers should depend on this interface rather than the concrete
// *DB type to facilitate testing with mocks.
type Store interface {
	UpsertBooks(ctx context.Context, books []models.Book) error
	UpsertHighlights(ctx context.Context, highlights []models.Highlight) error
	UpsertDocs(ctx context.Context, docs []models.Doc) error
	Watermark(ctx context.Context, kind models.Kind) (*time.Time, error)
	SetWatermark(ctx context.Context, kind models.Kind, t time.Time) error
	Snapshot(ctx context.Context) (*models.Library, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// UpsertBooks inserts or updates a batch of books and their tags in a
// single transaction. Every column is overwritten with the incoming
// value; tag names are last-write-wins and tag associations are
// additive (existing pairs are never removed).
func (db *DB) UpsertBooks(ctx context.Context, books []models.Book) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO books (
			id, title, author, category, num_highlights,
			last_highlight_at, updated, cover_image_url,
			highlights_url, source_url, asin
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title             = excluded.title,
			author            = excluded.author,
			category          = excluded.category,
			num_highlights    = excluded.num_highlights,
			last_highlight_at = excluded.last_highlight_at,
			updated           = excluded.updated,
			cover_image_url   = excluded.cover_image_url,
			highlights_url    = excluded.highlights_url,
			source_url        = excluded.source_url,
			asin              = excluded.asin
	`)
	if err != nil {
		return fmt.Errorf("cache: prepare book upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range books {
		_, err := stmt.ExecContext(ctx,
			b.ID, b.Title, b.Author, b.Category, b.NumHighlights,
			b.LastHighlightAt, b.Updated, b.CoverImageURL,
			b.HighlightsURL, b.SourceURL, b.ASIN)
		if err != nil {
			return fmt.Errorf("cache: upsert book %d: %w", b.ID, err)
		}
		if err := upsertTags(ctx, tx, "book_tags", "book_id", b.ID, b.Tags); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpsertHighlights inserts or updates a batch of highlights and their
// tags in a single transaction.
func (db *DB) UpsertHighlights(ctx context.Context, highlights []models.Highlight) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO highlights (
			id, text, note, location, location_type,
			highlighted_at, url, color, updated, book_id
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text           = excluded.text,
			note           = excluded.note,
			location       = excluded.location,
			location_type  = excluded.location_type,
			highlighted_at = excluded.highlighted_at,
			url            = excluded.url,
			color          = excluded.color,
			updated        = excluded.updated,
			book_id        = excluded.book_id
	`)
	if err != nil {
		return fmt.Errorf("cache: prepare highlight upsert: %w", err)
	}
	defer stmt.Close()

	for _, h := range highlights {
		_, err := stmt.ExecContext(ctx,
			h.ID, h.Text, h.Note, h.Location, h.LocationType,
			h.HighlightedAt, h.URL, h.Color, h.Updated, h.BookID)
		if err != nil {
			return fmt.Errorf("cache: upsert highlight %d: %w", h.ID, err)
		}
		if err := upsertTags(ctx, tx, "highlight_tags", "highlight_id", h.ID, h.Tags); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpsertDocs inserts or updates a batch of Reader documents in a single
// transaction. Documents carry no tag associations.
func (db *DB) UpsertDocs(ctx context.Context, docs []models.Doc) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (
			id, url, title, author, source, category, location,
			site_name, word_count, created_at, updated_at,
			published_date, summary, image_url, content, source_url,
			notes, parent_id, reading_progress, first_opened_at,
			last_opened_at, saved_at, last_moved_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url              = excluded.url,
			title            = excluded.title,
			author           = excluded.author,
			source           = excluded.source,
			category         = excluded.category,
			location         = excluded.location,
			site_name        = excluded.site_name,
			word_count       = excluded.word_count,
			created_at       = excluded.created_at,
			updated_at       = excluded.updated_at,
			published_date   = excluded.published_date,
			summary          = excluded.summary,
			image_url        = excluded.image_url,
			content          = excluded.content,
			source_url       = excluded.source_url,
			notes            = excluded.notes,
			parent_id        = excluded.parent_id,
			reading_progress = excluded.reading_progress,
			first_opened_at  = excluded.first_opened_at,
			last_opened_at   = excluded.last_opened_at,
			saved_at         = excluded.saved_at,
			last_moved_at    = excluded.last_moved_at
	`)
	if err != nil {
		return fmt.Errorf("cache: prepare document upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		_, err := stmt.ExecContext(ctx,
			d.ID, d.URL, d.Title, d.Author, d.Source, d.Category, d.Location,
			d.SiteName, d.WordCount, d.CreatedAt, d.UpdatedAt,
			d.PublishedDate, d.Summary, d.ImageURL, d.Content, d.SourceURL,
			d.Notes, d.ParentID, d.ReadingProgress, d.FirstOpenedAt,
			d.LastOpenedAt, d.SavedAt, d.LastMovedAt)
		if err != nil {
			return fmt.Errorf("cache: upsert document %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// upsertTags writes the tag rows and association rows for one record
// within the surrounding transaction.
func upsertTags(ctx context.Context, tx *sql.Tx, joinTable, recordCol string, recordID int64, tags []models.Tag) error {
	for _, t := range tags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tags (id, name) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name
		`, t.ID, t.Name)
		if err != nil {
			return fmt.Errorf("cache: upsert tag %d: %w", t.ID, err)
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT OR IGNORE INTO %s (%s, tag_id) VALUES (?, ?)
		`, joinTable, recordCol), recordID, t.ID)
		if err != nil {
			return fmt.Errorf("cache: associate tag %d: %w", t.ID, err)
		}
	}
	return nil
}

// watermarkColumn maps a record kind to its sync_state column.
func watermarkColumn(kind models.Kind) (string, error) {
	switch kind {
	case models.KindBook:
		return "books_synced_at", nil
	case models.KindHighlight:
		return "highlights_synced_at", nil
	case models.KindDoc:
		return "docs_synced_at", nil
	}
	return "", fmt.Errorf("cache: unknown kind %q", kind)
}

// Watermark returns the last successful sync time for a kind, or nil if
// the kind has never been synced.
func (db *DB) Watermark(ctx context.Context, kind models.Kind) (*time.Time, error) {
	col, err := watermarkColumn(kind)
	if err != nil {
		return nil, err
	}
	var t sql.NullTime
	err = db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM sync_state WHERE id = 1`, col)).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read watermark %s: %w", kind, err)
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

// SetWatermark records the last successful sync time for a kind as an
// upsert on the singleton sync_state row.
func (db *DB) SetWatermark(ctx context.Context, kind models.Kind, t time.Time) error {
	col, err := watermarkColumn(kind)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO sync_state (id, %[1]s) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET %[1]s = excluded.%[1]s
	`, col), t)
	if err != nil {
		return fmt.Errorf("cache: set watermark %s: %w", kind, err)
	}
	return nil
}
