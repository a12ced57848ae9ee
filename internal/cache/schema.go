// Package cache provides the durable SQLite store for synced Readwise
// records and per-kind sync watermarks.
package cache

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS books (
	id                INTEGER PRIMARY KEY,
	title             TEXT NOT NULL DEFAULT '',
	author            TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL DEFAULT '',
	num_highlights    INTEGER NOT NULL DEFAULT 0,
	last_highlight_at DATETIME,
	updated           DATETIME,
	cover_image_url   TEXT NOT NULL DEFAULT '',
	highlights_url    TEXT NOT NULL DEFAULT '',
	source_url        TEXT NOT NULL DEFAULT '',
	asin              TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS highlights (
	id             INTEGER PRIMARY KEY,
	text           TEXT NOT NULL DEFAULT '',
	note           TEXT NOT NULL DEFAULT '',
	location       INTEGER NOT NULL DEFAULT 0,
	location_type  TEXT NOT NULL DEFAULT '',
	highlighted_at DATETIME,
	url            TEXT NOT NULL DEFAULT '',
	color          TEXT NOT NULL DEFAULT '',
	updated        DATETIME NOT NULL,
	book_id        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_highlights_book ON highlights(book_id);

CREATE TABLE IF NOT EXISTS documents (
	id               TEXT PRIMARY KEY,
	url              TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL DEFAULT '',
	author           TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL DEFAULT '',
	location         TEXT NOT NULL DEFAULT '',
	site_name        TEXT NOT NULL DEFAULT '',
	word_count       INTEGER,
	created_at       DATETIME,
	updated_at       DATETIME,
	published_date   DATETIME,
	summary          TEXT NOT NULL DEFAULT '',
	image_url        TEXT NOT NULL DEFAULT '',
	content          TEXT NOT NULL DEFAULT '',
	source_url       TEXT NOT NULL DEFAULT '',
	notes            TEXT NOT NULL DEFAULT '',
	parent_id        TEXT NOT NULL DEFAULT '',
	reading_progress REAL NOT NULL DEFAULT 0,
	first_opened_at  DATETIME,
	last_opened_at   DATETIME,
	saved_at         DATETIME,
	last_moved_at    DATETIME
);

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS book_tags (
	book_id INTEGER NOT NULL,
	tag_id  INTEGER NOT NULL,
	UNIQUE(book_id, tag_id)
);

CREATE TABLE IF NOT EXISTS highlight_tags (
	highlight_id INTEGER NOT NULL,
	tag_id       INTEGER NOT NULL,
	UNIQUE(highlight_id, tag_id)
);

CREATE TABLE IF NOT EXISTS sync_state (
	id                   INTEGER PRIMARY KEY CHECK (id = 1),
	books_synced_at      DATETIME,
	highlights_synced_at DATETIME,
	docs_synced_at       DATETIME
);
`

// DB wraps a sql.DB with cache-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
