// Package models defines the domain types for marginalia.
package models

import (
	"fmt"
	"time"
)

// Kind identifies a Readwise record kind for sync bookkeeping.
type Kind string

// Record kinds.
const (
	KindBook      Kind = "book"
	KindHighlight Kind = "highlight"
	KindDoc       Kind = "doc"
)

// AllKinds lists every syncable record kind.
func AllKinds() []Kind {
	return []Kind{KindBook, KindHighlight, KindDoc}
}

// ParseKind converts a flag value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBook, KindHighlight, KindDoc:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown record kind %q (want book, highlight or doc)", s)
}

// Tag is a label attached to books and highlights. A tag ID has exactly
// one name at a time; re-syncing the same ID with a new name renames it
// everywhere (last write wins).
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Book is a Readwise book (or article, tweet thread, podcast, ...).
// Everything but the ID may change between syncs. Books are never
// deleted locally; absence from a feed does not imply deletion.
type Book struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Author          string     `json:"author,omitempty"`
	Category        string     `json:"category"`
	NumHighlights   int64      `json:"num_highlights"`
	LastHighlightAt *time.Time `json:"last_highlight_at,omitempty"`
	Updated         *time.Time `json:"updated,omitempty"`
	CoverImageURL   string     `json:"cover_image_url,omitempty"`
	HighlightsURL   string     `json:"highlights_url,omitempty"`
	SourceURL       string     `json:"source_url,omitempty"`
	ASIN            string     `json:"asin,omitempty"`
	Tags            []Tag      `json:"tags,omitempty"`
}

// Highlight is a single highlighted passage belonging to a Book.
type Highlight struct {
	ID            int64      `json:"id"`
	Text          string     `json:"text"`
	Note          string     `json:"note"`
	Location      int64      `json:"location"`
	LocationType  string     `json:"location_type"`
	HighlightedAt *time.Time `json:"highlighted_at,omitempty"`
	URL           string     `json:"url,omitempty"`
	Color         string     `json:"color"`
	Updated       time.Time  `json:"updated"`
	BookID        int64      `json:"book_id"`
	Tags          []Tag      `json:"tags,omitempty"`
}

// Doc is a Readwise Reader document. IDs are opaque strings assigned by
// the remote side. Docs form a hierarchy via ParentID (notes and
// highlights made inside Reader hang off their source document).
type Doc struct {
	ID              string     `json:"id"`
	URL             string     `json:"url"`
	Title           string     `json:"title,omitempty"`
	Author          string     `json:"author,omitempty"`
	Source          string     `json:"source,omitempty"`
	Category        string     `json:"category,omitempty"`
	Location        string     `json:"location,omitempty"`
	SiteName        string     `json:"site_name,omitempty"`
	WordCount       *int64     `json:"word_count,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	PublishedDate   *time.Time `json:"published_date,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	Content         string     `json:"content,omitempty"`
	SourceURL       string     `json:"source_url,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	ParentID        string     `json:"parent_id,omitempty"`
	ReadingProgress float64    `json:"reading_progress"`
	FirstOpenedAt   *time.Time `json:"first_opened_at,omitempty"`
	LastOpenedAt    *time.Time `json:"last_opened_at,omitempty"`
	SavedAt         time.Time  `json:"saved_at"`
	LastMovedAt     time.Time  `json:"last_moved_at"`
}

// Library is a point-in-time read model of everything in the cache.
// It is immutable for the duration of an export run.
type Library struct {
	Books      []Book      `json:"books"`
	Highlights []Highlight `json:"highlights"`
	Docs       []Doc       `json:"documents"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// HighlightsFor returns the highlights belonging to the given book, in
// library order. Callers impose any further ordering themselves.
func (l *Library) HighlightsFor(bookID int64) []Highlight {
	var out []Highlight
	for _, h := range l.Highlights {
		if h.BookID == bookID {
			out = append(out, h)
		}
	}
	return out
}
