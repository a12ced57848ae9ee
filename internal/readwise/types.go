package readwise

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/marginaliaapp/marginalia/internal/models"
)

// apiTime decodes the timestamp formats the API emits: RFC3339 with or
// without fractional seconds, and the occasional zone-less variant.
type apiTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t *apiTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := parseAnyTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func parseAnyTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			return parsed, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// flexTime additionally accepts integer millisecond epochs; the v3 API
// serves published_date in any of these shapes.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] != '"' {
		millis, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return err
		}
		t.Time = time.UnixMilli(millis).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := parseAnyTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func optional(t *apiTime) *time.Time {
	if t == nil {
		return nil
	}
	tt := t.Time
	return &tt
}

func required(t *apiTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}

// wireBook is the v2 books list entry.
type wireBook struct {
	ID              int64        `json:"id"`
	Title           string       `json:"title"`
	Author          string       `json:"author"`
	Category        string       `json:"category"`
	NumHighlights   int64        `json:"num_highlights"`
	LastHighlightAt *apiTime     `json:"last_highlight_at"`
	Updated         *apiTime     `json:"updated"`
	CoverImageURL   string       `json:"cover_image_url"`
	HighlightsURL   string       `json:"highlights_url"`
	SourceURL       string       `json:"source_url"`
	ASIN            string       `json:"asin"`
	Tags            []models.Tag `json:"tags"`
}

func (w wireBook) toModel() models.Book {
	return models.Book{
		ID:              w.ID,
		Title:           w.Title,
		Author:          w.Author,
		Category:        w.Category,
		NumHighlights:   w.NumHighlights,
		LastHighlightAt: optional(w.LastHighlightAt),
		Updated:         optional(w.Updated),
		CoverImageURL:   w.CoverImageURL,
		HighlightsURL:   w.HighlightsURL,
		SourceURL:       w.SourceURL,
		ASIN:            w.ASIN,
		Tags:            w.Tags,
	}
}

// wireHighlight is the v2 highlights list entry.
type wireHighlight struct {
	ID            int64        `json:"id"`
	Text          string       `json:"text"`
	Note          string       `json:"note"`
	Location      int64        `json:"location"`
	LocationType  string       `json:"location_type"`
	HighlightedAt *apiTime     `json:"highlighted_at"`
	URL           string       `json:"url"`
	Color         string       `json:"color"`
	Updated       *apiTime     `json:"updated"`
	BookID        int64        `json:"book_id"`
	Tags          []models.Tag `json:"tags"`
}

func (w wireHighlight) toModel() models.Highlight {
	return models.Highlight{
		ID:            w.ID,
		Text:          w.Text,
		Note:          w.Note,
		Location:      w.Location,
		LocationType:  w.LocationType,
		HighlightedAt: optional(w.HighlightedAt),
		URL:           w.URL,
		Color:         w.Color,
		Updated:       required(w.Updated),
		BookID:        w.BookID,
		Tags:          w.Tags,
	}
}

// wireDoc is the v3 document list entry.
type wireDoc struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Source          string    `json:"source"`
	Category        string    `json:"category"`
	Location        string    `json:"location"`
	SiteName        string    `json:"site_name"`
	WordCount       *int64    `json:"word_count"`
	CreatedAt       *apiTime  `json:"created_at"`
	UpdatedAt       *apiTime  `json:"updated_at"`
	PublishedDate   *flexTime `json:"published_date"`
	Summary         string    `json:"summary"`
	ImageURL        string    `json:"image_url"`
	Content         string    `json:"content"`
	SourceURL       string    `json:"source_url"`
	Notes           string    `json:"notes"`
	ParentID        string    `json:"parent_id"`
	ReadingProgress float64   `json:"reading_progress"`
	FirstOpenedAt   *apiTime  `json:"first_opened_at"`
	LastOpenedAt    *apiTime  `json:"last_opened_at"`
	SavedAt         *apiTime  `json:"saved_at"`
	LastMovedAt     *apiTime  `json:"last_moved_at"`
}

func (w wireDoc) toModel() models.Doc {
	var published *time.Time
	if w.PublishedDate != nil {
		tt := w.PublishedDate.Time
		published = &tt
	}
	return models.Doc{
		ID:              w.ID,
		URL:             w.URL,
		Title:           w.Title,
		Author:          w.Author,
		Source:          w.Source,
		Category:        w.Category,
		Location:        w.Location,
		SiteName:        w.SiteName,
		WordCount:       w.WordCount,
		CreatedAt:       required(w.CreatedAt),
		UpdatedAt:       required(w.UpdatedAt),
		PublishedDate:   published,
		Summary:         w.Summary,
		ImageURL:        w.ImageURL,
		Content:         w.Content,
		SourceURL:       w.SourceURL,
		Notes:           w.Notes,
		ParentID:        w.ParentID,
		ReadingProgress: w.ReadingProgress,
		FirstOpenedAt:   optional(w.FirstOpenedAt),
		LastOpenedAt:    optional(w.LastOpenedAt),
		SavedAt:         required(w.SavedAt),
		LastMovedAt:     required(w.LastMovedAt),
	}
}

// collectionResponse is the envelope for v2 offset pagination.
type collectionResponse[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// listResponse is the envelope for v3 cursor pagination.
type listResponse struct {
	Results        []wireDoc `json:"results"`
	NextPageCursor *string   `json:"next_page_cursor"`
}
