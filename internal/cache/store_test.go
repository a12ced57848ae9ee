package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/marginaliaapp/marginalia/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleBooks() []models.Book {
	last := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return []models.Book{
		{
			ID:              1,
			Title:           "First",
			Author:          "A. Author",
			Category:        "books",
			NumHighlights:   2,
			LastHighlightAt: &last,
			ASIN:            "B000000001",
			Tags:            []models.Tag{{ID: 10, Name: "go"}},
		},
		{
			ID:       2,
			Title:    "Second",
			Category: "articles",
			Tags:     []models.Tag{{ID: 10, Name: "go"}, {ID: 11, Name: "notes"}},
		},
	}
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestUpsertBooks_Idempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	books := sampleBooks()

	if err := db.UpsertBooks(ctx, books); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := db.UpsertBooks(ctx, books); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if got := countRows(t, db, "books"); got != 2 {
		t.Errorf("books rows = %d, want 2", got)
	}
	if got := countRows(t, db, "tags"); got != 2 {
		t.Errorf("tags rows = %d, want 2", got)
	}
	if got := countRows(t, db, "book_tags"); got != 3 {
		t.Errorf("book_tags rows = %d, want 3", got)
	}

	lib, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(lib.Books) != 2 {
		t.Fatalf("snapshot books = %d, want 2", len(lib.Books))
	}
	b := lib.Books[0]
	if b.Title != "First" || b.Author != "A. Author" || b.ASIN != "B000000001" {
		t.Errorf("book fields: %+v", b)
	}
	if b.LastHighlightAt == nil || !b.LastHighlightAt.Equal(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("last_highlight_at = %v", b.LastHighlightAt)
	}
	if len(b.Tags) != 1 || b.Tags[0].Name != "go" {
		t.Errorf("book 1 tags = %v", b.Tags)
	}
	if len(lib.Books[1].Tags) != 2 {
		t.Errorf("book 2 tags = %v", lib.Books[1].Tags)
	}
}

func TestUpsertBooks_OverwritesFields(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertBooks(ctx, sampleBooks()); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	changed := []models.Book{{ID: 1, Title: "Retitled", Category: "books"}}
	if err := db.UpsertBooks(ctx, changed); err != nil {
		t.Fatalf("update upsert: %v", err)
	}

	lib, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	b := lib.Books[0]
	if b.Title != "Retitled" {
		t.Errorf("title = %q, want %q", b.Title, "Retitled")
	}
	if b.Author != "" {
		t.Errorf("author = %q, want empty after full overwrite", b.Author)
	}
	if b.LastHighlightAt != nil {
		t.Errorf("last_highlight_at = %v, want nil", b.LastHighlightAt)
	}
}

func TestTagAssociations_Additive(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first := []models.Book{{ID: 1, Title: "T", Tags: []models.Tag{{ID: 10, Name: "go"}}}}
	second := []models.Book{{ID: 1, Title: "T", Tags: []models.Tag{{ID: 11, Name: "notes"}}}}
	if err := db.UpsertBooks(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := db.UpsertBooks(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	lib, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	tags := lib.Books[0].Tags
	if len(tags) != 2 {
		t.Fatalf("tags = %v, want both associations kept", tags)
	}
	if tags[0].Name != "go" || tags[1].Name != "notes" {
		t.Errorf("tags = %v", tags)
	}
}

func TestTagRename_LastWriteWins(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertBooks(ctx, []models.Book{
		{ID: 1, Title: "T", Tags: []models.Tag{{ID: 10, Name: "golang"}}},
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := db.UpsertHighlights(ctx, []models.Highlight{
		{ID: 100, Text: "x", BookID: 1, Updated: time.Now().UTC(),
			Tags: []models.Tag{{ID: 10, Name: "go"}}},
	}); err != nil {
		t.Fatalf("highlight upsert: %v", err)
	}

	lib, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got := lib.Books[0].Tags[0].Name; got != "go" {
		t.Errorf("book tag name = %q, want renamed %q", got, "go")
	}
	if got := lib.Highlights[0].Tags[0].Name; got != "go" {
		t.Errorf("highlight tag name = %q, want %q", got, "go")
	}
}

func TestUpsertHighlights_Idempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	hat := time.Date(2024, 4, 4, 4, 0, 0, 0, time.UTC)
	hs := []models.Highlight{
		{ID: 1, Text: "one", Location: 12, LocationType: "page",
			HighlightedAt: &hat, Updated: hat, BookID: 7},
		{ID: 2, Text: "two", Location: 30, Updated: hat, BookID: 7},
	}

	if err := db.UpsertHighlights(ctx, hs); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := db.UpsertHighlights(ctx, hs); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if got := countRows(t, db, "highlights"); got != 2 {
		t.Errorf("highlights rows = %d, want 2", got)
	}

	lib, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	got := lib.HighlightsFor(7)
	if len(got) != 2 {
		t.Fatalf("highlights for book 7 = %d, want 2", len(got))
	}
	if got[0].Text != "one" || got[0].Location != 12 {
		t.Errorf("highlight 1: %+v", got[0])
	}
	if got[0].HighlightedAt == nil || !got[0].HighlightedAt.Equal(hat) {
		t.Errorf("highlighted_at = %v", got[0].HighlightedAt)
	}
}

func TestUpsertDocs_RoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 5, 5, 0, 0, 0, time.UTC)
	wc := int64(900)
	docs := []models.Doc{
		{ID: "abc", URL: "https://read.example/abc", Title: "Doc",
			Category: "article", Location: "archive", WordCount: &wc,
			CreatedAt: created, UpdatedAt: created, SavedAt: created,
			LastMovedAt: created, ReadingProgress: 0.5},
	}

	if err := db.UpsertDocs(ctx, docs); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.UpsertDocs(ctx, docs); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	lib, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(lib.Docs) != 1 {
		t.Fatalf("docs = %d, want 1", len(lib.Docs))
	}
	d := lib.Docs[0]
	if d.ID != "abc" || d.Location != "archive" || d.ReadingProgress != 0.5 {
		t.Errorf("doc fields: %+v", d)
	}
	if d.WordCount == nil || *d.WordCount != 900 {
		t.Errorf("word_count = %v", d.WordCount)
	}
	if !d.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", d.CreatedAt, created)
	}
	if d.FirstOpenedAt != nil {
		t.Errorf("first_opened_at = %v, want nil", d.FirstOpenedAt)
	}
}

func TestWatermark_Lifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, kind := range models.AllKinds() {
		wm, err := db.Watermark(ctx, kind)
		if err != nil {
			t.Fatalf("initial watermark %s: %v", kind, err)
		}
		if wm != nil {
			t.Errorf("initial watermark %s = %v, want nil", kind, wm)
		}
	}

	first := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := db.SetWatermark(ctx, models.KindBook, first); err != nil {
		t.Fatalf("set watermark: %v", err)
	}
	wm, err := db.Watermark(ctx, models.KindBook)
	if err != nil {
		t.Fatalf("read watermark: %v", err)
	}
	if wm == nil || !wm.Equal(first) {
		t.Errorf("watermark = %v, want %v", wm, first)
	}

	// other kinds stay unset
	wm, err = db.Watermark(ctx, models.KindHighlight)
	if err != nil {
		t.Fatalf("read highlight watermark: %v", err)
	}
	if wm != nil {
		t.Errorf("highlight watermark = %v, want nil", wm)
	}

	later := first.Add(time.Hour)
	if err := db.SetWatermark(ctx, models.KindBook, later); err != nil {
		t.Fatalf("advance watermark: %v", err)
	}
	wm, err = db.Watermark(ctx, models.KindBook)
	if err != nil {
		t.Fatalf("reread watermark: %v", err)
	}
	if wm == nil || !wm.Equal(later) {
		t.Errorf("watermark = %v, want %v", wm, later)
	}
}

func TestSnapshot_AsOfUsesNewestWatermark(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	older := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	if err := db.SetWatermark(ctx, models.KindBook, older); err != nil {
		t.Fatalf("set book watermark: %v", err)
	}
	if err := db.SetWatermark(ctx, models.KindDoc, newer); err != nil {
		t.Fatalf("set doc watermark: %v", err)
	}

	lib, err := db.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !lib.UpdatedAt.Equal(newer) {
		t.Errorf("UpdatedAt = %v, want %v", lib.UpdatedAt, newer)
	}
}
