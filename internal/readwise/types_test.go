package readwise

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAPITime_Formats(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `"2024-03-09T10:11:12Z"`, time.Date(2024, 3, 9, 10, 11, 12, 0, time.UTC)},
		{"fractional", `"2024-03-09T10:11:12.500Z"`, time.Date(2024, 3, 9, 10, 11, 12, 500_000_000, time.UTC)},
		{"zoneless", `"2024-03-09T10:11:12"`, time.Date(2024, 3, 9, 10, 11, 12, 0, time.UTC)},
		{"date only", `"2024-03-09"`, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got apiTime
			if err := json.Unmarshal([]byte(tc.in), &got); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.in, err)
			}
			if !got.Time.Equal(tc.want) {
				t.Errorf("got %v, want %v", got.Time, tc.want)
			}
		})
	}
}

func TestFlexTime_IntegerMillis(t *testing.T) {
	var got flexTime
	if err := json.Unmarshal([]byte(`1700000000000`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := time.UnixMilli(1700000000000).UTC()
	if !got.Time.Equal(want) {
		t.Errorf("got %v, want %v", got.Time, want)
	}
}

func TestFlexTime_DateString(t *testing.T) {
	var got flexTime
	if err := json.Unmarshal([]byte(`"2023-11-24"`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := time.Date(2023, 11, 24, 0, 0, 0, 0, time.UTC)
	if !got.Time.Equal(want) {
		t.Errorf("got %v, want %v", got.Time, want)
	}
}

func TestWireDoc_ToModel(t *testing.T) {
	raw := `{
		"id": "abc",
		"url": "https://read.example/abc",
		"title": "An Article",
		"published_date": 1700000000000,
		"created_at": "2024-01-01T00:00:00Z",
		"updated_at": "2024-01-02T00:00:00Z",
		"saved_at": "2024-01-01T00:00:00Z",
		"last_moved_at": "2024-01-01T00:00:00Z",
		"reading_progress": 0.25,
		"word_count": 1200,
		"parent_id": null
	}`
	var w wireDoc
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	d := w.toModel()
	if d.ID != "abc" || d.Title != "An Article" {
		t.Errorf("basic fields: %+v", d)
	}
	if d.PublishedDate == nil || !d.PublishedDate.Equal(time.UnixMilli(1700000000000).UTC()) {
		t.Errorf("published date = %v", d.PublishedDate)
	}
	if d.WordCount == nil || *d.WordCount != 1200 {
		t.Errorf("word count = %v", d.WordCount)
	}
	if d.ReadingProgress != 0.25 {
		t.Errorf("reading progress = %v", d.ReadingProgress)
	}
	if d.FirstOpenedAt != nil {
		t.Errorf("first opened should be nil, got %v", d.FirstOpenedAt)
	}
}

func TestWireBook_ToModel(t *testing.T) {
	raw := `{
		"id": 7,
		"title": "T",
		"author": null,
		"category": "books",
		"num_highlights": 2,
		"last_highlight_at": "2024-02-02T08:00:00Z",
		"tags": [{"id": 1, "name": "go"}]
	}`
	var w wireBook
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	b := w.toModel()
	if b.ID != 7 || b.Author != "" || b.Category != "books" {
		t.Errorf("fields: %+v", b)
	}
	if b.LastHighlightAt == nil {
		t.Error("last_highlight_at should be set")
	}
	if b.Updated != nil {
		t.Error("updated should be nil")
	}
	if len(b.Tags) != 1 || b.Tags[0].Name != "go" {
		t.Errorf("tags = %v", b.Tags)
	}
}
