package models

import "testing"

func TestParseKind(t *testing.T) {
	for _, s := range []string{"book", "highlight", "doc"} {
		kind, err := ParseKind(s)
		if err != nil {
			t.Errorf("ParseKind(%q): %v", s, err)
		}
		if string(kind) != s {
			t.Errorf("ParseKind(%q) = %q", s, kind)
		}
	}
	if _, err := ParseKind("books"); err == nil {
		t.Error("ParseKind should reject plural form")
	}
	if _, err := ParseKind(""); err == nil {
		t.Error("ParseKind should reject empty string")
	}
}

func TestHighlightsFor(t *testing.T) {
	lib := &Library{
		Highlights: []Highlight{
			{ID: 1, BookID: 7},
			{ID: 2, BookID: 8},
			{ID: 3, BookID: 7},
		},
	}

	got := lib.HighlightsFor(7)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("HighlightsFor(7) = %v", got)
	}
	if got := lib.HighlightsFor(99); got != nil {
		t.Errorf("HighlightsFor(99) = %v, want nil", got)
	}

	// mutating the result must not touch the library
	got = lib.HighlightsFor(7)
	got[0].ID = 100
	if lib.Highlights[0].ID != 1 {
		t.Error("HighlightsFor aliases library storage")
	}
}
