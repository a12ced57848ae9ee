package export

import (
	"strings"
	"testing"

	"github.com/marginaliaapp/marginalia/internal/models"
)

func TestDefaultMetadata(t *testing.T) {
	book := models.Book{ID: 5, Title: "T", Author: "A", Category: "books"}
	meta, err := DefaultMetadata{}.Metadata(book, nil)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta["title"] != "T" || meta["author"] != "A" {
		t.Errorf("meta = %v", meta)
	}
	// via JSON round trip numbers arrive as float64
	if meta["id"] != float64(5) {
		t.Errorf("id = %v (%T)", meta["id"], meta["id"])
	}
}

func TestTemplateMetadata(t *testing.T) {
	tmpl, err := NewTemplates(
		"source: readwise\nbook-title: {{.title}}\nhighlight-count: {{len .highlights}}\n",
		"")
	if err != nil {
		t.Fatalf("parsing template: %v", err)
	}

	book := models.Book{ID: 5, Title: "T"}
	highlights := []models.Highlight{{ID: 1, Text: "x"}, {ID: 2, Text: "y"}}
	meta, err := TemplateMetadata{Templates: tmpl}.Metadata(book, highlights)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta["source"] != "readwise" || meta["book-title"] != "T" {
		t.Errorf("meta = %v", meta)
	}
	if meta["highlight-count"] != 2 {
		t.Errorf("highlight-count = %v (%T)", meta["highlight-count"], meta["highlight-count"])
	}
}

func TestTemplateMetadata_NotAMapping(t *testing.T) {
	tmpl, err := NewTemplates("- just\n- a\n- list\n", "")
	if err != nil {
		t.Fatalf("parsing template: %v", err)
	}
	_, err = TemplateMetadata{Templates: tmpl}.Metadata(models.Book{ID: 1}, nil)
	if err == nil || !strings.Contains(err.Error(), "mapping") {
		t.Errorf("err = %v, want mapping error", err)
	}
}

func TestTemplateData_LocationURL(t *testing.T) {
	book := models.Book{ID: 1, Title: "T", ASIN: "B00TEST"}
	highlights := []models.Highlight{{ID: 10, Text: "x", Location: 250}}

	data, err := templateData(book, highlights)
	if err != nil {
		t.Fatalf("template data: %v", err)
	}
	hs, ok := data["highlights"].([]map[string]any)
	if !ok || len(hs) != 1 {
		t.Fatalf("highlights = %v", data["highlights"])
	}
	url, _ := hs[0]["location_url"].(string)
	if !strings.Contains(url, "asin=B00TEST") || !strings.Contains(url, "location=250") {
		t.Errorf("location_url = %q", url)
	}

	// no ASIN, no kindle link
	data, err = templateData(models.Book{ID: 2}, highlights)
	if err != nil {
		t.Fatalf("template data: %v", err)
	}
	hs = data["highlights"].([]map[string]any)
	if _, ok := hs[0]["location_url"]; ok {
		t.Error("location_url should be absent without an ASIN")
	}
}
