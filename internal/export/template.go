package export

import (
	"fmt"
	"os"
	"strings"
	"text/template"
)

// Templates renders the two regions of an exported note: the book front
// matter prose and one fragment per highlight. The engine treats a
// renderer as a pure function of its data map.
type Templates interface {
	RenderBook(data map[string]any) (string, error)
	RenderHighlight(data map[string]any) (string, error)
}

// TemplateSet implements Templates with text/template.
type TemplateSet struct {
	book      *template.Template
	highlight *template.Template
}

var _ Templates = (*TemplateSet)(nil)

// NewTemplates parses book and highlight templates from source strings.
func NewTemplates(bookSrc, highlightSrc string) (*TemplateSet, error) {
	book, err := template.New("book").Parse(bookSrc)
	if err != nil {
		return nil, fmt.Errorf("export: parse book template: %w", err)
	}
	highlight, err := template.New("highlight").Parse(highlightSrc)
	if err != nil {
		return nil, fmt.Errorf("export: parse highlight template: %w", err)
	}
	return &TemplateSet{book: book, highlight: highlight}, nil
}

// LoadTemplates reads and parses the two template files.
func LoadTemplates(bookPath, highlightPath string) (*TemplateSet, error) {
	bookSrc, err := os.ReadFile(bookPath)
	if err != nil {
		return nil, fmt.Errorf("export: read book template: %w", err)
	}
	highlightSrc, err := os.ReadFile(highlightPath)
	if err != nil {
		return nil, fmt.Errorf("export: read highlight template: %w", err)
	}
	return NewTemplates(string(bookSrc), string(highlightSrc))
}

// RenderBook renders the front region for a book.
func (t *TemplateSet) RenderBook(data map[string]any) (string, error) {
	var sb strings.Builder
	if err := t.book.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("export: render book template: %w", err)
	}
	return sb.String(), nil
}

// RenderHighlight renders one highlight fragment.
func (t *TemplateSet) RenderHighlight(data map[string]any) (string, error) {
	var sb strings.Builder
	if err := t.highlight.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("export: render highlight template: %w", err)
	}
	return sb.String(), nil
}
