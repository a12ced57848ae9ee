package export

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/marginaliaapp/marginalia/internal/models"
)

// MetadataSource computes the frontmatter metadata for a book's note.
// highlights arrive sorted ascending by location. The exporter never
// inspects which implementation is active; it only force-sets the
// managed-note marker keys afterwards.
type MetadataSource interface {
	Metadata(book models.Book, highlights []models.Highlight) (map[string]any, error)
}

// MetadataFunc adapts a plain function to MetadataSource. This is the
// seam where an external scripting engine plugs in: evaluate the script
// against the book and its highlights, return the resulting mapping.
type MetadataFunc func(book models.Book, highlights []models.Highlight) (map[string]any, error)

// Metadata calls f.
func (f MetadataFunc) Metadata(book models.Book, highlights []models.Highlight) (map[string]any, error) {
	return f(book, highlights)
}

// DefaultMetadata serialises the book's own fields as the note metadata.
type DefaultMetadata struct{}

// Metadata returns the book as a flat mapping.
func (DefaultMetadata) Metadata(book models.Book, _ []models.Highlight) (map[string]any, error) {
	return toMap(book)
}

// TemplateMetadata renders a template expected to produce a YAML mapping
// and unmarshals the result.
type TemplateMetadata struct {
	Templates interface {
		RenderBook(data map[string]any) (string, error)
	}
}

// Metadata renders the metadata template against the usual template
// context and parses the output as a YAML mapping.
func (m TemplateMetadata) Metadata(book models.Book, highlights []models.Highlight) (map[string]any, error) {
	data, err := templateData(book, highlights)
	if err != nil {
		return nil, err
	}
	rendered, err := m.Templates.RenderBook(data)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := yaml.Unmarshal([]byte(rendered), &out); err != nil {
		return nil, fmt.Errorf("export: metadata template did not produce a mapping: %w", err)
	}
	return out, nil
}

// toMap converts a struct to a generic mapping via its JSON encoding, so
// field naming matches the wire and template representation.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("export: encode metadata: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("export: decode metadata: %w", err)
	}
	return out, nil
}
