package vault

import (
	"fmt"

	"github.com/marginaliaapp/marginalia/internal/frontmatter"
)

// Note is one vault document: YAML frontmatter metadata plus a Markdown
// body. DefaultPath is where the note lands when no existing file claims
// it.
type Note struct {
	DefaultPath string
	Metadata    map[string]any
	Body        string
}

// ReadNote loads and splits a vault file into metadata and body.
func ReadNote(p Provider, path string) (map[string]any, string, error) {
	data, err := p.Read(path)
	if err != nil {
		return nil, "", err
	}
	meta, body := frontmatter.Split(data)
	return meta, body, nil
}

// WriteNote persists a note. When existing is non-empty the note is
// written there (update in place); otherwise it goes to the note's
// default path.
func WriteNote(p Provider, n Note, existing string) (Outcome, error) {
	path := n.DefaultPath
	if existing != "" {
		path = existing
	}
	content, err := frontmatter.Assemble(n.Metadata, n.Body)
	if err != nil {
		return Created, fmt.Errorf("vault: assemble %s: %w", path, err)
	}
	return p.Write(path, content)
}

// FindByMarker scans every vault note for managed-note markers: notes
// whose metadata holds kindValue under kindKey and an integer foreign
// key under fkKey. It returns foreign key → relative path.
func FindByMarker(p Provider, kindKey, kindValue, fkKey string) (map[int64]string, error) {
	paths, err := p.List("")
	if err != nil {
		return nil, err
	}

	out := make(map[int64]string)
	for _, path := range paths {
		data, err := p.Read(path)
		if err != nil {
			return nil, err
		}
		meta, _ := frontmatter.Split(data)
		if meta == nil {
			continue
		}
		if v, ok := frontmatter.String(meta, kindKey); !ok || v != kindValue {
			continue
		}
		fk, ok := frontmatter.Int64(meta, fkKey)
		if !ok {
			continue
		}
		out[fk] = path
	}
	return out, nil
}
