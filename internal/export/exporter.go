// Package export reconciles a cached Readwise library against a
// Markdown vault: one note per book, user prose preserved above a split
// marker, generated highlight content below it.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/marginaliaapp/marginalia/internal/apperr"
	"github.com/marginaliaapp/marginalia/internal/models"
	"github.com/marginaliaapp/marginalia/internal/vault"
)

// SplitMarker separates the user-owned region of a note from the
// generated highlight region.
const SplitMarker = "%% HIGHLIGHTS_BEGIN %%"

// Frontmatter keys identifying a note as managed by marginalia.
const (
	NoteKindKey   = "note-kind"
	NoteKindValue = "readwise"
	ForeignKeyKey = "__readwise_fk"
	StrandedKey   = "stranded"
)

// Policy controls how existing notes are treated on export.
type Policy string

// Replacement policies.
const (
	// PolicyUpdate regenerates only the highlight region of existing
	// notes, preserving user prose above the split marker.
	PolicyUpdate Policy = "update"
	// PolicyReplace re-renders the whole note but keeps it at its
	// existing location.
	PolicyReplace Policy = "replace"
	// PolicyIgnoreExisting writes every note to its default location,
	// ignoring existing files entirely.
	PolicyIgnoreExisting Policy = "ignore-existing"
)

// ParsePolicy converts a flag value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyUpdate, PolicyReplace, PolicyIgnoreExisting:
		return Policy(s), nil
	}
	return "", fmt.Errorf("export: unknown replacement policy %q", s)
}

// Options configures an export run.
type Options struct {
	// BaseFolder is the vault-relative directory notes are created
	// under; category subdirectories hang off it.
	BaseFolder string
	Policy     Policy
	// SkipEmpty drops books with no cached highlights.
	SkipEmpty bool
	// FilterCategory, when set, exports only books of that category.
	FilterCategory string
}

// Exporter runs one reconciliation pass. It owns the foreign-key index
// of existing managed notes and drains it as books claim their note;
// whatever remains after Export is stranded.
type Exporter struct {
	lib       *models.Library
	vault     vault.Provider
	templates Templates
	metadata  MetadataSource
	opts      Options
	logger    *slog.Logger

	remaining map[int64]string
}

// New builds an Exporter, scanning the vault once for existing managed
// notes. A nil metadata source falls back to DefaultMetadata.
func New(lib *models.Library, provider vault.Provider, templates Templates, metadata MetadataSource, opts Options, logger *slog.Logger) (*Exporter, error) {
	if metadata == nil {
		metadata = DefaultMetadata{}
	}

	remaining, err := vault.FindByMarker(provider, NoteKindKey, NoteKindValue, ForeignKeyKey)
	if err != nil {
		return nil, fmt.Errorf("export: scan vault: %w", err)
	}
	logger.Debug("found existing managed notes", slog.Int("count", len(remaining)))

	return &Exporter{
		lib:       lib,
		vault:     provider,
		templates: templates,
		metadata:  metadata,
		opts:      opts,
		logger:    logger,
		remaining: remaining,
	}, nil
}

// Export writes one note per exportable book. Cancellation is honoured
// between note writes only; notes already written stay written.
func (e *Exporter) Export(ctx context.Context) error {
	e.logOrphans()

	for _, group := range e.groups() {
		category := group[0].Category
		dirName, err := categoryTitle(category)
		if err != nil {
			return err
		}
		root := path.Join(e.opts.BaseFolder, dirName)
		if err := e.vault.EnsureDir(root); err != nil {
			return err
		}

		e.logger.Debug("exporting category",
			slog.String("category", category),
			slog.Int("books", len(group)))

		for _, book := range group {
			if err := ctx.Err(); err != nil {
				return err
			}

			// Claiming the entry marks this book's note as still live;
			// whatever is left in remaining after the run is stranded.
			existing, found := e.remaining[book.ID]
			if found {
				delete(e.remaining, book.ID)
			}

			target := existing
			renderFrom := existing
			switch e.opts.Policy {
			case PolicyReplace:
				renderFrom = ""
			case PolicyIgnoreExisting:
				if found {
					e.logger.Debug("ignoring existing note",
						slog.String("path", existing),
						slog.String("title", book.Title))
				}
				target = ""
				renderFrom = ""
			}

			note, err := e.buildNote(root, book, renderFrom)
			if err != nil {
				return err
			}

			outcome, err := vault.WriteNote(e.vault, *note, target)
			if err != nil {
				return fmt.Errorf("export: write note for book %d: %w", book.ID, err)
			}
			e.logger.Info("exported book",
				slog.String("title", book.Title),
				slog.String("outcome", outcome.String()))
		}
	}

	return nil
}

// MarkStranded flags every unclaimed managed note with stranded: true.
// Bodies are left untouched.
func (e *Exporter) MarkStranded() error {
	for fk, notePath := range e.remaining {
		meta, body, err := vault.ReadNote(e.vault, notePath)
		if err != nil {
			return fmt.Errorf("export: read stranded note %s: %w", notePath, err)
		}
		if meta == nil {
			meta = map[string]any{}
		}
		meta[StrandedKey] = true

		note := vault.Note{DefaultPath: notePath, Metadata: meta, Body: body}
		if _, err := vault.WriteNote(e.vault, note, notePath); err != nil {
			return fmt.Errorf("export: mark stranded %s: %w", notePath, err)
		}
		e.logger.Info("marked note as stranded",
			slog.String("path", notePath),
			slog.Int64("book_id", fk))
	}
	return nil
}

// groups filters the library's books and partitions them into
// contiguous runs of the same category, preserving snapshot order.
// Same-category books separated by another category stay in separate
// groups; this is deliberately not a full group-by.
func (e *Exporter) groups() [][]models.Book {
	var filtered []models.Book
	for _, b := range e.lib.Books {
		if e.opts.SkipEmpty && !e.hasHighlights(b.ID) {
			continue
		}
		if e.opts.FilterCategory != "" && b.Category != e.opts.FilterCategory {
			continue
		}
		filtered = append(filtered, b)
	}

	var out [][]models.Book
	for _, b := range filtered {
		if n := len(out); n > 0 && out[n-1][0].Category == b.Category {
			out[n-1] = append(out[n-1], b)
			continue
		}
		out = append(out, []models.Book{b})
	}
	return out
}

func (e *Exporter) hasHighlights(bookID int64) bool {
	for _, h := range e.lib.Highlights {
		if h.BookID == bookID {
			return true
		}
	}
	return false
}

// buildNote renders the full note for a book. When existingPath is
// non-empty the current file's user region (everything above the split
// marker) is preserved; otherwise the front region is rendered from the
// book template.
func (e *Exporter) buildNote(root string, book models.Book, existingPath string) (*vault.Note, error) {
	highlights := e.lib.HighlightsFor(book.ID)
	sort.SliceStable(highlights, func(i, j int) bool {
		return highlights[i].Location < highlights[j].Location
	})

	data, err := templateData(book, highlights)
	if err != nil {
		return nil, err
	}

	var front string
	if existingPath != "" {
		_, body, err := vault.ReadNote(e.vault, existingPath)
		if err != nil {
			return nil, fmt.Errorf("export: read existing note %s: %w", existingPath, err)
		}
		idx := strings.Index(body, SplitMarker)
		if idx < 0 {
			e.logger.Warn("existing note has no split marker, discarding its body",
				slog.String("path", existingPath),
				slog.String("title", book.Title))
			idx = 0
		}
		front = body[:idx]
	} else {
		front, err = e.templates.RenderBook(data)
		if err != nil {
			return nil, err
		}
	}

	// Generated region: newest location first.
	fragments := make([]string, 0, len(highlights))
	for i := len(highlights) - 1; i >= 0; i-- {
		hm, err := toMap(highlights[i])
		if err != nil {
			return nil, err
		}
		fragmentData := make(map[string]any, len(data)+1)
		for k, v := range data {
			fragmentData[k] = v
		}
		fragmentData["highlight"] = hm

		fragment, err := e.templates.RenderHighlight(fragmentData)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, fragment)
	}
	generated := strings.TrimSpace(strings.Join(fragments, "\n\n"))

	body := fmt.Sprintf("%s\n\n%s\n\n%s\n", strings.TrimSpace(front), SplitMarker, generated)

	meta, err := e.metadata.Metadata(book, highlights)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = map[string]any{}
	}
	// The marker keys always win, whatever the metadata source produced.
	meta[NoteKindKey] = NoteKindValue
	meta[ForeignKeyKey] = book.ID

	return &vault.Note{
		DefaultPath: path.Join(root, sanitizeTitle(book.Title)+".md"),
		Metadata:    meta,
		Body:        body,
	}, nil
}

// templateData builds the context both templates render against: the
// book's fields at top level plus "book" and "highlights" (ascending by
// location, each augmented with a location_url when the book has an
// ASIN).
func templateData(book models.Book, highlights []models.Highlight) (map[string]any, error) {
	data, err := toMap(book)
	if err != nil {
		return nil, err
	}
	bookMap, err := toMap(book)
	if err != nil {
		return nil, err
	}

	hs := make([]map[string]any, 0, len(highlights))
	for _, h := range highlights {
		hm, err := toMap(h)
		if err != nil {
			return nil, err
		}
		if book.ASIN != "" {
			hm["location_url"] = fmt.Sprintf(
				"https://readwise.io/to_kindle?action=open&asin=%s&location=%d",
				book.ASIN, h.Location)
		}
		hs = append(hs, hm)
	}

	data["book"] = bookMap
	data["highlights"] = hs
	return data, nil
}

// categoryTitle upper-cases the first rune of a category for use as a
// directory name. An empty category cannot be exported.
func categoryTitle(category string) (string, error) {
	if category == "" {
		return "", fmt.Errorf("export: category %q: %w", category, apperr.ErrInvalidCategory)
	}
	r := []rune(category)
	return strings.ToUpper(string(r[0])) + string(r[1:]), nil
}

// logOrphans reports highlights whose book is missing from the
// snapshot; they are silently excluded from export otherwise.
func (e *Exporter) logOrphans() {
	ids := make(map[int64]struct{}, len(e.lib.Books))
	for _, b := range e.lib.Books {
		ids[b.ID] = struct{}{}
	}
	orphans := 0
	for _, h := range e.lib.Highlights {
		if _, ok := ids[h.BookID]; !ok {
			orphans++
		}
	}
	if orphans > 0 {
		e.logger.Debug("highlights reference books missing from the cache",
			slog.Int("count", orphans))
	}
}
