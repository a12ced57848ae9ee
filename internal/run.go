// Package internal wires the Readwise client, the local cache, and the
// vault exporter into the fetch / export / export-json commands.
package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marginaliaapp/marginalia/internal/cache"
	"github.com/marginaliaapp/marginalia/internal/export"
	"github.com/marginaliaapp/marginalia/internal/models"
	"github.com/marginaliaapp/marginalia/internal/readwise"
	"github.com/marginaliaapp/marginalia/internal/vault"
)

// FetchOptions controls one fetch run.
type FetchOptions struct {
	// Kinds limits the fetch to the listed record kinds; empty means all.
	Kinds []models.Kind
	// Refetch ignores stored watermarks and pulls the whole library.
	Refetch bool
}

// ExportOptions controls one export run.
type ExportOptions struct {
	Policy         export.Policy
	SkipEmpty      bool
	FilterCategory string
	// MarkStranded flags managed notes whose book no longer exists in
	// the cache.
	MarkStranded bool
}

// NewLogger builds the process-wide structured logger.
func NewLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// Fetch pulls new and updated records from the Readwise API into the
// local cache, one kind per goroutine. Each page is persisted as it
// arrives, and the kind's watermark only moves after its whole walk
// succeeds.
func Fetch(ctx context.Context, cfg *Config, opts FetchOptions) error {
	if cfg.Readwise.Token == "" {
		return fmt.Errorf("readwise token is required (set READWISE_API_TOKEN or readwise.token)")
	}

	logger := NewLogger(cfg)

	db, err := cache.Open(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	client := newClient(cfg, logger)

	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = models.AllKinds()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		g.Go(func() error {
			since, err := sinceFor(gctx, db, kind, opts.Refetch)
			if err != nil {
				return err
			}
			if since != nil {
				logger.Info("fetching updates", slog.String("kind", string(kind)), slog.Time("since", *since))
			} else {
				logger.Info("fetching everything", slog.String("kind", string(kind)))
			}

			switch kind {
			case models.KindBook:
				err = syncKind(gctx, client.Books(gctx, since), db.UpsertBooks)
			case models.KindHighlight:
				err = syncKind(gctx, client.Highlights(gctx, since), db.UpsertHighlights)
			case models.KindDoc:
				err = syncKind(gctx, client.Docs(gctx, since, ""), db.UpsertDocs)
			default:
				err = fmt.Errorf("unknown kind %q", kind)
			}
			if err != nil {
				return fmt.Errorf("sync %s: %w", kind, err)
			}

			if err := db.SetWatermark(gctx, kind, time.Now()); err != nil {
				return err
			}
			logger.Info("finished sync", slog.String("kind", string(kind)))
			return nil
		})
	}
	return g.Wait()
}

// syncKind drains one kind's page stream into the cache.
func syncKind[T any](ctx context.Context, pages iter.Seq2[[]T, error], upsert func(context.Context, []T) error) error {
	for batch, err := range pages {
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			continue
		}
		if err := upsert(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func sinceFor(ctx context.Context, db *cache.DB, kind models.Kind, refetch bool) (*time.Time, error) {
	if refetch {
		return nil, nil
	}
	return db.Watermark(ctx, kind)
}

func newClient(cfg *Config, logger *slog.Logger) *readwise.Client {
	opts := []readwise.Option{readwise.WithLogger(logger)}
	if cfg.Readwise.BaseURL != "" {
		opts = append(opts, readwise.WithBaseURL(cfg.Readwise.BaseURL))
	}
	if cfg.Readwise.ListURL != "" {
		opts = append(opts, readwise.WithListURL(cfg.Readwise.ListURL))
	}
	if cfg.Readwise.PageSize > 0 {
		opts = append(opts, readwise.WithPageSize(cfg.Readwise.PageSize))
	}
	return readwise.New(cfg.Readwise.Token, opts...)
}

// Export reconciles the cached library against the vault.
func Export(ctx context.Context, cfg *Config, opts ExportOptions) error {
	logger := NewLogger(cfg)

	if cfg.Export.BookTemplate == "" || cfg.Export.HighlightTemplate == "" {
		return fmt.Errorf("export.book_template and export.highlight_template are required")
	}

	db, err := cache.Open(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	lib, err := db.Snapshot(ctx)
	if err != nil {
		return err
	}
	logger.Info("loaded library snapshot",
		slog.Int("books", len(lib.Books)),
		slog.Int("highlights", len(lib.Highlights)),
		slog.Int("documents", len(lib.Docs)),
		slog.Time("as_of", lib.UpdatedAt))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}
	store, err := vault.NewFS(cfg.Vault.Path)
	if err != nil {
		return err
	}

	templates, err := export.LoadTemplates(cfg.Export.BookTemplate, cfg.Export.HighlightTemplate)
	if err != nil {
		return err
	}

	metadata, err := metadataSource(cfg)
	if err != nil {
		return err
	}

	exporter, err := export.New(lib, store, templates, metadata, export.Options{
		BaseFolder:     cfg.Vault.BaseFolder,
		Policy:         opts.Policy,
		SkipEmpty:      opts.SkipEmpty,
		FilterCategory: opts.FilterCategory,
	}, logger)
	if err != nil {
		return err
	}

	if err := exporter.Export(ctx); err != nil {
		return err
	}
	if opts.MarkStranded {
		return exporter.MarkStranded()
	}
	return nil
}

// metadataSource picks the configured metadata strategy. A script-driven
// source can be swapped in here via export.MetadataFunc.
func metadataSource(cfg *Config) (export.MetadataSource, error) {
	if cfg.Export.MetadataTemplate == "" {
		return nil, nil // exporter falls back to DefaultMetadata
	}
	src, err := os.ReadFile(cfg.Export.MetadataTemplate)
	if err != nil {
		return nil, fmt.Errorf("read metadata template: %w", err)
	}
	set, err := export.NewTemplates(string(src), "")
	if err != nil {
		return nil, err
	}
	return export.TemplateMetadata{Templates: set}, nil
}

// ExportJSON dumps the library snapshot as indented JSON.
func ExportJSON(ctx context.Context, cfg *Config, w io.Writer) error {
	db, err := cache.Open(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	lib, err := db.Snapshot(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(lib)
}
