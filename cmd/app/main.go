package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/marginaliaapp/marginalia/internal"
	"github.com/marginaliaapp/marginalia/internal/export"
	"github.com/marginaliaapp/marginalia/internal/models"
	pkgconfig "github.com/marginaliaapp/marginalia/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil {
		if err := pkgconfig.Load(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if cmd.IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func runFetch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var kinds []models.Kind
	for _, s := range cmd.StringSlice("kind") {
		kind, err := models.ParseKind(s)
		if err != nil {
			return err
		}
		kinds = append(kinds, kind)
	}

	return internal.Fetch(ctx, cfg, internal.FetchOptions{
		Kinds:   kinds,
		Refetch: cmd.Bool("refetch"),
	})
}

func runExport(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	policy, err := export.ParsePolicy(cmd.String("policy"))
	if err != nil {
		return err
	}

	return internal.Export(ctx, cfg, internal.ExportOptions{
		Policy:         policy,
		SkipEmpty:      cmd.Bool("skip-empty"),
		FilterCategory: cmd.String("filter-category"),
		MarkStranded:   cmd.Bool("mark-stranded"),
	})
}

func runExportJSON(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := os.Stdout
	if path := cmd.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	return internal.ExportJSON(ctx, cfg, out)
}

func main() {
	cmd := &cli.Command{
		Name:  "marginalia",
		Usage: "Sync Readwise highlights into a local cache and export them as Markdown notes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("MARGINALIA_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "fetch",
				Usage:  "Fetch new and updated records from the Readwise API into the local cache",
				Action: runFetch,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "kind",
						Aliases: []string{"k"},
						Usage:   "Only sync the listed record kinds (book, highlight, doc); repeatable",
					},
					&cli.BoolFlag{
						Name:  "refetch",
						Usage: "Ignore stored watermarks and refetch the whole library",
					},
				},
			},
			{
				Name:   "export",
				Usage:  "Export cached highlights as Markdown notes in the vault",
				Action: runExport,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "policy",
						Usage: "How to treat existing notes: update, replace, or ignore-existing",
						Value: string(export.PolicyUpdate),
					},
					&cli.BoolFlag{
						Name:  "skip-empty",
						Usage: "Skip books with no highlights",
						Value: true,
					},
					&cli.StringFlag{
						Name:  "filter-category",
						Usage: "Only export books from this category",
					},
					&cli.BoolFlag{
						Name:  "mark-stranded",
						Usage: "Mark notes whose book no longer exists in the cache",
					},
				},
			},
			{
				Name:   "export-json",
				Usage:  "Dump the cached library snapshot as JSON",
				Action: runExportJSON,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to this file instead of stdout",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
