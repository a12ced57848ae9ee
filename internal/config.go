package internal

import (
	"log/slog"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Readwise ReadwiseConfig    `yaml:"readwise"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Vault    VaultConfig       `yaml:"vault"`
	Export   ExportConfig      `yaml:"export"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Readwise.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Vault.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// ReadwiseConfig holds Readwise API access configuration. Token is
// usually supplied via env expansion: "${READWISE_API_TOKEN}".
type ReadwiseConfig struct {
	Token    string `yaml:"token"`
	BaseURL  string `yaml:"base_url"`
	ListURL  string `yaml:"list_url"`
	PageSize int    `yaml:"page_size"`
}

// Validate validates the Readwise configuration. The token itself is
// checked at fetch time; export runs never need it.
func (c *ReadwiseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PageSize, validation.Min(1), validation.Max(1000)),
	)
}

// SQLiteConfig holds the local cache database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// VaultConfig holds the Markdown vault location and the folder within
// it that exported notes are created under.
type VaultConfig struct {
	Path       string `yaml:"path"`
	BaseFolder string `yaml:"base_folder"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ExportConfig holds the template files used to render notes.
// MetadataTemplate is optional; without it note metadata defaults to a
// serialization of the book itself.
type ExportConfig struct {
	BookTemplate      string `yaml:"book_template"`
	HighlightTemplate string `yaml:"highlight_template"`
	MetadataTemplate  string `yaml:"metadata_template"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Readwise: ReadwiseConfig{
			Token:    os.Getenv("READWISE_API_TOKEN"),
			PageSize: 1000,
		},
		SQLite: SQLiteConfig{
			Path: "./marginalia.db",
		},
		Vault: VaultConfig{
			Path:       "./vault",
			BaseFolder: "Readwise",
		},
	}
}
