// Package config loads the service configuration from an HCL file.
//
// Every attribute is optional; unset values take the defaults from Default. String values
// may call env(name, default) to read the process environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the resolved configuration
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Fonts    FontsConfig
	Renderer RendererConfig
	Services ServicesConfig
	Logging  LoggingConfig
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// RateLimit is requests per minute per client IP; 0 disables limiting
	RateLimit int
	// PreviewBaseURL is where the print preview page of a report is served
	PreviewBaseURL string
}

// StorageConfig locates generated files and the record database
type StorageConfig struct {
	PDFDir        string
	LogoDir       string
	FontDir       string
	DatabaseDir   string
	InMemory      bool
	RetentionDays int
	SweepInterval time.Duration
}

// FontAsset is one downloadable font
type FontAsset struct {
	Role        string
	Filename    string
	URL         string
	BackupURL   string
	Description string
}

// FontsConfig controls the font resolver
type FontsConfig struct {
	MinSize         int64
	RetryMax        int
	Timeout         time.Duration
	SystemFallbacks []string
	// Assets replaces the built-in font list when non-empty
	Assets []FontAsset
}

// RendererConfig controls the external preview converter
type RendererConfig struct {
	Enabled bool
	Binary  string
	Timeout time.Duration
}

// ServicesConfig locates the divination services
type ServicesConfig struct {
	KyuseiURL       string
	SeimeiURL       string
	Timeout         time.Duration
	RetryMax        int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// LoggingConfig selects the log sink
type LoggingConfig struct {
	Level  string
	Format string
	// File is an optional append-only log file written alongside stderr
	File string
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit:       120,
			PreviewBaseURL:  "http://localhost:3000/kantei/preview",
		},
		Storage: StorageConfig{
			PDFDir:        "data/pdfs",
			LogoDir:       "data/logos",
			FontDir:       "data/fonts",
			DatabaseDir:   "data/db",
			RetentionDays: 30,
			SweepInterval: 24 * time.Hour,
		},
		Fonts: FontsConfig{
			MinSize:  1000,
			RetryMax: 2,
			Timeout:  60 * time.Second,
		},
		Renderer: RendererConfig{
			Enabled: true,
			Binary:  "wkhtmltopdf",
			Timeout: 30 * time.Second,
		},
		Services: ServicesConfig{
			KyuseiURL:       "http://localhost:8001",
			SeimeiURL:       "http://localhost:8002",
			Timeout:         30 * time.Second,
			RetryMax:        2,
			BreakerFailures: 5,
			BreakerTimeout:  time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and decodes the file at path. An empty path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return LoadBytes(src, path)
}

// LoadBytes decodes HCL source; filename is used in diagnostics only
func LoadBytes(src []byte, filename string) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("HCL parse errors: %s", diags.Error())
	}

	var f fileSchema
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &f); diags.HasErrors() {
		return Config{}, fmt.Errorf("invalid config: %s", diags.Error())
	}

	cfg := Default()
	if err := f.apply(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that have no usable interpretation
func (c Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage.retention_days must not be negative")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	seen := make(map[string]bool, len(c.Fonts.Assets))
	for _, a := range c.Fonts.Assets {
		if a.Filename == "" {
			return fmt.Errorf("font %q: filename is required", a.Role)
		}
		if seen[a.Role] {
			return fmt.Errorf("font %q declared twice", a.Role)
		}
		seen[a.Role] = true
	}
	return nil
}

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{Functions: functions()}
}
