// Package logging builds the zerolog logger injected into every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, format and an optional log file
type Config struct {
	// Level is trace, debug, info, warn or error. Default: info
	Level string
	// Format is json or console. Default: json
	Format string
	// File, when set, receives a JSON copy of every entry
	File string
	// Output is the primary writer. Default: os.Stderr
	Output io.Writer
}

// New returns a configured logger and a function that closes the log file, if any.
// A file that cannot be opened is skipped with a notice on the primary writer.
func New(cfg Config) (zerolog.Logger, func()) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var primary io.Writer = cfg.Output
	if strings.EqualFold(cfg.Format, "console") {
		primary = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	closeFn := func() {}
	out := primary
	if cfg.File != "" {
		f, err := openLogFile(cfg.File)
		if err != nil {
			fmt.Fprintf(cfg.Output, "logging: file sink disabled: %v\n", err)
		} else {
			out = zerolog.MultiLevelWriter(primary, f)
			closeFn = func() { _ = f.Close() }
		}
	}

	logger := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	return logger, closeFn
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// ParseLevel converts a level name; unknown names map to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
