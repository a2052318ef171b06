package preview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrBinaryNotFound means the converter is not installed
	ErrBinaryNotFound = errors.New("preview renderer binary not found")
	// ErrDisabled is returned by DisabledRenderer
	ErrDisabled = errors.New("preview renderer disabled")
	// ErrEmptyOutput means the converter exited cleanly without producing a document
	ErrEmptyOutput = errors.New("preview renderer produced no output")
)

// DefaultBinary is the converter looked up on PATH
const DefaultBinary = "wkhtmltopdf"

const maxStderr = 512

// PrintArgs are the fixed print parameters: A4, 5 mm top margin, 15 mm elsewhere, print media
func PrintArgs(url, outputPath string) []string {
	return []string{
		"--page-size", "A4",
		"--margin-top", "5mm",
		"--margin-bottom", "15mm",
		"--margin-left", "15mm",
		"--margin-right", "15mm",
		"--print-media-type",
		"--quiet",
		url,
		outputPath,
	}
}

// ProcessRenderer runs an HTML-to-PDF converter binary
type ProcessRenderer struct {
	binary string
	log    zerolog.Logger
}

// NewProcessRenderer creates a renderer for binary; an empty name selects DefaultBinary
func NewProcessRenderer(binary string, log zerolog.Logger) *ProcessRenderer {
	if binary == "" {
		binary = DefaultBinary
	}
	return &ProcessRenderer{binary: binary, log: log}
}

// Name returns the binary name
func (p *ProcessRenderer) Name() string {
	return filepath.Base(p.binary)
}

// Available reports whether the binary can be found
func (p *ProcessRenderer) Available() bool {
	_, err := exec.LookPath(p.binary)
	return err == nil
}

// Render converts url into a PDF at outputPath. Success requires exit status 0 and a non-empty file.
func (p *ProcessRenderer) Render(ctx context.Context, url, outputPath string) error {
	path, err := exec.LookPath(p.binary)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBinaryNotFound, p.binary)
	}

	cmd := exec.CommandContext(ctx, path, PrintArgs(url, outputPath)...)
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return fmt.Errorf("%s interrupted after %s: %w", p.Name(), time.Since(start).Round(time.Millisecond), ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with status %d: %s", p.Name(), exitErr.ExitCode(), clip(out))
		}
		return fmt.Errorf("failed to run %s: %w", p.Name(), err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return ErrEmptyOutput
	}

	p.log.Debug().
		Str("binary", p.Name()).
		Int64("bytes", info.Size()).
		Dur("duration", time.Since(start)).
		Msg("Preview converted")
	return nil
}

func clip(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxStderr {
		s = s[:maxStderr] + "..."
	}
	return s
}

// DisabledRenderer always fails, sending every request to the fallback document
type DisabledRenderer struct{}

// Name returns "disabled"
func (DisabledRenderer) Name() string { return "disabled" }

// Render returns ErrDisabled
func (DisabledRenderer) Render(context.Context, string, string) error { return ErrDisabled }
