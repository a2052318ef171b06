// Package preview turns a print preview page into a stored PDF.
//
// The chain first asks an external converter for the document. Any failure of that step,
// including a missing binary, a timeout or a panic, moves to the minimal fallback PDF.
// Neither step is retried.
package preview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/interfaces"
	"github.com/ankek/unmeiori/internal/metrics"
	"github.com/ankek/unmeiori/internal/report"
)

// DefaultTimeout bounds one external conversion
const DefaultTimeout = 30 * time.Second

// State is a step of the chain
type State string

const (
	StateAttemptExternal State = "attempt_external"
	StateFallbackMinimal State = "fallback_minimal"
	StateDone            State = "done"
)

// MinimalBuilder produces the fallback notice
type MinimalBuilder interface {
	BuildMinimal(ctx context.Context, id string, now time.Time) (report.RenderedAsset, error)
}

// Store receives the finished document
type Store interface {
	Write(name string, data []byte) (string, error)
}

// Result describes where the chain ended
type Result struct {
	Path         string
	Filename     string
	Size         int64
	Variant      report.Variant
	States       []State
	Degradations []report.Degradation
}

// Options configures a Chain
type Options struct {
	Renderer interfaces.PreviewRenderer
	Minimal  MinimalBuilder
	Store    Store
	Timeout  time.Duration
	Clock    func() time.Time
	Logger   zerolog.Logger
}

// Chain runs the external-then-fallback sequence
type Chain struct {
	renderer interfaces.PreviewRenderer
	minimal  MinimalBuilder
	store    Store
	timeout  time.Duration
	clock    func() time.Time
	log      zerolog.Logger
}

// NewChain creates a Chain. A nil renderer behaves like DisabledRenderer.
func NewChain(opts Options) *Chain {
	c := &Chain{
		renderer: opts.Renderer,
		minimal:  opts.Minimal,
		store:    opts.Store,
		timeout:  opts.Timeout,
		clock:    opts.Clock,
		log:      opts.Logger,
	}
	if c.renderer == nil {
		c.renderer = DisabledRenderer{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	return c
}

// Render produces the document for reportID from previewURL. It fails only when the fallback
// cannot be built or stored.
func (c *Chain) Render(ctx context.Context, reportID, previewURL string) (Result, error) {
	now := c.clock()
	res := Result{States: []State{StateAttemptExternal}}

	name := report.Filename(report.FilePrefix, reportID, now, report.VariantPreview, "pdf")
	path, size, err := c.external(ctx, previewURL, name)
	if err == nil {
		res.Path, res.Filename, res.Size, res.Variant = path, name, size, report.VariantPreview
		res.States = append(res.States, StateDone)
		metrics.PreviewOutcomes.WithLabelValues("external").Inc()
		c.log.Info().Str("report_id", reportID).Str("file", name).Msg("Preview PDF rendered")
		return res, nil
	}
	if ctx.Err() != nil {
		metrics.PreviewOutcomes.WithLabelValues("failed").Inc()
		return res, ctx.Err()
	}

	reason := report.ReasonRendererFailed
	if errors.Is(err, ErrBinaryNotFound) || errors.Is(err, ErrDisabled) {
		reason = report.ReasonRendererUnavailable
	}
	res.Degradations = append(res.Degradations, report.Degrade(reason, err.Error()))
	res.States = append(res.States, StateFallbackMinimal)
	c.log.Warn().Err(err).Str("report_id", reportID).Str("renderer", c.renderer.Name()).
		Msg("Preview conversion failed, writing fallback PDF")

	asset, err := c.minimal.BuildMinimal(ctx, reportID, now)
	if err != nil {
		metrics.PreviewOutcomes.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("failed to build fallback PDF: %w", err)
	}
	path, err = c.store.Write(asset.Filename, asset.Bytes)
	if err != nil {
		metrics.PreviewOutcomes.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("failed to store fallback PDF: %w", err)
	}

	res.Path, res.Filename, res.Size, res.Variant = path, asset.Filename, int64(len(asset.Bytes)), report.VariantFallback
	res.Degradations = append(res.Degradations, asset.Degradations...)
	res.States = append(res.States, StateDone)
	metrics.PreviewOutcomes.WithLabelValues("fallback").Inc()
	metrics.RecordDegradations(res.Degradations)
	return res, nil
}

// external converts into a scratch directory and moves the result into the store
func (c *Chain) external(ctx context.Context, url, name string) (path string, size int64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("preview renderer panic: %v", rec)
		}
	}()

	scratch, err := os.MkdirTemp("", "unmeiori-preview-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out := filepath.Join(scratch, "preview.pdf")
	if err := c.renderer.Render(rctx, url, out); err != nil {
		return "", 0, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read converted PDF: %w", err)
	}
	if len(data) == 0 {
		return "", 0, ErrEmptyOutput
	}
	path, err = c.store.Write(name, data)
	if err != nil {
		return "", 0, err
	}
	return path, int64(len(data)), nil
}
