// Package renderer draws the directional star diagram. The same scene is serialized as SVG
// or rasterized to PNG, and a placeholder diagram replaces any input that cannot be drawn.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/sync/singleflight"

	"github.com/ankek/unmeiori/internal/fonts"
	"github.com/ankek/unmeiori/internal/interfaces"
	"github.com/ankek/unmeiori/internal/report"
)

const (
	DefaultWidth  = 400
	DefaultHeight = 400
	MaxDimension  = 4096
)

// fontRetry is how long a failed font load is remembered before trying again
const fontRetry = 5 * time.Minute

// Options configures a Renderer
type Options struct {
	Fonts  interfaces.FontSource
	Logger zerolog.Logger
}

// Renderer produces diagram images. It is safe for concurrent use.
type Renderer struct {
	fonts interfaces.FontSource
	log   zerolog.Logger

	loads    singleflight.Group
	mu       sync.Mutex
	font     *sfnt.Font
	failedAt time.Time
}

// New creates a Renderer. A nil font source draws labels with the built-in bitmap face.
func New(opts Options) *Renderer {
	return &Renderer{fonts: opts.Fonts, log: opts.Logger}
}

// SVG returns the vector document for data. Invalid data yields the placeholder document
// together with the validation error.
func (r *Renderer) SVG(data report.DirectionalDiagramData) ([]byte, error) {
	s, err := buildScene(data)
	if err != nil {
		return NewSVGRenderer().Render(placeholderScene()), err
	}
	return NewSVGRenderer().Render(s), nil
}

// Render rasterizes data at width x height. It never fails: invalid data, an invalid size
// or an internal fault produce the placeholder image and a degradation.
func (r *Renderer) Render(ctx context.Context, data report.DirectionalDiagramData, width, height int) (out report.RenderedImage) {
	var degraded []report.Degradation
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		degraded = append(degraded, report.Degrade(report.ReasonDiagramPlaceholder,
			fmt.Sprintf("invalid size %dx%d", width, height)))
		width, height = DefaultWidth, DefaultHeight
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("Diagram rendering panicked")
			out = r.placeholder(width, height, append(degraded,
				report.Degrade(report.ReasonDiagramPlaceholder, fmt.Sprintf("render fault: %v", rec))))
		}
	}()

	if len(degraded) > 0 {
		return r.placeholder(width, height, degraded)
	}

	s, err := buildScene(data)
	if err != nil {
		r.log.Warn().Err(err).Msg("Diagram data rejected, drawing placeholder")
		return r.placeholder(width, height, []report.Degradation{
			report.Degrade(report.ReasonDiagramPlaceholder, err.Error()),
		})
	}

	f, fontDeg := r.loadFont(ctx)
	if fontDeg != nil {
		degraded = append(degraded, *fontDeg)
	}

	pngBytes, err := NewPNGRenderer(f).Render(s, width, height)
	if err != nil {
		return r.placeholder(width, height, append(degraded,
			report.Degrade(report.ReasonDiagramPlaceholder, err.Error())))
	}

	return report.RenderedImage{
		PNG:          pngBytes,
		Width:        width,
		Height:       height,
		Degradations: degraded,
	}
}

// placeholder draws the fixed fallback diagram. Its labels use the bitmap face so it
// depends on nothing that may have failed.
func (r *Renderer) placeholder(width, height int, degraded []report.Degradation) report.RenderedImage {
	pngBytes, err := NewPNGRenderer(nil).Render(placeholderScene(), width, height)
	if err != nil {
		pngBytes = blankPNG(width, height)
	}
	return report.RenderedImage{
		PNG:          pngBytes,
		Width:        width,
		Height:       height,
		Placeholder:  true,
		Degradations: degraded,
	}
}

// loadFont returns the parsed regular font, or nil with a degradation when none is usable.
// Concurrent callers share one load; a caller whose context ends stops waiting for it.
func (r *Renderer) loadFont(ctx context.Context) (*sfnt.Font, *report.Degradation) {
	if r.fonts == nil {
		d := report.Degrade(report.ReasonFontUnavailable, "no font source configured")
		return nil, &d
	}

	r.mu.Lock()
	f, failedAt := r.font, r.failedAt
	r.mu.Unlock()
	if f != nil {
		return f, nil
	}
	if !failedAt.IsZero() && time.Since(failedAt) < fontRetry {
		d := report.Degrade(report.ReasonFontUnavailable, "font load failed recently")
		return nil, &d
	}

	ch := r.loads.DoChan(string(fonts.RoleRegular), func() (any, error) {
		return r.fetchFont(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		l := res.Val.(fontLoad)
		return l.font, l.deg
	case <-ctx.Done():
		d := report.Degrade(report.ReasonFontUnavailable, ctx.Err().Error())
		return nil, &d
	}
}

type fontLoad struct {
	font *sfnt.Font
	deg  *report.Degradation
}

// fetchFont loads and parses the font without holding the lock
func (r *Renderer) fetchFont(ctx context.Context) fontLoad {
	data, err := r.fonts.Load(ctx, fonts.RoleRegular)
	if err != nil {
		r.markFailed()
		r.log.Warn().Err(err).Msg("Diagram font unavailable, using bitmap face")
		d := report.Degrade(report.ReasonFontUnavailable, err.Error())
		return fontLoad{deg: &d}
	}
	f, err := opentype.Parse(data)
	if err != nil {
		r.markFailed()
		r.log.Warn().Err(err).Msg("Diagram font rejected, using bitmap face")
		d := report.Degrade(report.ReasonFontRejected, err.Error())
		return fontLoad{deg: &d}
	}

	r.mu.Lock()
	r.font = f
	r.failedAt = time.Time{}
	r.mu.Unlock()
	return fontLoad{font: f}
}

func (r *Renderer) markFailed() {
	r.mu.Lock()
	r.failedAt = time.Now()
	r.mu.Unlock()
}

func blankPNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	buf := &bytes.Buffer{}
	_ = png.Encode(buf, img)
	return buf.Bytes()
}
