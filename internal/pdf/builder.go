// Package pdf builds the paginated A4 report with go-pdf/fpdf.
//
// The builder prefers the resolved CJK font. When no font can be loaded, or the CJK build
// fails at output time, it produces the same document with the Helvetica core font and
// records the substitution instead of failing.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/fonts"
	"github.com/ankek/unmeiori/internal/interfaces"
	"github.com/ankek/unmeiori/internal/metrics"
	"github.com/ankek/unmeiori/internal/report"
)

const (
	marginMM = 20.0
	family   = "NotoSansJP"
	core     = "Helvetica"
)

// Options configures a Builder
type Options struct {
	Fonts    interfaces.FontSource
	Diagrams interfaces.DiagramRenderer
	Logger   zerolog.Logger
}

// Builder produces paginated documents. It holds no per-document state.
type Builder struct {
	fonts    interfaces.FontSource
	diagrams interfaces.DiagramRenderer
	log      zerolog.Logger
}

// New creates a Builder
func New(opts Options) *Builder {
	return &Builder{fonts: opts.Fonts, diagrams: opts.Diagrams, log: opts.Logger}
}

// fontSet is the CJK font data registered with each document
type fontSet struct {
	regular []byte
	bold    []byte
}

// job carries everything one render pass needs
type job struct {
	blocks   []report.Block
	fonts    *fontSet
	palette  report.Palette
	title    string
	author   string
	now      time.Time
	compress bool
}

// Build renders a report. Font or image problems degrade the output; only a failure of the
// core-font rerun is returned as an error.
func (b *Builder) Build(ctx context.Context, result report.ReportResult, tmpl report.TemplateSettings, now time.Time) (report.RenderedAsset, error) {
	start := time.Now()
	var degraded []report.Degradation

	if tmpl.IncludeLogo && tmpl.LogoPath != "" {
		if _, err := os.Stat(tmpl.LogoPath); err != nil {
			degraded = append(degraded, report.Degrade(report.ReasonLogoUnavailable, err.Error()))
			tmpl.LogoPath = ""
		}
	}

	fs, fontDeg := b.loadFonts(ctx)
	degraded = append(degraded, fontDeg...)

	j := job{
		blocks:   report.ComposePaginated(result, tmpl, now),
		fonts:    fs,
		palette:  report.PaletteFor(tmpl.Theme),
		title:    "鑑定書",
		author:   tmpl.BusinessName,
		now:      now,
		// Core-font output is tiny; it stays uncompressed
		compress: fs != nil,
	}

	data, renderDeg, err := b.render(ctx, j)
	if err != nil && fs != nil && ctx.Err() == nil {
		b.log.Warn().Err(err).Msg("CJK PDF build failed, retrying with core font")
		degraded = append(degraded, report.Degrade(report.ReasonFontRejected, err.Error()))
		j.fonts = nil
		j.compress = false
		data, renderDeg, err = b.render(ctx, j)
	}
	if err != nil {
		metrics.ObserveBuild("pdf", "failed", start)
		return report.RenderedAsset{}, fmt.Errorf("failed to build PDF: %w", err)
	}
	degraded = append(degraded, renderDeg...)

	outcome := "ok"
	if len(degraded) > 0 {
		outcome = "degraded"
		metrics.RecordDegradations(degraded)
	}
	metrics.ObserveBuild("pdf", outcome, start)

	return report.RenderedAsset{
		Bytes:        data,
		ContentType:  report.ContentPDF,
		Filename:     report.Filename(report.FilePrefix, result.Client.FullName(), now, report.VariantNone, "pdf"),
		Degradations: degraded,
	}, nil
}

// BuildMinimal renders the fallback notice for reportID. Without a usable CJK font it
// produces the English notice with the core font.
func (b *Builder) BuildMinimal(ctx context.Context, reportID string, now time.Time) (report.RenderedAsset, error) {
	start := time.Now()
	fs, degraded := b.loadFonts(ctx)

	j := job{
		blocks:   report.MinimalBlocks(reportID),
		fonts:    fs,
		palette:  report.PaletteFor(""),
		title:    "鑑定書",
		now:      now,
		compress: true,
	}

	var data []byte
	var err error
	if fs != nil {
		data, _, err = b.render(ctx, j)
		if err != nil {
			b.log.Warn().Err(err).Msg("Minimal CJK PDF failed, using English notice")
		}
	}
	if fs == nil || err != nil {
		degraded = append(degraded, report.Degrade(report.ReasonMinimalCoreFont, "english notice"))
		j.blocks = report.MinimalBlocksASCII(reportID)
		j.fonts = nil
		j.title = "Kantei Report"
		// Plain text keeps the notice greppable
		j.compress = false
		data, _, err = b.render(ctx, j)
	}
	if err != nil {
		metrics.ObserveBuild("minimal", "failed", start)
		return report.RenderedAsset{}, fmt.Errorf("failed to build minimal PDF: %w", err)
	}

	metrics.RecordDegradations(degraded)
	outcome := "ok"
	if len(degraded) > 0 {
		outcome = "degraded"
	}
	metrics.ObserveBuild("minimal", outcome, start)

	return report.RenderedAsset{
		Bytes:        data,
		ContentType:  report.ContentPDF,
		Filename:     report.Filename(report.FilePrefix, reportID, now, report.VariantFallback, "pdf"),
		Degradations: degraded,
	}, nil
}

// loadFonts fetches the CJK font bytes. A missing bold face reuses the regular one.
func (b *Builder) loadFonts(ctx context.Context) (*fontSet, []report.Degradation) {
	if b.fonts == nil {
		return nil, []report.Degradation{report.Degrade(report.ReasonFontUnavailable, "no font source configured")}
	}
	regular, err := b.fonts.Load(ctx, fonts.RoleRegular)
	if err != nil {
		b.log.Warn().Err(err).Msg("CJK font unavailable, using core font")
		return nil, []report.Degradation{report.Degrade(report.ReasonFontUnavailable, err.Error())}
	}
	bold, err := b.fonts.Load(ctx, fonts.RoleBold)
	if err != nil {
		b.log.Debug().Err(err).Msg("Bold font unavailable, reusing regular")
		bold = regular
	}
	return &fontSet{regular: regular, bold: bold}, nil
}

// render runs one pass over the blocks. Panics inside fpdf are returned as errors.
func (b *Builder) render(ctx context.Context, j job) (out []byte, degraded []report.Degradation, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, degraded = nil, nil
			err = fmt.Errorf("pdf render panic: %v", rec)
		}
	}()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(true, marginMM)
	pdf.SetCompression(j.compress)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(j.now)
	pdf.SetModificationDate(j.now)
	pdf.SetCreator("unmeiori", false)

	w := &writer{
		pdf:      pdf,
		ctx:      ctx,
		palette:  j.palette,
		diagrams: b.diagrams,
	}
	if j.fonts != nil {
		pdf.AddUTF8FontFromBytes(family, "", j.fonts.regular)
		pdf.AddUTF8FontFromBytes(family, "B", j.fonts.bold)
		if pdf.Err() {
			return nil, nil, fmt.Errorf("failed to register font: %w", pdf.Error())
		}
		w.family = family
		w.text = func(s string) string { return s }
		pdf.SetTitle(j.title, true)
		pdf.SetAuthor(j.author, true)
	} else {
		w.family = core
		w.text = latin1
		pdf.SetTitle(latin1(j.title), false)
		pdf.SetAuthor(latin1(j.author), false)
	}

	pdf.SetFooterFunc(w.pageFooter)
	pdf.AddPage()

	for _, blk := range j.blocks {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		w.block(blk)
		if pdf.Err() {
			return nil, nil, pdf.Error()
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), w.degraded, nil
}
