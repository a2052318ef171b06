// Package docx writes the flow report as a WordprocessingML package.
//
// The package is assembled directly with archive/zip. Every entry carries the same fixed
// modification time, so equal input and clock produce byte-identical documents.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/interfaces"
	"github.com/ankek/unmeiori/internal/metrics"
	"github.com/ankek/unmeiori/internal/report"
)

const documentTitle = "総合鑑定書"

// zipEpoch is the earliest time a zip header can express
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Options configures a Builder
type Options struct {
	Diagrams interfaces.DiagramRenderer
	Logger   zerolog.Logger
}

// Builder produces flow documents
type Builder struct {
	diagrams interfaces.DiagramRenderer
	log      zerolog.Logger
}

// New creates a Builder
func New(opts Options) *Builder {
	return &Builder{diagrams: opts.Diagrams, log: opts.Logger}
}

// Build renders a composite report. An undecodable diagram becomes a placeholder paragraph;
// only packaging failures and panics are returned as errors.
func (b *Builder) Build(ctx context.Context, data report.CompositeReportData, now time.Time) (asset report.RenderedAsset, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("flow document panic: %v", rec)
		}
		if err != nil {
			metrics.ObserveBuild("docx", "failed", start)
		}
	}()

	d := &document{ctx: ctx, diagrams: b.diagrams}
	for _, blk := range report.ComposeFlow(data, now) {
		if err := ctx.Err(); err != nil {
			return report.RenderedAsset{}, err
		}
		d.block(blk)
	}

	out, err := pack(d, now)
	if err != nil {
		return report.RenderedAsset{}, fmt.Errorf("failed to package flow document: %w", err)
	}

	outcome := "ok"
	if len(d.degraded) > 0 {
		outcome = "degraded"
		metrics.RecordDegradations(d.degraded)
		b.log.Debug().Int("degradations", len(d.degraded)).Msg("Flow document built with substitutions")
	}
	metrics.ObserveBuild("docx", outcome, start)

	return report.RenderedAsset{
		Bytes:        out,
		ContentType:  report.ContentFlowDocument,
		Filename:     report.Filename(report.FilePrefix, data.Form.Name, now, report.VariantNone, "docx"),
		Degradations: d.degraded,
	}, nil
}

type part struct {
	name string
	data []byte
}

func pack(d *document, now time.Time) ([]byte, error) {
	parts := []part{
		{"[Content_Types].xml", []byte(contentTypes(len(d.media)))},
		{"_rels/.rels", []byte(packageRels())},
		{"docProps/core.xml", []byte(coreProps(documentTitle, now))},
		{"docProps/app.xml", []byte(appProps())},
		{"word/document.xml", []byte(d.documentXML())},
		{"word/styles.xml", []byte(styles())},
		{"word/footer1.xml", []byte(d.footerXML())},
		{"word/_rels/document.xml.rels", []byte(documentRels(len(d.media)))},
	}
	for i, m := range d.media {
		parts = append(parts, part{"word/media/" + imageName(i+1), m})
	}

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, p := range parts {
		method := zip.Deflate
		if strings.HasSuffix(p.name, ".png") {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: method, Modified: zipEpoch})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(p.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
