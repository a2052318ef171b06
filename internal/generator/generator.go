// Package generator orchestrates report computation, document generation and maintenance of
// the generated files. Every operation reports a Kind: degraded documents succeed, missing
// records are fatal, and panics inside assembly are recovered as unexpected failures.
package generator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ankek/unmeiori/internal/interfaces"
	"github.com/ankek/unmeiori/internal/preview"
	"github.com/ankek/unmeiori/internal/report"
	"github.com/ankek/unmeiori/internal/storage"
	"github.com/ankek/unmeiori/internal/validation"
)

// DefaultRetentionDays is the age after which generated PDFs are swept
const DefaultRetentionDays = 30

// PreviewChain renders a print preview into a stored PDF
type PreviewChain interface {
	Render(ctx context.Context, reportID, previewURL string) (preview.Result, error)
}

// Options wires the collaborators of a Generator. Calendar, Names and Preview may be nil.
type Options struct {
	Records       interfaces.RecordStore
	Templates     interfaces.TemplateStore
	Content       interfaces.ContentStore
	PDF           interfaces.PaginatedBuilder
	Flow          interfaces.FlowBuilder
	Preview       PreviewChain
	Calendar      interfaces.CalendarService
	Names         interfaces.NameService
	RetentionDays int
	// LogoDir resolves relative template logo paths
	LogoDir string
	Clock   func() time.Time
	Logger  zerolog.Logger
}

// Generator runs the report flows
type Generator struct {
	records   interfaces.RecordStore
	templates interfaces.TemplateStore
	content   interfaces.ContentStore
	pdf       interfaces.PaginatedBuilder
	flow      interfaces.FlowBuilder
	preview   PreviewChain
	calendar  interfaces.CalendarService
	names     interfaces.NameService
	retention int
	logoDir   string
	clock     func() time.Time
	log       zerolog.Logger
}

// New creates a Generator
func New(opts Options) *Generator {
	g := &Generator{
		records:   opts.Records,
		templates: opts.Templates,
		content:   opts.Content,
		pdf:       opts.PDF,
		flow:      opts.Flow,
		preview:   opts.Preview,
		calendar:  opts.Calendar,
		names:     opts.Names,
		retention: opts.RetentionDays,
		logoDir:   opts.LogoDir,
		clock:     opts.Clock,
		log:       opts.Logger.With().Str("component", "generator").Logger(),
	}
	if g.retention <= 0 {
		g.retention = DefaultRetentionDays
	}
	if g.clock == nil {
		g.clock = time.Now
	}
	return g
}

// CalculateRequest is the input of a new report
type CalculateRequest struct {
	OperatorID string                         `json:"-"`
	Client     report.ClientInfo              `json:"client"`
	Diagram    *report.DirectionalDiagramData `json:"diagram,omitempty"`
	Comment    string                         `json:"comment,omitempty" validate:"max=200"`
}

// Calculation is a stored report plus the sections that could not be computed
type Calculation struct {
	Record  *report.Record `json:"record"`
	Kind    Kind           `json:"kind,omitempty"`
	Missing []string       `json:"missing,omitempty"`
}

// Calculate runs both divination computations concurrently and stores the combined result.
// A failing or unconfigured service leaves its section absent.
func (g *Generator) Calculate(ctx context.Context, req CalculateRequest) (*Calculation, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	result := report.ReportResult{
		Client:  req.Client,
		Diagram: req.Diagram,
		Comment: strings.TrimSpace(req.Comment),
	}
	log := g.log.With().Str("client", req.Client.FullName()).Logger()

	var eg errgroup.Group
	if g.calendar != nil {
		eg.Go(func() error {
			cal, dirs, err := g.calendar.Compute(ctx, req.Client.BirthDate)
			if err != nil {
				log.Warn().Err(err).Msg("Calendar computation failed, section omitted")
				return nil
			}
			result.Calendar, result.Directions = cal, dirs
			return nil
		})
	}
	if g.names != nil {
		eg.Go(func() error {
			names, err := g.names.Compute(ctx, req.Client.Surname, req.Client.GivenName)
			if err != nil {
				log.Warn().Err(err).Msg("Name analysis failed, section omitted")
				return nil
			}
			result.Names = names
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := &report.Record{
		ID:         uuid.NewString(),
		OperatorID: req.OperatorID,
		Result:     result,
	}
	if err := g.records.Put(ctx, rec); err != nil {
		return nil, unexpected("calculate", fmt.Errorf("failed to store report: %w", err))
	}

	calc := &Calculation{Record: rec}
	if result.Calendar.Empty() {
		calc.Missing = append(calc.Missing, "calendar")
	}
	if result.Names == nil {
		calc.Missing = append(calc.Missing, "names")
	}
	if len(calc.Missing) > 0 {
		calc.Kind = KindInputIncomplete
	}
	log.Info().Str("report_id", rec.ID).Strs("missing", calc.Missing).Msg("Report calculated")
	return calc, nil
}

// Record returns one stored report
func (g *Generator) Record(ctx context.Context, id string) (*report.Record, error) {
	rec, err := g.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fatal("get report", fmt.Errorf("report %s: %w", id, err))
		}
		return nil, unexpected("get report", err)
	}
	return rec, nil
}

// Records lists an operator's reports, newest first
func (g *Generator) Records(ctx context.Context, operatorID string) ([]*report.Record, error) {
	recs, err := g.records.List(ctx, operatorID)
	if err != nil {
		return nil, unexpected("list reports", err)
	}
	return recs, nil
}

// UpdateComment replaces the operator comment of a report
func (g *Generator) UpdateComment(ctx context.Context, id, comment string) (*report.Record, error) {
	input := struct {
		Comment string `json:"comment" validate:"max=200"`
	}{Comment: strings.TrimSpace(comment)}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	rec, err := g.records.Update(ctx, id, func(r *report.Record) error {
		r.Result.Comment = input.Comment
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fatal("update comment", fmt.Errorf("report %s: %w", id, err))
		}
		return nil, unexpected("update comment", err)
	}
	return rec, nil
}

// GeneratePDF builds the paginated document of a stored report and records its file name
func (g *Generator) GeneratePDF(ctx context.Context, id string) (Outcome, error) {
	rec, err := g.Record(ctx, id)
	if err != nil {
		return Describe(err), err
	}
	tmpl, err := g.templates.Template(ctx, rec.OperatorID)
	if err != nil {
		err = unexpected("generate pdf", fmt.Errorf("failed to load template: %w", err))
		return Describe(err), err
	}

	branding := *tmpl
	if branding.LogoPath != "" && !filepath.IsAbs(branding.LogoPath) && g.logoDir != "" {
		branding.LogoPath = filepath.Join(g.logoDir, filepath.Base(branding.LogoPath))
	}
	result := rec.Result
	result.Comment = report.ClampComment(result.Comment)
	asset, err := g.buildPDF(ctx, result, branding)
	if err != nil {
		return Describe(err), err
	}

	path, err := g.content.Write(asset.Filename, asset.Bytes)
	if err != nil {
		err = unexpected("generate pdf", err)
		return Describe(err), err
	}
	if err := g.markGenerated(ctx, id, asset.Filename); err != nil {
		return Describe(err), err
	}

	out := succeeded("PDF generated", asset.Degradations)
	out.Path, out.Filename, out.Size = path, asset.Filename, int64(len(asset.Bytes))
	g.log.Info().Str("report_id", id).Str("file", asset.Filename).Int("degradations", len(asset.Degradations)).
		Msg("PDF generated")
	return out, nil
}

func (g *Generator) buildPDF(ctx context.Context, result report.ReportResult, tmpl report.TemplateSettings) (asset report.RenderedAsset, err error) {
	defer recoverInto("build pdf", &err)
	asset, err = g.pdf.Build(ctx, result, tmpl, g.clock())
	if err != nil {
		return asset, unexpected("build pdf", err)
	}
	return asset, nil
}

// RenderFromPreview converts the print preview of a report, falling back to the minimal PDF
func (g *Generator) RenderFromPreview(ctx context.Context, id, previewURL string) (Outcome, error) {
	if _, err := g.Record(ctx, id); err != nil {
		return Describe(err), err
	}
	if g.preview == nil {
		err := unexpected("render preview", errors.New("preview rendering is not configured"))
		return Describe(err), err
	}

	res, err := g.renderPreview(ctx, id, previewURL)
	if err != nil {
		return Describe(err), err
	}
	if err := g.markGenerated(ctx, id, res.Filename); err != nil {
		return Describe(err), err
	}

	msg := "PDF rendered from preview"
	if res.Variant == report.VariantFallback {
		msg = "Fallback PDF generated"
	}
	out := succeeded(msg, res.Degradations)
	out.Path, out.Filename, out.Size, out.Variant = res.Path, res.Filename, res.Size, res.Variant
	return out, nil
}

func (g *Generator) renderPreview(ctx context.Context, id, previewURL string) (res preview.Result, err error) {
	defer recoverInto("render preview", &err)
	res, err = g.preview.Render(ctx, id, previewURL)
	if err != nil {
		return res, unexpected("render preview", err)
	}
	return res, nil
}

func (g *Generator) markGenerated(ctx context.Context, id, filename string) error {
	_, err := g.records.Update(ctx, id, func(r *report.Record) error {
		r.PDFGenerated = true
		r.PDFFilename = filename
		return nil
	})
	if err != nil {
		return unexpected("update report", err)
	}
	return nil
}

// BuildFlowDocument renders the editable document directly to the caller
func (g *Generator) BuildFlowDocument(ctx context.Context, data report.CompositeReportData) (asset report.RenderedAsset, err error) {
	if err := validation.Struct(data); err != nil {
		return report.RenderedAsset{}, err
	}
	defer recoverInto("build flow document", &err)

	asset, err = g.flow.Build(ctx, data, g.clock())
	if err != nil {
		return report.RenderedAsset{}, unexpected("build flow document", err)
	}
	return asset, nil
}

// Template returns the operator's branding, created with defaults on first access
func (g *Generator) Template(ctx context.Context, operatorID string) (*report.TemplateSettings, error) {
	t, err := g.templates.Template(ctx, operatorID)
	if err != nil {
		return nil, unexpected("get template", err)
	}
	return t, nil
}

// UpdateTemplate stores new branding for the operator
func (g *Generator) UpdateTemplate(ctx context.Context, operatorID string, t report.TemplateSettings) (*report.TemplateSettings, error) {
	t.OperatorID = operatorID
	if err := validation.Struct(t); err != nil {
		return nil, err
	}
	if err := g.templates.SaveTemplate(ctx, &t); err != nil {
		return nil, unexpected("update template", err)
	}
	return &t, nil
}

// recoverInto converts a panic into an unexpected failure
func recoverInto(op string, err *error) {
	if r := recover(); r != nil {
		*err = unexpected(op, fmt.Errorf("panic: %v", r))
	}
}
