// Package interfaces defines interfaces for dependency injection and testing
package interfaces

import (
	"context"
	"time"

	"github.com/ankek/unmeiori/internal/fonts"
	"github.com/ankek/unmeiori/internal/report"
	"github.com/ankek/unmeiori/internal/storage"
)

// FontSource supplies raw font bytes for a role
type FontSource interface {
	Load(ctx context.Context, role fonts.Role) ([]byte, error)
}

// FontResolver manages the on-disk font cache
type FontResolver interface {
	FontSource
	Resolve(ctx context.Context, role fonts.Role) (string, error)
	ListAvailable() []fonts.Status
	CleanupIncomplete() (int, error)
	EnsureReady(ctx context.Context)
}

// DiagramRenderer rasterizes the directional diagram. It never fails.
type DiagramRenderer interface {
	Render(ctx context.Context, data report.DirectionalDiagramData, width, height int) report.RenderedImage
}

// PaginatedBuilder produces the fixed-layout A4 document
type PaginatedBuilder interface {
	Build(ctx context.Context, result report.ReportResult, tmpl report.TemplateSettings, now time.Time) (report.RenderedAsset, error)
	BuildMinimal(ctx context.Context, id string, now time.Time) (report.RenderedAsset, error)
}

// FlowBuilder produces the editable flow document
type FlowBuilder interface {
	Build(ctx context.Context, data report.CompositeReportData, now time.Time) (report.RenderedAsset, error)
}

// PreviewRenderer converts a rendered page at url into a PDF at outputPath
type PreviewRenderer interface {
	Name() string
	Render(ctx context.Context, url, outputPath string) error
}

// ContentStore persists generated documents by file name
type ContentStore interface {
	Path(name string) (string, error)
	Write(name string, data []byte) (string, error)
	Read(name string) ([]byte, error)
	Exists(name string) bool
	Stat(name string) (storage.FileInfo, error)
	Delete(name string) (bool, error)
	Sweep(cutoff time.Time, suffix string) (int, error)
}

// RecordStore persists report records
type RecordStore interface {
	Get(ctx context.Context, id string) (*report.Record, error)
	Put(ctx context.Context, rec *report.Record) error
	Update(ctx context.Context, id string, fn func(*report.Record) error) (*report.Record, error)
	List(ctx context.Context, operatorID string) ([]*report.Record, error)
}

// TemplateStore persists per-operator branding
type TemplateStore interface {
	Template(ctx context.Context, operatorID string) (*report.TemplateSettings, error)
	SaveTemplate(ctx context.Context, t *report.TemplateSettings) error
}

// CalendarService computes natal stars and favorable directions from a birth date
type CalendarService interface {
	Compute(ctx context.Context, birthDate string) (*report.CalendarResult, report.Directions, error)
}

// NameService computes the stroke-count name analysis
type NameService interface {
	Compute(ctx context.Context, surname, givenName string) (*report.NameAnalysisResult, error)
}
