package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/docx"
	"github.com/ankek/unmeiori/internal/pdf"
	"github.com/ankek/unmeiori/internal/preview"
	"github.com/ankek/unmeiori/internal/report"
	"github.com/ankek/unmeiori/internal/storage"
)

var fixedNow = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

type calendarFunc func(ctx context.Context, birthDate string) (*report.CalendarResult, report.Directions, error)

func (f calendarFunc) Compute(ctx context.Context, birthDate string) (*report.CalendarResult, report.Directions, error) {
	return f(ctx, birthDate)
}

type namesFunc func(ctx context.Context, surname, given string) (*report.NameAnalysisResult, error)

func (f namesFunc) Compute(ctx context.Context, surname, given string) (*report.NameAnalysisResult, error) {
	return f(ctx, surname, given)
}

type panickingPDF struct{}

func (panickingPDF) Build(context.Context, report.ReportResult, report.TemplateSettings, time.Time) (report.RenderedAsset, error) {
	panic("layout exploded")
}

func (panickingPDF) BuildMinimal(context.Context, string, time.Time) (report.RenderedAsset, error) {
	panic("layout exploded")
}

type panickingFlow struct{}

func (panickingFlow) Build(context.Context, report.CompositeReportData, time.Time) (report.RenderedAsset, error) {
	panic("zip exploded")
}

func okCalendar() calendarFunc {
	return func(ctx context.Context, birthDate string) (*report.CalendarResult, report.Directions, error) {
		return &report.CalendarResult{Year: &report.Star{Name: "一白水星"}},
			report.Directions{"2026": {Favorable: []string{"北"}}}, nil
	}
}

func okNames() namesFunc {
	return func(ctx context.Context, surname, given string) (*report.NameAnalysisResult, error) {
		return &report.NameAnalysisResult{Aggregates: report.StrokeAggregates{Heaven: 8, Total: 24}}, nil
	}
}

type fixture struct {
	gen     *Generator
	records *storage.MemoryStore
	content *storage.ContentStore
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	records := storage.NewMemoryStore()
	content := storage.NewContentStore(t.TempDir(), zerolog.Nop())
	pdfBuilder := pdf.New(pdf.Options{Logger: zerolog.Nop()})

	opts := Options{
		Records:   records,
		Templates: records,
		Content:   content,
		PDF:       pdfBuilder,
		Flow:      docx.New(docx.Options{Logger: zerolog.Nop()}),
		Preview: preview.NewChain(preview.Options{
			Renderer: preview.DisabledRenderer{},
			Minimal:  pdfBuilder,
			Store:    content,
			Clock:    func() time.Time { return fixedNow },
			Logger:   zerolog.Nop(),
		}),
		Calendar: okCalendar(),
		Names:    okNames(),
		Clock:    func() time.Time { return fixedNow },
		Logger:   zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &fixture{gen: New(opts), records: records, content: content}
}

func validRequest() CalculateRequest {
	return CalculateRequest{
		OperatorID: "op-1",
		Client: report.ClientInfo{
			Surname:   "山田",
			GivenName: "太郎",
			BirthDate: "1990-05-15",
			Gender:    "male",
		},
	}
}

func (f *fixture) calculate(t *testing.T) *report.Record {
	t.Helper()
	calc, err := f.gen.Calculate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	return calc.Record
}

func TestCalculate(t *testing.T) {
	failing := calendarFunc(func(context.Context, string) (*report.CalendarResult, report.Directions, error) {
		return nil, nil, errors.New("service down")
	})
	failingNames := namesFunc(func(context.Context, string, string) (*report.NameAnalysisResult, error) {
		return nil, errors.New("service down")
	})

	tests := []struct {
		name        string
		mutate      func(*Options)
		wantKind    Kind
		wantMissing []string
	}{
		{name: "both services", wantKind: KindNone},
		{
			name:        "calendar fails",
			mutate:      func(o *Options) { o.Calendar = failing },
			wantKind:    KindInputIncomplete,
			wantMissing: []string{"calendar"},
		},
		{
			name:        "names fails",
			mutate:      func(o *Options) { o.Names = failingNames },
			wantKind:    KindInputIncomplete,
			wantMissing: []string{"names"},
		},
		{
			name:        "no services configured",
			mutate:      func(o *Options) { o.Calendar, o.Names = nil, nil },
			wantKind:    KindInputIncomplete,
			wantMissing: []string{"calendar", "names"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mutate)
			calc, err := f.gen.Calculate(context.Background(), validRequest())
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			if calc.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", calc.Kind, tt.wantKind)
			}
			if !slices.Equal(calc.Missing, tt.wantMissing) {
				t.Errorf("Missing = %v, want %v", calc.Missing, tt.wantMissing)
			}

			stored, err := f.records.Get(context.Background(), calc.Record.ID)
			if err != nil {
				t.Fatalf("record not stored: %v", err)
			}
			if stored.OperatorID != "op-1" || stored.Result.Client.FullName() != "山田太郎" {
				t.Errorf("stored record = %+v", stored)
			}
		})
	}
}

func TestCalculateRunsServicesConcurrently(t *testing.T) {
	namesStarted := make(chan struct{})
	f := newFixture(t, func(o *Options) {
		o.Calendar = calendarFunc(func(ctx context.Context, _ string) (*report.CalendarResult, report.Directions, error) {
			select {
			case <-namesStarted:
				return &report.CalendarResult{Day: &report.Star{Name: "九紫火星"}}, nil, nil
			case <-time.After(2 * time.Second):
				return nil, nil, errors.New("name analysis never started")
			}
		})
		o.Names = namesFunc(func(context.Context, string, string) (*report.NameAnalysisResult, error) {
			close(namesStarted)
			return &report.NameAnalysisResult{}, nil
		})
	})

	calc, err := f.gen.Calculate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if calc.Kind != KindNone || calc.Record.Result.Calendar.Empty() {
		t.Errorf("calculation = %+v", calc)
	}
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	req := validRequest()
	req.Client.BirthDate = "15/05/1990"
	req.Comment = strings.Repeat("あ", 201)

	_, err := f.gen.Calculate(context.Background(), req)
	if KindOf(err) != KindInvalid {
		t.Fatalf("KindOf(%v) = %q, want invalid", err, KindOf(err))
	}
	if !strings.Contains(err.Error(), "birth_date") || !strings.Contains(err.Error(), "comment") {
		t.Errorf("error = %v", err)
	}
}

func TestGeneratePDF(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.calculate(t)

	out, err := f.gen.GeneratePDF(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GeneratePDF() error = %v", err)
	}
	// No font source is configured, so the core font is used
	if !out.Success || out.Kind != KindDegraded {
		t.Errorf("outcome = %+v, want degraded success", out)
	}
	if !report.HasReason(out.Degradations, report.ReasonFontUnavailable) {
		t.Errorf("degradations = %v", out.Degradations)
	}
	if want := "kantei_山田太郎_20260301_103000.pdf"; out.Filename != want {
		t.Errorf("Filename = %q, want %q", out.Filename, want)
	}

	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("stored PDF not readable: %v", err)
	}
	if int64(len(data)) != out.Size || !strings.HasPrefix(string(data), "%PDF") {
		t.Errorf("stored %d bytes, outcome says %d", len(data), out.Size)
	}

	stored, _ := f.records.Get(context.Background(), rec.ID)
	if !stored.PDFGenerated || stored.PDFFilename != out.Filename {
		t.Errorf("record not updated: %+v", stored)
	}
}

func TestGeneratePDFFailures(t *testing.T) {
	t.Run("unknown record", func(t *testing.T) {
		f := newFixture(t, nil)
		out, err := f.gen.GeneratePDF(context.Background(), "missing")
		if KindOf(err) != KindFatal || !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("error = %v, want fatal not found", err)
		}
		if out.Success || out.Kind != KindFatal {
			t.Errorf("outcome = %+v", out)
		}
	})

	t.Run("builder panic", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.PDF = panickingPDF{} })
		rec := f.calculate(t)
		out, err := f.gen.GeneratePDF(context.Background(), rec.ID)
		if KindOf(err) != KindUnexpected || !strings.Contains(err.Error(), "layout exploded") {
			t.Errorf("error = %v, want unexpected panic", err)
		}
		if out.Success {
			t.Errorf("outcome = %+v", out)
		}
		stored, _ := f.records.Get(context.Background(), rec.ID)
		if stored.PDFGenerated {
			t.Error("record marked generated after a failed build")
		}
	})
}

func TestRenderFromPreviewFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.calculate(t)

	out, err := f.gen.RenderFromPreview(context.Background(), rec.ID, "http://localhost:3000/kantei/preview/"+rec.ID)
	if err != nil {
		t.Fatalf("RenderFromPreview() error = %v", err)
	}
	if !out.Success || out.Variant != report.VariantFallback {
		t.Errorf("outcome = %+v, want fallback success", out)
	}
	if !report.HasReason(out.Degradations, report.ReasonRendererUnavailable) {
		t.Errorf("degradations = %v", out.Degradations)
	}
	if !strings.HasSuffix(out.Filename, "_fallback.pdf") || !f.content.Exists(out.Filename) {
		t.Errorf("fallback file %q not stored", out.Filename)
	}

	stored, _ := f.records.Get(context.Background(), rec.ID)
	if stored.PDFFilename != out.Filename {
		t.Errorf("PDFFilename = %q, want %q", stored.PDFFilename, out.Filename)
	}
}

func TestPDFInfo(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.calculate(t)
	ctx := context.Background()

	if _, err := f.gen.PDFInfo(ctx, rec.ID); !errors.Is(err, ErrPDFNotGenerated) || KindOf(err) != KindFatal {
		t.Errorf("PDFInfo() before generation error = %v", err)
	}

	out, err := f.gen.GeneratePDF(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	info, err := f.gen.PDFInfo(ctx, rec.ID)
	if err != nil {
		t.Fatalf("PDFInfo() error = %v", err)
	}
	if info.Size != out.Size || info.Filename != out.Filename {
		t.Errorf("info = %+v, outcome = %+v", info, out)
	}
	if !info.ExpiresAt.Equal(info.CreatedAt.Add(365 * 24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, CreatedAt = %v", info.ExpiresAt, info.CreatedAt)
	}

	if err := os.Remove(out.Path); err != nil {
		t.Fatal(err)
	}
	if _, err := f.gen.PDFInfo(ctx, rec.ID); !errors.Is(err, ErrPDFMissing) || KindOf(err) != KindFatal {
		t.Errorf("PDFInfo() after removal error = %v", err)
	}
}

func TestOpenAndDeletePDF(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.calculate(t)
	ctx := context.Background()

	out, err := f.gen.GeneratePDF(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	data, name, err := f.gen.OpenPDF(ctx, rec.ID)
	if err != nil {
		t.Fatalf("OpenPDF() error = %v", err)
	}
	if name != out.Filename || int64(len(data)) != out.Size {
		t.Errorf("OpenPDF() = %d bytes %q", len(data), name)
	}

	removed, err := f.gen.DeletePDF(ctx, rec.ID)
	if err != nil || !removed {
		t.Fatalf("DeletePDF() = %v, %v", removed, err)
	}
	if f.content.Exists(out.Filename) {
		t.Error("file still present")
	}
	stored, _ := f.records.Get(ctx, rec.ID)
	if stored.PDFGenerated || stored.PDFFilename != "" {
		t.Errorf("record still references the PDF: %+v", stored)
	}

	removed, err = f.gen.DeletePDF(ctx, rec.ID)
	if err != nil || removed {
		t.Errorf("second DeletePDF() = %v, %v", removed, err)
	}
	if _, _, err := f.gen.OpenPDF(ctx, rec.ID); KindOf(err) != KindFatal {
		t.Errorf("OpenPDF() after delete error = %v", err)
	}
}

func TestCleanupOld(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Clock = time.Now
		o.RetentionDays = 30
	})

	now := time.Now()
	files := map[string]time.Time{
		"kantei_old.pdf":    now.AddDate(0, 0, -40),
		"kantei_recent.pdf": now.AddDate(0, 0, -10),
		"notes_old.txt":     now.AddDate(0, 0, -40),
	}
	for name, mtime := range files {
		path, err := f.content.Write(name, []byte("data"))
		if err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := f.gen.CleanupOld(context.Background(), 0)
	if err != nil {
		t.Fatalf("CleanupOld() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if f.content.Exists("kantei_old.pdf") {
		t.Error("expired PDF kept")
	}
	for _, keep := range []string{"kantei_recent.pdf", "notes_old.txt"} {
		if !f.content.Exists(keep) {
			t.Errorf("%s removed", keep)
		}
	}

	removed, err = f.gen.CleanupOld(context.Background(), 5)
	if err != nil || removed != 1 {
		t.Errorf("CleanupOld(5) = %d, %v, want 1", removed, err)
	}
}

func TestCleanupOldMissingDirectory(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Content = storage.NewContentStore(filepath.Join(t.TempDir(), "never-created"), zerolog.Nop())
	})
	removed, err := f.gen.CleanupOld(context.Background(), 1)
	if err != nil || removed != 0 {
		t.Errorf("CleanupOld() = %d, %v", removed, err)
	}
}

func TestUpdateComment(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.calculate(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		id       string
		comment  string
		wantKind Kind
	}{
		{name: "accepted", id: rec.ID, comment: "  良い一年になります  ", wantKind: KindNone},
		{name: "exactly the limit", id: rec.ID, comment: strings.Repeat("運", 200), wantKind: KindNone},
		{name: "too long", id: rec.ID, comment: strings.Repeat("運", 201), wantKind: KindInvalid},
		{name: "unknown record", id: "missing", comment: "x", wantKind: KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.gen.UpdateComment(ctx, tt.id, tt.comment)
			if KindOf(err) != tt.wantKind {
				t.Fatalf("KindOf(%v) = %q, want %q", err, KindOf(err), tt.wantKind)
			}
			if err == nil && got.Result.Comment != strings.TrimSpace(tt.comment) {
				t.Errorf("Comment = %q", got.Result.Comment)
			}
		})
	}
}

func TestBuildFlowDocument(t *testing.T) {
	data := report.CompositeReportData{
		Form:    report.FormData{Name: "山田太郎", Gender: "male", BirthDate: "1990-05-15"},
		Comment: "今年は東が吉",
	}

	t.Run("builds", func(t *testing.T) {
		f := newFixture(t, nil)
		asset, err := f.gen.BuildFlowDocument(context.Background(), data)
		if err != nil {
			t.Fatalf("BuildFlowDocument() error = %v", err)
		}
		if asset.ContentType != report.ContentFlowDocument || !strings.HasSuffix(asset.Filename, ".docx") {
			t.Errorf("asset = %q %q", asset.ContentType, asset.Filename)
		}
		if !strings.HasPrefix(string(asset.Bytes), "PK") {
			t.Error("output is not a zip package")
		}
	})

	t.Run("comment too long", func(t *testing.T) {
		f := newFixture(t, nil)
		long := data
		long.Comment = strings.Repeat("長", 201)
		if _, err := f.gen.BuildFlowDocument(context.Background(), long); KindOf(err) != KindInvalid {
			t.Errorf("error = %v, want invalid", err)
		}
	})

	t.Run("builder panic", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.Flow = panickingFlow{} })
		_, err := f.gen.BuildFlowDocument(context.Background(), data)
		if KindOf(err) != KindUnexpected || !strings.Contains(err.Error(), "zip exploded") {
			t.Errorf("error = %v, want unexpected panic", err)
		}
	})
}

func TestTemplate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tmpl, err := f.gen.Template(ctx, "op-9")
	if err != nil {
		t.Fatalf("Template() error = %v", err)
	}
	if tmpl.BusinessName != "開運鑑定所" || tmpl.Theme != "blue" {
		t.Errorf("default template = %+v", tmpl)
	}

	update := *tmpl
	update.Theme = "green"
	update.OperatorID = "someone-else"
	saved, err := f.gen.UpdateTemplate(ctx, "op-9", update)
	if err != nil {
		t.Fatalf("UpdateTemplate() error = %v", err)
	}
	if saved.OperatorID != "op-9" {
		t.Errorf("OperatorID = %q, want op-9", saved.OperatorID)
	}
	again, _ := f.gen.Template(ctx, "op-9")
	if again.Theme != "green" {
		t.Errorf("Theme = %q after update", again.Theme)
	}

	update.Theme = "purple"
	if _, err := f.gen.UpdateTemplate(ctx, "op-9", update); KindOf(err) != KindInvalid {
		t.Errorf("UpdateTemplate(purple) error = %v, want invalid", err)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    Kind
		wantSuccess bool
	}{
		{name: "nil", err: nil, wantKind: KindNone, wantSuccess: true},
		{name: "fatal", err: fatal("op", storage.ErrNotFound), wantKind: KindFatal},
		{name: "wrapped unexpected", err: errors.Join(errors.New("ctx"), unexpected("op", errors.New("boom"))), wantKind: KindUnexpected},
		{name: "plain error", err: errors.New("boom"), wantKind: KindUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.err)
			if got.Kind != tt.wantKind || got.Success != tt.wantSuccess {
				t.Errorf("Describe() = %+v", got)
			}
		})
	}
}

func TestGeneratePDFResolvesRelativeLogo(t *testing.T) {
	logoDir := t.TempDir()
	f := newFixture(t, func(o *Options) { o.LogoDir = logoDir })
	rec := f.calculate(t)
	ctx := context.Background()

	tmpl, _ := f.gen.Template(ctx, rec.OperatorID)
	tmpl.LogoPath = "../../etc/brand.png"
	if _, err := f.gen.UpdateTemplate(ctx, rec.OperatorID, *tmpl); err != nil {
		t.Fatal(err)
	}

	out, err := f.gen.GeneratePDF(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GeneratePDF() error = %v", err)
	}
	var detail string
	for _, d := range out.Degradations {
		if d.Reason == report.ReasonLogoUnavailable {
			detail = d.Detail
		}
	}
	if !strings.Contains(detail, filepath.Join(logoDir, "brand.png")) {
		t.Errorf("logo degradation detail = %q, want lookup inside %s", detail, logoDir)
	}
}
