package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/docx"
	"github.com/ankek/unmeiori/internal/fonts"
	"github.com/ankek/unmeiori/internal/generator"
	"github.com/ankek/unmeiori/internal/pdf"
	"github.com/ankek/unmeiori/internal/preview"
	"github.com/ankek/unmeiori/internal/report"
	"github.com/ankek/unmeiori/internal/storage"
)

type calendarStub struct{}

func (calendarStub) Compute(context.Context, string) (*report.CalendarResult, report.Directions, error) {
	return &report.CalendarResult{Year: &report.Star{Name: "一白水星"}}, nil, nil
}

type namesStub struct{}

func (namesStub) Compute(context.Context, string, string) (*report.NameAnalysisResult, error) {
	return nil, errors.New("seimei unavailable")
}

type fontList []fonts.Status

func (l fontList) ListAvailable() []fonts.Status { return l }

type healthFunc func(ctx context.Context) error

func (f healthFunc) Healthy(ctx context.Context) error { return f(ctx) }

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

func newTestRouter(t *testing.T, mutate func(*Options)) http.Handler {
	t.Helper()
	store := storage.NewMemoryStore()
	content := storage.NewContentStore(t.TempDir(), zerolog.Nop())
	pdfBuilder := pdf.New(pdf.Options{Logger: zerolog.Nop()})

	gen := generator.New(generator.Options{
		Records:   store,
		Templates: store,
		Content:   content,
		PDF:       pdfBuilder,
		Flow:      docx.New(docx.Options{Logger: zerolog.Nop()}),
		Preview: preview.NewChain(preview.Options{
			Renderer: preview.DisabledRenderer{},
			Minimal:  pdfBuilder,
			Store:    content,
			Logger:   zerolog.Nop(),
		}),
		Calendar: calendarStub{},
		Names:    namesStub{},
		Logger:   zerolog.Nop(),
	})

	opts := Options{
		Generator:      gen,
		Fonts:          fontList{{Role: fonts.RoleRegular, Filename: "NotoSansJP-Regular.ttf"}},
		PreviewBaseURL: "http://localhost:3000/kantei/preview/",
		CORSOrigins:    []string{"http://localhost:3000"},
		Logger:         zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewRouter(opts)
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not JSON: %v: %s", err, rec.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("data: %v", err)
		}
	}
	return env
}

const calculateBody = `{"client":{"surname":"山田","given_name":"太郎","birth_date":"1990-05-15","gender":"male"},"comment":"良い年です"}`

func createRecord(t *testing.T, h http.Handler, operator string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/kantei/calculate", calculateBody, OperatorHeader, operator)
	if rec.Code != http.StatusCreated {
		t.Fatalf("calculate status = %d: %s", rec.Code, rec.Body.String())
	}
	var calc generator.Calculation
	decode(t, rec, &calc)
	return calc.Record.ID
}

func TestCalculateAndFetch(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/kantei/calculate", calculateBody, OperatorHeader, "op-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var calc generator.Calculation
	env := decode(t, rec, &calc)
	if env.Status != "success" || calc.Record == nil {
		t.Fatalf("envelope = %+v", env)
	}
	if calc.Kind != generator.KindInputIncomplete || len(calc.Missing) != 1 || calc.Missing[0] != "names" {
		t.Errorf("calculation = %+v, want names missing", calc)
	}

	rec = do(t, h, http.MethodGet, "/api/kantei/"+calc.Record.ID, "")
	var got report.Record
	decode(t, rec, &got)
	if rec.Code != http.StatusOK || got.OperatorID != "op-1" || got.Result.Calendar.Year.Name != "一白水星" {
		t.Errorf("GET record = %d %+v", rec.Code, got)
	}

	rec = do(t, h, http.MethodGet, "/api/kantei", "", OperatorHeader, "op-1")
	var list []report.Record
	decode(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("list = %d records, want 1", len(list))
	}

	list = nil
	rec = do(t, h, http.MethodGet, "/api/kantei", "", OperatorHeader, "op-2")
	decode(t, rec, &list)
	if rec.Code != http.StatusOK || len(list) != 0 {
		t.Errorf("other operator list = %s", rec.Body.String())
	}
}

func TestRequestErrors(t *testing.T) {
	h := newTestRouter(t, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid client",
			method:     http.MethodPost,
			path:       "/api/kantei/calculate",
			body:       `{"client":{"surname":"山田","birth_date":"1990/05/15"}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "malformed json",
			method:     http.MethodPost,
			path:       "/api/kantei/calculate",
			body:       `{"client":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_JSON",
		},
		{name: "unknown record", method: http.MethodGet, path: "/api/kantei/nope", wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "pdf for unknown record", method: http.MethodPost, path: "/api/kantei/nope/pdf", wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{
			name:       "bad cleanup days",
			method:     http.MethodPost,
			path:       "/api/maintenance/cleanup?days=zero",
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PARAMETER",
		},
		{
			name:       "bad template theme",
			method:     http.MethodPut,
			path:       "/api/template",
			body:       `{"business_name":"星の館","theme":"purple"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			env := decode(t, rec, nil)
			if env.Status != "error" || env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("envelope = %s", rec.Body.String())
			}
		})
	}
}

func TestValidationErrorListsFields(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := do(t, h, http.MethodPost, "/api/kantei/calculate", `{"client":{"surname":"山田","birth_date":"1990-05-15"}}`)
	env := decode(t, rec, nil)
	if env.Error == nil || len(env.Error.Fields) != 1 || !strings.HasSuffix(env.Error.Fields[0].Field, "given_name") {
		t.Errorf("fields = %+v", env.Error)
	}
}

func TestPDFLifecycle(t *testing.T) {
	h := newTestRouter(t, nil)
	id := createRecord(t, h, "op-1")
	base := "/api/kantei/" + id + "/pdf"

	rec := do(t, h, http.MethodPost, base, "")
	var out generator.Outcome
	decode(t, rec, &out)
	if rec.Code != http.StatusOK || !out.Success || out.Size == 0 {
		t.Fatalf("generate = %d %+v", rec.Code, out)
	}

	rec = do(t, h, http.MethodGet, base+"/info", "")
	var info generator.PDFInfo
	decode(t, rec, &info)
	if rec.Code != http.StatusOK || info.Size != out.Size || info.Filename != out.Filename {
		t.Errorf("info = %d %+v", rec.Code, info)
	}

	rec = do(t, h, http.MethodGet, base+"/download", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("download = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if int64(rec.Body.Len()) != out.Size || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("downloaded %d bytes, want %d", rec.Body.Len(), out.Size)
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "filename*=UTF-8''kantei_%E5%B1%B1%E7%94%B0") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = do(t, h, http.MethodDelete, base, "")
	var deleted map[string]bool
	decode(t, rec, &deleted)
	if !deleted["deleted"] {
		t.Errorf("delete = %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, base+"/info", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("info after delete = %d", rec.Code)
	}
}

func TestPreviewFallsBack(t *testing.T) {
	h := newTestRouter(t, nil)
	id := createRecord(t, h, "op-1")

	rec := do(t, h, http.MethodPost, "/api/kantei/"+id+"/pdf/preview", "")
	var out generator.Outcome
	decode(t, rec, &out)
	if rec.Code != http.StatusOK || out.Variant != report.VariantFallback {
		t.Fatalf("preview = %d %+v", rec.Code, out)
	}
	if !strings.HasPrefix(out.Filename, "kantei_"+id+"_") {
		t.Errorf("Filename = %q", out.Filename)
	}
}

func TestUpdateComment(t *testing.T) {
	h := newTestRouter(t, nil)
	id := createRecord(t, h, "op-1")

	rec := do(t, h, http.MethodPut, "/api/kantei/"+id+"/comment", `{"comment":"東が吉方位です"}`)
	var got report.Record
	decode(t, rec, &got)
	if rec.Code != http.StatusOK || got.Result.Comment != "東が吉方位です" {
		t.Errorf("update = %d %+v", rec.Code, got.Result)
	}

	long := strings.Repeat("吉", 201)
	rec = do(t, h, http.MethodPut, "/api/kantei/"+id+"/comment", `{"comment":"`+long+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("long comment status = %d", rec.Code)
	}
}

func TestFlowDocument(t *testing.T) {
	h := newTestRouter(t, nil)
	body := `{"form":{"name":"山田太郎","gender":"male","birth_date":"1990-05-15"},"diagram_png":"bm90IGEgcG5n"}`

	rec := do(t, h, http.MethodPost, "/api/word/generate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != report.ContentFlowDocument.MIME() {
		t.Errorf("Content-Type = %q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("body is not a zip package")
	}
	if got := rec.Header().Get(degradationHeader); got != string(report.ReasonImagePlaceholder) {
		t.Errorf("%s = %q", degradationHeader, got)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/api/template", "", OperatorHeader, "op-7")
	var tmpl report.TemplateSettings
	decode(t, rec, &tmpl)
	if tmpl.OperatorID != "op-7" || tmpl.Theme != "blue" {
		t.Fatalf("default template = %+v", tmpl)
	}

	rec = do(t, h, http.MethodPut, "/api/template", `{"business_name":"星の館","operator_name":"占い師","theme":"red","include_signature":false}`, OperatorHeader, "op-7")
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/template", "", OperatorHeader, "op-7")
	decode(t, rec, &tmpl)
	if tmpl.BusinessName != "星の館" || tmpl.Theme != "red" || tmpl.IncludeSignature {
		t.Errorf("stored template = %+v", tmpl)
	}
}

func TestFontsAndCleanup(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/api/fonts", "")
	var list []fonts.Status
	decode(t, rec, &list)
	if len(list) != 1 || list[0].Filename != "NotoSansJP-Regular.ttf" {
		t.Errorf("fonts = %+v", list)
	}

	rec = do(t, h, http.MethodPost, "/api/maintenance/cleanup?days=7", "")
	var result map[string]int
	decode(t, rec, &result)
	if rec.Code != http.StatusOK || result["removed"] != 0 {
		t.Errorf("cleanup = %d %v", rec.Code, result)
	}
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, func(o *Options) {
		o.Health = map[string]HealthChecker{
			"kyusei": healthFunc(func(context.Context) error { return nil }),
			"seimei": healthFunc(func(context.Context) error { return errors.New("connection refused") }),
		}
	})

	rec := do(t, h, http.MethodGet, "/health", "")
	var body struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body.Status != "degraded" {
		t.Errorf("health = %d %+v", rec.Code, body)
	}
	if body.Services["kyusei"] != "ok" || body.Services["seimei"] != "connection refused" {
		t.Errorf("services = %v", body.Services)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestRouter(t, func(o *Options) { o.RateLimit = 2 })

	for i := 0; i < 2; i++ {
		if rec := do(t, h, http.MethodGet, "/api/fonts", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := do(t, h, http.MethodGet, "/api/fonts", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d", rec.Code)
	}
	env := decode(t, rec, nil)
	if env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Errorf("body = %s", rec.Body.String())
	}

	// Health checks are not limited
	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodOptions, "/api/kantei/calculate", "",
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", "POST")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	rec = do(t, h, http.MethodOptions, "/api/kantei/calculate", "",
		"Origin", "https://evil.example.com",
		"Access-Control-Request-Method", "POST")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestAttachment(t *testing.T) {
	got := attachment("kantei_山田_20260301_103000.pdf")
	want := `attachment; filename="kantei____20260301_103000.pdf"; filename*=UTF-8''kantei_%E5%B1%B1%E7%94%B0_20260301_103000.pdf`
	if got != want {
		t.Errorf("attachment() = %q, want %q", got, want)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics = %d", rec.Code)
	}
}
