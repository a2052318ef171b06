// Package api exposes the report flows over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/fonts"
	"github.com/ankek/unmeiori/internal/generator"
	"github.com/ankek/unmeiori/internal/metrics"
)

// OperatorHeader carries the authenticated operator id set by the upstream gateway
const OperatorHeader = "X-Operator-ID"

// DefaultOperator is used when no operator header is present
const DefaultOperator = "default"

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// FontLister enumerates configured fonts
type FontLister interface {
	ListAvailable() []fonts.Status
}

// Options configures the router
type Options struct {
	Generator      *generator.Generator
	Fonts          FontLister
	Health         map[string]HealthChecker
	PreviewBaseURL string
	CORSOrigins    []string
	// RateLimit is requests per minute per client IP. Zero disables limiting.
	RateLimit int
	Logger    zerolog.Logger
}

// Server holds the handlers
type Server struct {
	gen            *generator.Generator
	fonts          FontLister
	health         map[string]HealthChecker
	previewBaseURL string
	log            zerolog.Logger
}

// NewRouter builds the HTTP handler
func NewRouter(opts Options) http.Handler {
	s := &Server{
		gen:            opts.Generator,
		fonts:          opts.Fonts,
		health:         opts.Health,
		previewBaseURL: opts.PreviewBaseURL,
		log:            opts.Logger.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", OperatorHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID", degradationHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.Limit(opts.RateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				}),
			))
		}

		r.Route("/api/kantei", func(r chi.Router) {
			r.Post("/calculate", s.handleCalculate)
			r.Get("/", s.handleListRecords)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRecord)
				r.Put("/comment", s.handleUpdateComment)
				r.Post("/pdf", s.handleGeneratePDF)
				r.Post("/pdf/preview", s.handlePreviewPDF)
				r.Get("/pdf/info", s.handlePDFInfo)
				r.Get("/pdf/download", s.handleDownloadPDF)
				r.Delete("/pdf", s.handleDeletePDF)
			})
		})
		r.Post("/api/word/generate", s.handleFlowDocument)
		r.Get("/api/template", s.handleGetTemplate)
		r.Put("/api/template", s.handleUpdateTemplate)
		r.Get("/api/fonts", s.handleFonts)
		r.Post("/api/maintenance/cleanup", s.handleCleanup)
	})

	return r
}

// requestLogger writes one entry per request
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		})
	}
}

func operatorID(r *http.Request) string {
	if op := r.Header.Get(OperatorHeader); op != "" {
		return op
	}
	return DefaultOperator
}
