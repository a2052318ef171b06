// Package metrics holds the Prometheus instruments of the rendering pipeline
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ankek/unmeiori/internal/report"
)

var (
	// Document builds by format ("pdf", "docx", "minimal") and outcome ("ok", "degraded", "failed")
	DocumentsBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unmeiori_documents_built_total",
			Help: "Total number of documents built",
		},
		[]string{"format", "outcome"},
	)

	DocumentBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unmeiori_document_build_duration_seconds",
			Help:    "Duration of document builds in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	Degradations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unmeiori_degradations_total",
			Help: "Total number of substitutions made while rendering",
		},
		[]string{"reason"},
	)

	FontDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unmeiori_font_downloads_total",
			Help: "Font download attempts by role, source and outcome",
		},
		[]string{"role", "source", "outcome"},
	)

	FontCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unmeiori_font_cache_hits_total",
			Help: "Font resolutions served from the on-disk cache",
		},
	)

	// Preview chain terminal states ("external", "fallback")
	PreviewOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unmeiori_preview_outcomes_total",
			Help: "Preview rendering results by terminal path",
		},
		[]string{"path"},
	)

	ServiceCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unmeiori_service_calls_total",
			Help: "Calls to the divination services by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	// 0 = closed, 1 = half-open, 2 = open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "unmeiori_service_breaker_state",
			Help: "Circuit breaker state per divination service",
		},
		[]string{"service"},
	)

	FilesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unmeiori_files_swept_total",
			Help: "Generated files removed by age-based cleanup",
		},
	)
)

// ObserveBuild records one document build
func ObserveBuild(format, outcome string, start time.Time) {
	DocumentsBuilt.WithLabelValues(format, outcome).Inc()
	DocumentBuildDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())
}

// RecordDegradations counts each substitution by reason
func RecordDegradations(ds []report.Degradation) {
	for _, d := range ds {
		Degradations.WithLabelValues(string(d.Reason)).Inc()
	}
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
