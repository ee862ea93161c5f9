package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "metrology_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	lifecycleEvents  *prometheus.CounterVec
	lifecycleErrors  *prometheus.CounterVec
	lifecycleLatency *prometheus.HistogramVec

	analysisResults *prometheus.CounterVec

	importRows *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		lifecycleEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lifecycle_events_total",
				Help: "Total recorded lifecycle transitions by kind",
			},
			[]string{"kind"},
		)
		lifecycleErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lifecycle_errors_total",
				Help: "Total rejected lifecycle transitions by reason",
			},
			[]string{"reason"},
		)
		lifecycleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "lifecycle_latency_seconds",
				Help:    "Lifecycle mutation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		analysisResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "point_analyses_total",
				Help: "Total recorded point analyses by outcome",
			},
			[]string{"outcome"},
		)

		importRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_rows_total",
				Help: "Total processed import rows by kind and result",
			},
			[]string{"kind", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			lifecycleEvents,
			lifecycleErrors,
			lifecycleLatency,
			analysisResults,
			importRows,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveLifecycle records one lifecycle mutation with its latency.
func ObserveLifecycle(kind string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if lifecycleEvents != nil {
		lifecycleEvents.WithLabelValues(kind).Inc()
	}
	if lifecycleLatency != nil {
		lifecycleLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// IncLifecycleError increments the rejected transition counter.
func IncLifecycleError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if lifecycleErrors != nil {
		lifecycleErrors.WithLabelValues(reason).Inc()
	}
}

// IncAnalysisResult increments the recorded analysis counter.
func IncAnalysisResult(outcome string) {
	if outcome == "" {
		outcome = "unset"
	}
	if analysisResults != nil {
		analysisResults.WithLabelValues(outcome).Inc()
	}
}

// IncImportRow counts one processed import row.
func IncImportRow(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if importRows != nil {
		importRows.WithLabelValues(kind, result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
