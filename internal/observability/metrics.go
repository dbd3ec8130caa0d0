package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce             sync.Once
	apiRequestsTotal         *prometheus.CounterVec
	apiLatencySeconds        *prometheus.HistogramVec
	apiErrorsTotal           *prometheus.CounterVec
	importRowsTotal          *prometheus.CounterVec
	curriculumInsertedTotal  *prometheus.CounterVec
	performanceCacheTotal    *prometheus.CounterVec
	importProgressSubscribed prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "school_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "school_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "school_api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		importRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "school_import_rows_total",
			Help: "Committed import rows by entity and outcome.",
		}, []string{"entity", "outcome"})

		curriculumInsertedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "school_curriculum_inserted_total",
			Help: "Curriculum nodes inserted by hierarchy level.",
		}, []string{"level"})

		performanceCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "school_performance_cache_total",
			Help: "Performance aggregate cache lookups by scope and result.",
		}, []string{"scope", "result"})

		importProgressSubscribed = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "school_import_progress_subscribers",
			Help: "Open import progress subscriptions on this node.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			importRowsTotal,
			curriculumInsertedTotal,
			performanceCacheTotal,
			importProgressSubscribed,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// ImportRows counts committed import rows. Outcome is "succeeded" or "failed".
func ImportRows() *prometheus.CounterVec {
	RegisterMetrics()
	return importRowsTotal
}

// CurriculumInserted counts curriculum nodes created per level.
func CurriculumInserted() *prometheus.CounterVec {
	RegisterMetrics()
	return curriculumInsertedTotal
}

// PerformanceCache counts cache hits and misses for performance aggregates.
func PerformanceCache() *prometheus.CounterVec {
	RegisterMetrics()
	return performanceCacheTotal
}

// ImportProgressSubscribers tracks live progress subscriptions.
func ImportProgressSubscribers() prometheus.Gauge {
	RegisterMetrics()
	return importProgressSubscribed
}

// MetricsHandler serves the default registry. A collector failure still
// returns the metrics that could be gathered.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
}
