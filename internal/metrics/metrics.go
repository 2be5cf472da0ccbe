package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueriesTotal counts streaming queries by backend and terminal status
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opendian_queries_total",
			Help: "Total number of streaming queries",
		},
		[]string{"backend", "status"},
	)

	// QueryDuration tracks end-to-end query latency
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opendian_query_duration_seconds",
			Help:    "Query duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"backend"},
	)

	// StreamChunksTotal counts normalized chunks by type
	StreamChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opendian_stream_chunks_total",
			Help: "Total number of normalized stream chunks",
		},
		[]string{"type"},
	)

	// ActiveTabs tracks currently open conversation tabs
	ActiveTabs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opendian_active_tabs",
			Help: "Number of open conversation tabs",
		},
	)

	// SessionsCreated counts backend sessions created
	SessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opendian_sessions_created_total",
			Help: "Total number of backend sessions created",
		},
		[]string{"backend"},
	)

	// CacheRefreshes counts capability cache invalidations
	CacheRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opendian_cache_refreshes_total",
			Help: "Total number of capability cache invalidations",
		},
		[]string{"backend"},
	)

	// RateLimitRejections counts sends rejected by the per-tab limiter
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opendian_rate_limit_rejections_total",
			Help: "Total number of sends rejected by the per-tab rate limiter",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordQuery records one completed query
func RecordQuery(backend, status string, duration time.Duration) {
	QueriesTotal.WithLabelValues(backend, status).Inc()
	QueryDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordChunk records one normalized stream chunk
func RecordChunk(chunkType string) {
	StreamChunksTotal.WithLabelValues(chunkType).Inc()
}

// RecordSessionCreated records a new backend session
func RecordSessionCreated(backend string) {
	SessionsCreated.WithLabelValues(backend).Inc()
}

// RecordCacheRefresh records a capability cache invalidation
func RecordCacheRefresh(backend string) {
	CacheRefreshes.WithLabelValues(backend).Inc()
}

// RecordTabOpen increments the open tab gauge
func RecordTabOpen() {
	ActiveTabs.Inc()
}

// RecordTabClose decrements the open tab gauge
func RecordTabClose() {
	ActiveTabs.Dec()
}

// RecordRateLimitRejection records a rate-limited send
func RecordRateLimitRejection() {
	RateLimitRejections.Inc()
}
