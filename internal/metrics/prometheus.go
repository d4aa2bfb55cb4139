package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Local cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Write path metrics
	ConflictRetries prometheus.Counter

	// Invalidation metrics
	InvalidationsPublished prometheus.Counter
	InvalidationsReceived  prometheus.Counter
	BusErrors              prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_requests_total",
				Help: "Total number of record operations processed",
			},
			[]string{"operation"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_request_duration_seconds",
				Help:    "Duration of record operation processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_request_errors_total",
				Help: "Total number of record operation errors",
			},
			[]string{"operation", "error_type"},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_cache_hits_total",
				Help: "Total number of local cache hits",
			},
			[]string{"key_type"},
		),

		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_cache_misses_total",
				Help: "Total number of local cache misses",
			},
			[]string{"key_type"},
		),

		ConflictRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_store_conflict_retries_total",
				Help: "Total number of write transactions retried after a conflict",
			},
		),

		InvalidationsPublished: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_invalidations_published_total",
				Help: "Total number of invalidation events published",
			},
		),

		InvalidationsReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_invalidations_received_total",
				Help: "Total number of invalidation events received from other replicas",
			},
		),

		BusErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_bus_errors_total",
				Help: "Total number of invalidation bus failures",
			},
		),
	}
}
