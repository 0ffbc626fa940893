// Package observability wires prometheus metrics for the analytics cache.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every prometheus collector the analytics cache emits.
type Metrics struct {
	CacheHits   *prometheus.CounterVec // labeled by hierarchy level (0 = most specific)
	CacheMisses prometheus.Counter
	StoreErrors *prometheus.CounterVec // labeled by operation

	DatabaseQueries prometheus.Counter

	PermissionRowsDropped prometheus.Counter
	SuspiciousEmptyResult prometheus.Counter

	WarmRuns     *prometheus.CounterVec // labeled by outcome: completed, skipped, failed
	WarmDuration prometheus.Histogram
}

// NewMetrics creates and registers the collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: "analytics_cache",
			Name:      "hits_total",
			Help:      "Cache hits by hierarchy level (0 is the most specific key).",
		}, []string{"level"}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: "analytics_cache",
			Name:      "misses_total",
			Help:      "Complete cache misses that fell through to the database.",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: "analytics_cache",
			Name:      "store_errors_total",
			Help:      "Key-value store failures, swallowed as misses or skipped writes.",
		}, []string{"operation"}),
		DatabaseQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: "analytics_cache",
			Name:      "database_queries_total",
			Help:      "Queries executed against the reporting database.",
		}),
		PermissionRowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: "permissions",
			Name:      "rows_dropped_total",
			Help:      "Rows removed by the permission filter engine.",
		}),
		SuspiciousEmptyResult: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: "permissions",
			Name:      "suspicious_empty_results_total",
			Help:      "Non-empty results the permission filter reduced to zero rows.",
		}),
		WarmRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reporting",
			Subsystem: "warmer",
			Name:      "runs_total",
			Help:      "Warming runs by outcome.",
		}, []string{"outcome"}),
		WarmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reporting",
			Subsystem: "warmer",
			Name:      "run_duration_seconds",
			Help:      "Duration of completed warming runs.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.StoreErrors,
		m.DatabaseQueries,
		m.PermissionRowsDropped,
		m.SuspiciousEmptyResult,
		m.WarmRuns,
		m.WarmDuration,
	)
	return m
}

// NewNopMetrics creates collectors on a throwaway registry, for tests.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
