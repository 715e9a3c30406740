// Package prometheus exports the per-session metrics stream as Prometheus
// collectors: items processed, data type distribution, per-node latency,
// chunk counts, and error counters.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "remotemedia"

var (
	// sessionsActive is a gauge of currently running sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active sessions",
		},
	)

	// sessionDuration is a histogram of completed session lifetimes.
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Histogram of session duration in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"reason"}, // reason: closed, failed
	)

	// nodeProcessDuration is a histogram of per-node processing latency.
	nodeProcessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_process_duration_seconds",
			Help:      "Duration of a single node's Process/ProcessStreaming call",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"node_type"},
	)

	// itemsProcessedTotal is a counter of chunks routed through a node.
	itemsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed_total",
			Help:      "Total number of data chunks processed by a node",
		},
		[]string{"node_type", "data_type"},
	)

	// nodeErrorsTotal is a counter of node processing failures.
	nodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_errors_total",
			Help:      "Total number of node processing failures",
		},
		[]string{"node_type"},
	)

	// cacheHitsTotal / cacheInsertionsTotal / cacheEvictionsTotal track the
	// node cache's acquire/evict lifecycle.
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_cache_hits_total",
			Help:      "Total number of node cache acquisitions served from an existing entry",
		},
		[]string{"node_type"},
	)
	cacheInsertionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_cache_insertions_total",
			Help:      "Total number of node cache entries created",
		},
		[]string{"node_type"},
	)
	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_cache_evictions_total",
			Help:      "Total number of node cache entries evicted by the janitor",
		},
		[]string{"node_type"},
	)

	// workerCrashesTotal counts multiprocess worker crashes.
	workerCrashesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_crashes_total",
			Help:      "Total number of multiprocess worker crashes",
		},
		[]string{"node_id"},
	)

	allMetrics = []prometheus.Collector{
		sessionsActive,
		sessionDuration,
		nodeProcessDuration,
		itemsProcessedTotal,
		nodeErrorsTotal,
		cacheHitsTotal,
		cacheInsertionsTotal,
		cacheEvictionsTotal,
		workerCrashesTotal,
	}
)

// RecordSessionCreated records a session start.
func RecordSessionCreated() {
	sessionsActive.Inc()
}

// RecordSessionClosed records a session's end and lifetime.
func RecordSessionClosed(reason string, durationSeconds float64) {
	sessionsActive.Dec()
	sessionDuration.WithLabelValues(reason).Observe(durationSeconds)
}

// RecordNodeProcessed records one successfully routed chunk.
func RecordNodeProcessed(nodeType, dataType string, durationSeconds float64) {
	nodeProcessDuration.WithLabelValues(nodeType).Observe(durationSeconds)
	itemsProcessedTotal.WithLabelValues(nodeType, dataType).Inc()
}

// RecordNodeError records a node processing failure.
func RecordNodeError(nodeType string) {
	nodeErrorsTotal.WithLabelValues(nodeType).Inc()
}

// RecordCacheHit records a cache acquisition served from an existing entry.
func RecordCacheHit(nodeType string) {
	cacheHitsTotal.WithLabelValues(nodeType).Inc()
}

// RecordCacheInsertion records a cache entry creation.
func RecordCacheInsertion(nodeType string) {
	cacheInsertionsTotal.WithLabelValues(nodeType).Inc()
}

// RecordCacheEviction records a janitor eviction.
func RecordCacheEviction(nodeType string) {
	cacheEvictionsTotal.WithLabelValues(nodeType).Inc()
}

// RecordWorkerCrash records a multiprocess worker crash.
func RecordWorkerCrash(nodeID string) {
	workerCrashesTotal.WithLabelValues(nodeID).Inc()
}
