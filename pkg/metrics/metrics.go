// Package metrics provides performance tracking and observability for
// GramForge using Prometheus metrics.
//
// # Basic Usage
//
//	metrics.RowsProcessed.WithLabelValues("chunked").Add(float64(n))
//	metrics.TierSelections.WithLabelValues("disk_backed").Inc()
//
//	timer := prometheus.NewTimer(metrics.RunDuration.WithLabelValues("in_memory"))
//	defer timer.ObserveDuration()
//
// Metrics are registered once via promauto; recording is lock-free.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsProcessed tracks rows read from the input source.
	// Labels: tier (in_memory/chunked/disk_backed)
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gramforge_rows_processed_total",
			Help: "Total number of input rows processed",
		},
		[]string{"tier"},
	)

	// ChunksProcessed tracks completed chunks in the chunked tier.
	ChunksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gramforge_chunks_processed_total",
			Help: "Total number of chunks processed",
		},
	)

	// SpillSegments tracks spill segments written by disk-backed runs.
	SpillSegments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gramforge_spill_segments_total",
			Help: "Total number of spill segments written",
		},
	)

	// SpillBytes tracks compressed bytes written to temporary storage.
	SpillBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gramforge_spill_bytes_total",
			Help: "Total compressed bytes written to temporary storage",
		},
	)

	// PressureEvents tracks memory pressure threshold crossings.
	// Labels: level (warn/critical)
	PressureEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gramforge_memory_pressure_events_total",
			Help: "Total memory pressure threshold crossings",
		},
		[]string{"level"},
	)

	// TierSelections tracks strategy selector decisions.
	// Labels: tier
	TierSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gramforge_tier_selections_total",
			Help: "Processing tier selections by the strategy selector",
		},
		[]string{"tier"},
	)

	// RunDuration tracks end-to-end run duration per tier.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gramforge_run_duration_seconds",
			Help:    "End-to-end analysis run duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"tier"},
	)

	// RunFailures tracks failed runs by error type.
	RunFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gramforge_run_failures_total",
			Help: "Failed analysis runs by error type",
		},
		[]string{"error_type"},
	)

	// BudgetAllocation reports the derived memory allocation ceiling.
	BudgetAllocation = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gramforge_budget_allocation_bytes",
			Help: "Derived memory allocation ceiling in bytes",
		},
	)

	// MemoryPressure reports the live pressure reading (used/allocation).
	MemoryPressure = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gramforge_memory_pressure_ratio",
			Help: "Current memory usage as a fraction of the allocation",
		},
	)
)
