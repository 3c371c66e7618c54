package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposed per spec.md §6 "Observable metrics": per-phase wall
// time and deferred-op counts, per-tick entity/archetype counts and
// commit latency. Grounded on cuemby-warren's pkg/metrics package-level
// prometheus.New*/MustRegister pattern.
var (
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rgbworld_phase_duration_seconds",
			Help:    "Wall time spent in each tick phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	WorkersBusy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rgbworld_workers_busy",
			Help: "Number of worker goroutines currently executing a cell task",
		},
		[]string{"color"},
	)

	DeferredOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rgbworld_deferred_ops_total",
			Help: "Deferred operations applied, by kind",
		},
		[]string{"kind"},
	)

	PhaseOverrunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rgbworld_phase_overruns_total",
			Help: "Number of times a phase exceeded its soft deadline",
		},
		[]string{"phase"},
	)

	CellPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rgbworld_cell_panics_total",
			Help: "Number of cell tasks that panicked and were quarantined for the tick",
		},
	)

	TickEntityCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rgbworld_tick_entity_count",
			Help: "Live entity count at the end of the last committed tick",
		},
	)

	TickArchetypeCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rgbworld_tick_archetype_count",
			Help: "Archetype count at the end of the last committed tick",
		},
	)

	TickCommitLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rgbworld_tick_commit_latency_seconds",
			Help:    "Time spent committing a tick into the versioned store",
			Buckets: prometheus.DefBuckets,
		},
	)

	TickBytesAppended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rgbworld_tick_bytes_appended_total",
			Help: "Bytes appended to the versioned store's page file",
		},
	)

	TickCommitFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rgbworld_tick_commit_failures_total",
			Help: "Number of ticks whose commit into the versioned store failed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PhaseDuration,
		WorkersBusy,
		DeferredOpsTotal,
		PhaseOverrunsTotal,
		CellPanicsTotal,
		TickEntityCount,
		TickArchetypeCount,
		TickCommitLatency,
		TickBytesAppended,
		TickCommitFailuresTotal,
	)
}
