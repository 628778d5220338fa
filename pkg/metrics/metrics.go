package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	DatabasesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vocd_databases_total",
			Help: "Total number of databases by set (live, coordinator, dropped)",
		},
		[]string{"set"},
	)

	SnapshotReplaceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vocd_registry_snapshot_replace_duration_seconds",
			Help:    "Time taken to build, publish and drain a registry snapshot replacement",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotReplaceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocd_registry_snapshot_replace_total",
			Help: "Total number of registry snapshot replacements by outcome",
		},
		[]string{"outcome"},
	)

	ScanWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vocd_registry_scan_wait_duration_seconds",
			Help:    "Time a writer spent waiting for readers to drain during a scan",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Database Manager metrics
	ManagerCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vocd_manager_cycle_duration_seconds",
			Help:    "Time taken for one database manager loop iteration",
			Buckets: prometheus.DefBuckets,
		},
	)

	ManagerCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vocd_manager_cycles_total",
			Help: "Total number of database manager loop iterations completed",
		},
	)

	DatabasesReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vocd_databases_reclaimed_total",
			Help: "Total number of dropped databases physically reclaimed",
		},
	)

	ReclaimErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocd_reclaim_errors_total",
			Help: "Total number of errors encountered while reclaiming a dropped database, by stage",
		},
		[]string{"stage"},
	)

	CoordinatorCursorGCTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vocd_coordinator_cursor_gc_total",
			Help: "Total number of coordinator cursor-repository garbage collection passes",
		},
	)

	// Lifecycle Controller metrics
	BootstrapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vocd_bootstrap_duration_seconds",
			Help:    "Time taken for the lifecycle controller to complete Start()",
			Buckets: prometheus.DefBuckets,
		},
	)

	DatabaseCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vocd_database_create_duration_seconds",
			Help:    "Time taken to open a database during catalog iteration",
			Buckets: prometheus.DefBuckets,
		},
	)

	DatabaseDropDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vocd_database_drop_duration_seconds",
			Help:    "Time taken from drop request to the record entering the dropped set",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(DatabasesTotal)
	prometheus.MustRegister(SnapshotReplaceDuration)
	prometheus.MustRegister(SnapshotReplaceTotal)
	prometheus.MustRegister(ScanWaitDuration)
	prometheus.MustRegister(ManagerCycleDuration)
	prometheus.MustRegister(ManagerCyclesTotal)
	prometheus.MustRegister(DatabasesReclaimedTotal)
	prometheus.MustRegister(ReclaimErrorsTotal)
	prometheus.MustRegister(CoordinatorCursorGCTotal)
	prometheus.MustRegister(BootstrapDuration)
	prometheus.MustRegister(DatabaseCreateDuration)
	prometheus.MustRegister(DatabaseDropDuration)
}

// Handler returns the Prometheus HTTP handler. The caller mounts it on its
// own mux (cmd/vocd serves it on server.metrics-addr); this package does
// not run an HTTP server itself.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
