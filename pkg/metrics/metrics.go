package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// L1 descriptor table metrics
	L1SlotsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "objectcore_l1_slots_in_use",
			Help: "Number of in-use L1 descriptor table slots",
		},
	)

	L1AllocFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "objectcore_l1_alloc_failures_total",
			Help: "Total number of L1 slot allocation failures (table full)",
		},
	)

	// Resolver metrics
	ResolverVoteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objectcore_resolver_vote_duration_seconds",
			Help:    "Time taken to collect resource-plugin votes for one resolve",
			Buckets: prometheus.DefBuckets,
		},
	)

	ResolverOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectcore_resolver_outcomes_total",
			Help: "Resolve outcomes by operation and result",
		},
		[]string{"operation", "result"},
	)

	// Logical locking metrics
	LockAcquiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "objectcore_lock_acquired_total",
			Help: "Total number of successful logical-lock acquisitions",
		},
	)

	LockBusyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "objectcore_lock_busy_total",
			Help: "Total number of lock acquisitions that failed because a sibling was already locked",
		},
	)

	LockReleasedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectcore_lock_released_total",
			Help: "Total number of logical-lock releases by outcome",
		},
		[]string{"outcome"}, // "success" or "failure"
	)

	// Finalize engine metrics
	FinalizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objectcore_finalize_duration_seconds",
			Help:    "Time taken to run the finalize engine for one close",
			Buckets: prometheus.DefBuckets,
		},
	)

	FinalizeOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectcore_finalize_outcomes_total",
			Help: "Finalize outcomes by operation kind and result",
		},
		[]string{"operation", "result"},
	)

	// Catalog commit metrics
	CatalogCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objectcore_catalog_commit_duration_seconds",
			Help:    "Time taken to commit a finalize payload to the catalog",
			Buckets: prometheus.DefBuckets,
		},
	)

	CatalogCommitErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectcore_catalog_commit_errors_total",
			Help: "Total number of catalog commit failures by error code",
		},
		[]string{"code"},
	)

	// Sweeper metrics
	SweeperOrphansRecoveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "objectcore_sweeper_orphans_recovered_total",
			Help: "Total number of orphaned INTERMEDIATE replicas the sweeper transitioned to STALE",
		},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objectcore_sweep_duration_seconds",
			Help:    "Time taken to run one orphan-lock sweep cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(L1SlotsInUse)
	prometheus.MustRegister(L1AllocFailuresTotal)
	prometheus.MustRegister(ResolverVoteDuration)
	prometheus.MustRegister(ResolverOutcomesTotal)
	prometheus.MustRegister(LockAcquiredTotal)
	prometheus.MustRegister(LockBusyTotal)
	prometheus.MustRegister(LockReleasedTotal)
	prometheus.MustRegister(FinalizeDuration)
	prometheus.MustRegister(FinalizeOutcomesTotal)
	prometheus.MustRegister(CatalogCommitDuration)
	prometheus.MustRegister(CatalogCommitErrorsTotal)
	prometheus.MustRegister(SweeperOrphansRecoveredTotal)
	prometheus.MustRegister(SweepDuration)
}

// Handler returns the Prometheus HTTP handler for exposition.
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
