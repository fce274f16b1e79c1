package metrics

import "github.com/prometheus/client_golang/prometheus"

// Fetch outcomes recorded in FetchCounter.
const (
	OutcomeHit      = "hit"
	OutcomeNullHit  = "null_hit"
	OutcomeComputed = "computed"
	OutcomeWaited   = "waited"
	OutcomeStale    = "stale"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
)

var (
	// FetchCounter tracks Fetch calls by outcome.
	FetchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coalesce_fetch_total",
		Help: "Total number of Fetch calls by outcome",
	}, []string{"outcome"})
	// ProducerCounter tracks producer invocations.
	ProducerCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coalesce_producer_runs_total",
		Help: "Total number of producer invocations",
	})
	// ProducerErrorCounter tracks producer invocations that failed.
	ProducerErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coalesce_producer_errors_total",
		Help: "Total number of failed producer invocations",
	})
	// LockContendedCounter tracks lock acquisitions that found the lock held.
	LockContendedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coalesce_lock_contended_total",
		Help: "Total number of lock acquisitions that found the lock held",
	})
	// LockReleaseFailedCounter tracks releases that did not delete the lock.
	LockReleaseFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coalesce_lock_release_failed_total",
		Help: "Total number of lock releases that did not delete the lock",
	})
	// FetchLatency observes the wall time of Fetch calls.
	FetchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coalesce_fetch_duration_seconds",
		Help:    "Latency of Fetch calls",
		Buckets: prometheus.DefBuckets,
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers the coalescer metrics on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		FetchCounter,
		ProducerCounter,
		ProducerErrorCounter,
		LockContendedCounter,
		LockReleaseFailedCounter,
		FetchLatency,
	)
}
