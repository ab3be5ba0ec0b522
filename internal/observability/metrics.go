// Package observability provides Prometheus metrics and the dedicated
// health/metrics HTTP server.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace is the global prefix for all metrics (flagward_...).
const namespace = "flagward"

// evalBuckets gives sub-millisecond resolution for the evaluation path,
// which normally resolves from memory. Standard buckets start too coarse.
var evalBuckets = []float64{.0001, .0005, .001, .002, .005, .010, .025, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// EVALUATION
	// -------------------------------------------------------------------------

	// EvalTotal counts evaluations by outcome and the policy branch that
	// decided it (not_found, inactive, before_schedule, after_schedule,
	// env_disabled, targeting, default, error).
	// Metric: flagward_eval_decisions_total
	EvalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eval",
		Name:      "decisions_total",
		Help:      "Total flag evaluations by result and deciding branch",
	}, []string{"result", "reason"})

	// EvalDuration measures end-to-end IsEnabled latency.
	// Metric: flagward_eval_duration_seconds
	EvalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "eval",
		Name:      "duration_seconds",
		Help:      "Time taken to evaluate a flag",
		Buckets:   evalBuckets,
	})

	// EvalStatsFailures counts best-effort usage-statistics writes that
	// failed. These never affect the returned decision.
	EvalStatsFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eval",
		Name:      "stats_write_failures_total",
		Help:      "Total failed best-effort evaluation statistics writes",
	})

	// -------------------------------------------------------------------------
	// CACHE
	// -------------------------------------------------------------------------

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total reads served from the in-memory flag cache",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total reads that fell through to the flag store",
	})

	// -------------------------------------------------------------------------
	// RECONCILER
	// -------------------------------------------------------------------------

	// ReconcilerRuns counts reconciliation cycles by status
	// (success, error, skipped_not_leader).
	ReconcilerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciler",
		Name:      "runs_total",
		Help:      "Total reconciliation cycles by status",
	}, []string{"status"})

	// ReconcilerTransitions counts applied scheduled transitions by kind
	// (enable, disable).
	ReconcilerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciler",
		Name:      "transitions_total",
		Help:      "Total scheduled enable/disable transitions applied",
	}, []string{"transition"})

	ReconcilerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reconciler",
		Name:      "run_duration_seconds",
		Help:      "Duration of a reconciliation cycle",
		Buckets:   prometheus.DefBuckets,
	})

	// -------------------------------------------------------------------------
	// ADMIN HTTP
	// -------------------------------------------------------------------------

	AdminReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "admin",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle admin HTTP requests",
		Buckets:   prometheus.DefBuckets, // human-speed admin traffic
	}, []string{"method", "path"})

	AdminReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "admin",
		Name:      "http_requests_total",
		Help:      "Total admin HTTP requests",
	}, []string{"method", "path", "code"})
)
