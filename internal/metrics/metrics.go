// Package metrics exposes the core pipeline's Prometheus instrumentation
// (spec.md's "Supplemented features": per-component counters exposed at
// GET /metrics), grounded on the client_golang promauto pattern used
// throughout the retrieved pack's services (e.g. jordigilh-kubernaut's
// health-monitoring integration suite asserts against the same
// registry-backed counter/histogram shape).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ashford",
		Subsystem: "queue",
		Name:      "jobs_dispatched_total",
		Help:      "Jobs claimed by a worker, by job type.",
	}, []string{"job_type"})

	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ashford",
		Subsystem: "queue",
		Name:      "jobs_completed_total",
		Help:      "Jobs that finished successfully, by job type.",
	}, []string{"job_type"})

	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ashford",
		Subsystem: "queue",
		Name:      "jobs_failed_total",
		Help:      "Jobs that exhausted retries or hit a permanent error, by job type.",
	}, []string{"job_type"})

	JobsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ashford",
		Subsystem: "queue",
		Name:      "jobs_retried_total",
		Help:      "Jobs returned to queued after a retryable error, by job type.",
	}, []string{"job_type"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ashford",
		Subsystem: "action",
		Name:      "executed_total",
		Help:      "Actions dispatched to the provider, by action type and outcome.",
	}, []string{"action_type", "outcome"})

	SafetyOverridesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ashford",
		Subsystem: "safety",
		Name:      "overrides_applied_total",
		Help:      "Safety Enforcer overrides that forced approval, by override reason.",
	}, []string{"reason"})

	ClassifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ashford",
		Subsystem: "classify",
		Name:      "duration_seconds",
		Help:      "Wall-clock time to classify one message, by decision source.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})
)
