package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(launchJobsTotal, launchStepsTotal, launchStepDurationMs, launchRateLimitedTotal)
}

var (
	launchJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launch_jobs_total",
			Help: "Launch jobs reaching a lifecycle status.",
		},
		[]string{"status"}, // 'started', 'resumed', 'succeeded', 'failed', 'retried'
	)

	launchStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launch_steps_total",
			Help: "Step executions by step and outcome.",
		},
		[]string{"step", "outcome"}, // outcome: ok|skipped|rate_limited|failed|prerequisite_missing|state_inconsistency
	)

	launchStepDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "launch_step_duration_ms",
			Help:    "Step execution latency in milliseconds, including in-step delays.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 60000},
		},
		[]string{"step"},
	)

	launchRateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launch_rate_limited_total",
			Help: "Rate-limit classified step failures.",
		},
		[]string{"step"},
	)
)

func IncLaunchJob(status string) {
	launchJobsTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveStep(step, outcome string, d time.Duration) {
	launchStepsTotal.WithLabelValues(norm(step), norm(outcome)).Inc()
	launchStepDurationMs.WithLabelValues(norm(step)).Observe(float64(d.Milliseconds()))
}

func IncRateLimited(step string) {
	launchRateLimitedTotal.WithLabelValues(norm(step)).Inc()
}
