package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProbeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_probe_attempts_total",
			Help: "Endpoint candidate attempts by operation, candidate and outcome",
		},
		[]string{"operation", "candidate", "outcome"},
	)

	ProbeExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_probe_exhausted_total",
			Help: "Probe runs in which every candidate failed",
		},
		[]string{"operation"},
	)

	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_probe_duration_seconds",
			Help:    "Duration of a full probe run in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	DecodeDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_decode_degraded_total",
			Help: "Replies that fell back to the generic string form",
		},
	)

	FallbackInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_fallback_invocations_total",
			Help: "Chat completion fallbacks by result",
		},
		[]string{"result"},
	)

	ActionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_actions_completed_total",
			Help: "User actions served, by action and reply source",
		},
		[]string{"action", "source"},
	)

	ActionsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_actions_failed_total",
			Help: "User actions that ended in an error",
		},
		[]string{"action", "error_code"},
	)
)
