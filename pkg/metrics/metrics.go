package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewire_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// PolicyChecks counts policy evaluations and their outcome (allow|deny).
	PolicyChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewire_policy_checks_total",
			Help: "Total number of policy checks",
		},
		[]string{"policy", "result"},
	)

	// ConnectionTransitions counts node-connection state transitions
	// (invited|accepted|rejected|removed|rotated).
	ConnectionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewire_connection_transitions_total",
			Help: "Total number of node connection state transitions",
		},
		[]string{"transition"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodewire_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
