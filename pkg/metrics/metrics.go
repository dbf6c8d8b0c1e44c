package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records sign-in attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serviqo_auth_attempts_total",
			Help: "Total number of sign-in attempts",
		},
		[]string{"result"},
	)

	// RoleChanges counts role promotions and demotions by outcome.
	RoleChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serviqo_role_changes_total",
			Help: "Total number of role promotion/demotion operations",
		},
		[]string{"operation", "result"},
	)

	// InvitationEvents counts invitation lifecycle transitions (created|used|revoked|expired).
	InvitationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serviqo_invitation_events_total",
			Help: "Total number of invitation lifecycle events",
		},
		[]string{"event"},
	)

	// ActiveSessions tracks sessions currently held by the registry.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serviqo_active_sessions",
			Help: "Number of active in-memory sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serviqo_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
