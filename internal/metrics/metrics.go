// Package metrics defines the Prometheus metrics of the debt-tracker web
// client. They register with the default registry on import and are served
// on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "debt_tracker"

// BackendRequestsTotal counts calls to the debts backend.
// Labels:
//   - operation: API client method (e.g. "login", "list_debts")
//   - outcome: "ok", "rejected" (non-2xx) or "unavailable" (transport error)
var BackendRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Total number of requests issued to the debts backend.",
	},
	[]string{"operation", "outcome"},
)

// BackendRequestDuration measures backend round trips.
var BackendRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_request_duration_seconds",
		Help:      "Duration of requests to the debts backend.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// GuardOutcomesTotal counts terminal auth guard states.
// Label:
//   - state: "authenticated" or "unauthenticated"
var GuardOutcomesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_outcomes_total",
		Help:      "Total number of auth guard runs, by terminal state.",
	},
	[]string{"state"},
)
