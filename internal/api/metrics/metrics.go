// Package metrics defines the Prometheus collectors of the portal. Every
// metric name, label and help string lives here.
//
// Collectors register with the default registry on import (promauto) and are
// served by promhttp on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

// ── Upstream API ──────────────────────────────────────────────────────────────

// UpstreamRequestsTotal counts requests made to the marketplace API.
// Labels:
//   - method, path: the request line
//   - code: response status, or "0" when the request never got an answer
var UpstreamRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Total number of requests sent to the marketplace API.",
	},
	[]string{"method", "path", "code"},
)

var UpstreamRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Latency of requests sent to the marketplace API.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path"},
)

// ObserveUpstream records one upstream request. Its signature matches
// httpapi.ObserveFunc.
func ObserveUpstream(method, path string, status int, elapsed time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	UpstreamRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ── Session & guard ───────────────────────────────────────────────────────────

// SessionInvalidationsTotal counts 401 responses that cleared a session.
var SessionInvalidationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_invalidations_total",
		Help:      "Total number of sessions invalidated by an upstream 401.",
	},
)

// GuardDecisionsTotal counts route guard outcomes.
// Label:
//   - decision: "none", "allow" or "redirect"
var GuardDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_decisions_total",
		Help:      "Total number of route guard decisions, by outcome.",
	},
	[]string{"decision"},
)

// LoginsTotal counts login attempts.
// Label:
//   - result: "ok" or the error kind ("auth", "validation", "network", "server")
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// ── Onboarding ────────────────────────────────────────────────────────────────

// OnboardingCommitsTotal counts step commits.
// Labels:
//   - step: the onboarding step
//   - result: "ok" or "error"
var OnboardingCommitsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "onboarding_commits_total",
		Help:      "Total number of onboarding step commits, by step and result.",
	},
	[]string{"step", "result"},
)

// ── Runtime gauges ────────────────────────────────────────────────────────────

// RegisterGauges exposes the live visitor count and the audit queue depth.
// Call it once at startup.
func RegisterGauges(visitors, auditPending func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "visitors_active",
		Help:      "Current number of portal visitors held in memory.",
	}, func() float64 { return float64(visitors()) })

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Onboarding commits waiting to be written to the audit store.",
	}, func() float64 { return float64(auditPending()) })
}
