// Package metrics exposes Prometheus collectors for the API: request
// counts and latencies per route, and sign-in outcomes per flow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crewbase"

// Auth flows, used as the "flow" label.
const (
	FlowLogin              = "login"
	FlowRegister           = "register"
	FlowDemo               = "demo"
	FlowRefresh            = "refresh"
	FlowFederatedLogin     = "federated_login"
	FlowFederatedProvision = "federated_provision"
)

// Auth outcomes, used as the "outcome" label.
const (
	OutcomeSuccess     = "success"
	OutcomePending     = "pending"
	OutcomeRejected    = "rejected"
	OutcomeConflict    = "conflict"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	auth     *prometheus.CounterVec
}

// New registers the collectors with reg. Pass a fresh prometheus.Registry in
// tests so repeated construction does not collide.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		auth: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "attempts_total",
				Help:      "Sign-in attempts by flow and outcome",
			},
			[]string{"flow", "outcome"},
		),
	}

	reg.MustRegister(m.requests, m.duration, m.auth)
	return m
}

// NewDefault registers the collectors with a new registry that also carries
// the Go runtime and process collectors.
func NewDefault() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAuth(flow, outcome string) {
	m.auth.WithLabelValues(flow, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// AuthAttempts returns the counter for one flow and outcome.
func (m *Metrics) AuthAttempts(flow, outcome string) prometheus.Counter {
	return m.auth.WithLabelValues(flow, outcome)
}
