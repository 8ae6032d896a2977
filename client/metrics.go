package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the console.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec
	PollsTotal      *prometheus.CounterVec
	StaleTotal      *prometheus.CounterVec
	ActionsTotal    *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_requests_total",
			Help: "Total admin API requests issued by the console.",
		},
		[]string{"endpoint"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_request_duration_seconds",
			Help:    "Admin API request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_errors_total",
			Help: "Total admin API errors by endpoint and type.",
		},
		[]string{"endpoint", "error_type"},
	)
	polls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_polls_total",
			Help: "Completed polls by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
	stale := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_stale_responses_total",
			Help: "Poll responses discarded because a newer one was already applied.",
		},
		[]string{"source"},
	)
	actions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_actions_total",
			Help: "Operator actions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	registry.MustRegister(requests, requestDuration, errorsTotal, polls, stale, actions)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		ErrorsTotal:     errorsTotal,
		PollsTotal:      polls,
		StaleTotal:      stale,
		ActionsTotal:    actions,
	}
}

// IncRequest increments the requests counter for an endpoint.
func (m *Metrics) IncRequest(endpoint string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint).Inc()
}

// ObserveDuration records a request duration.
func (m *Metrics) ObserveDuration(endpoint string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// IncError increments the errors counter for an endpoint and type label.
func (m *Metrics) IncError(endpoint, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// ObservePoll counts one completed poll.
func (m *Metrics) ObservePoll(source, outcome string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveStale counts one discarded out-of-order poll response.
func (m *Metrics) ObserveStale(source string) {
	if m == nil {
		return
	}
	m.StaleTotal.WithLabelValues(source).Inc()
}

// IncAction counts one operator action.
func (m *Metrics) IncAction(action, outcome string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
}
