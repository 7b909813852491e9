package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "admin_session"

// Metrics holds the session lifecycle collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Logins          *prometheus.CounterVec
	RefreshAttempts *prometheus.CounterVec
	RefreshOutcomes *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	Transitions     *prometheus.CounterVec
	GuardDecisions  *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
}

// New creates the collectors and registers them on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login exchanges by outcome code",
			},
			[]string{"outcome"},
		),
		RefreshAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_attempts_total",
				Help:      "Individual refresh exchange attempts by result class",
			},
			[]string{"result"},
		),
		RefreshOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_outcomes_total",
				Help:      "Terminal refresh outcomes",
			},
			[]string{"outcome"},
		),
		RefreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Duration of a refresh including retries",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_transitions_total",
				Help:      "Session state transitions",
			},
			[]string{"from", "to"},
		),
		GuardDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guard_decisions_total",
				Help:      "Route guard decisions",
			},
			[]string{"decision"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method and status",
			},
			[]string{"method", "status"},
		),
	}
	m.registry.MustRegister(
		m.Logins,
		m.RefreshAttempts,
		m.RefreshOutcomes,
		m.RefreshDuration,
		m.Transitions,
		m.GuardDecisions,
		m.HTTPRequests,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RefreshAttempt(result string) {
	if m == nil {
		return
	}
	m.RefreshAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) RefreshOutcome(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RefreshOutcomes.WithLabelValues(outcome).Inc()
	m.RefreshDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) GuardDecision(decision string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) HTTPRequest(method string, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, status).Inc()
}
