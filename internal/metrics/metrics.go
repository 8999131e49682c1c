package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "erp_portal"

// Metrics holds the portal's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	GuardDecisions    *prometheus.CounterVec
	AuthActions       *prometheus.CounterVec
	ScheduledRefresh  *prometheus.CounterVec
	OpenSessions      prometheus.Gauge
	AuthAPIDurationMs *prometheus.HistogramVec
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		GuardDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guard_decisions_total",
				Help:      "Route guard outcomes per navigation",
			},
			[]string{"decision"}, // allow, login, forbidden, authenticated_redirect, skip
		),
		AuthActions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_actions_total",
				Help:      "Session controller actions by outcome",
			},
			[]string{"action", "result"},
		),
		ScheduledRefresh: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduled_refresh_total",
				Help:      "Refresh scheduler fires by outcome",
			},
			[]string{"result"},
		),
		OpenSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_sessions",
				Help:      "Portal sessions currently held by the registry",
			},
		),
		AuthAPIDurationMs: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "auth_api_duration_milliseconds",
				Help:      "Latency of calls to the external Auth API",
				Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"endpoint", "status"},
		),
	}
}

func (m *Metrics) GuardDecision(decision string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) AuthAction(action string, err error) {
	if m == nil {
		return
	}
	m.AuthActions.WithLabelValues(action, result(err)).Inc()
}

func (m *Metrics) Refresh(err error) {
	if m == nil {
		return
	}
	m.ScheduledRefresh.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.OpenSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.OpenSessions.Dec()
}

func (m *Metrics) AuthAPICall(endpoint, status string, ms float64) {
	if m == nil {
		return
	}
	m.AuthAPIDurationMs.WithLabelValues(endpoint, status).Observe(ms)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
