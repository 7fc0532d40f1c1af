// Package metrics exposes Prometheus counters for the login flow.
//
// A nil *Metrics is valid and records nothing, so tests and tools can skip wiring it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the login-flow collectors.
type Metrics struct {
	loginsStarted    prometheus.Counter
	callbacks        *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	guardChecks      *prometheus.CounterVec
	logouts          prometheus.Counter
}

// New creates the collectors and registers them on reg.
// Panics on duplicate registration, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loginsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "styx_logins_started_total",
			Help: "Authorization redirects issued.",
		}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "styx_callbacks_total",
			Help: "Provider callbacks by result.",
		}, []string{"result"}),
		exchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "styx_code_exchange_duration_seconds",
			Help:    "Authorization code exchange latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "outcome"}),
		guardChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "styx_guard_checks_total",
			Help: "Session checks on protected routes by result.",
		}, []string{"result"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "styx_logouts_total",
			Help: "Logout requests.",
		}),
	}
	reg.MustRegister(m.loginsStarted, m.callbacks, m.exchangeDuration, m.guardChecks, m.logouts)
	return m
}

// Handler serves the exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) LoginStarted() {
	if m == nil {
		return
	}
	m.loginsStarted.Inc()
}

// CallbackResult counts one callback. result is "established" or an error kind.
func (m *Metrics) CallbackResult(result string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(result).Inc()
}

// ObserveExchange records one exchange call; outcome is derived from err.
func (m *Metrics) ObserveExchange(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.exchangeDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

func (m *Metrics) GuardResult(allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.guardChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) Logout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}
