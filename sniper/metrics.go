package sniper

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the attack's Prometheus collectors on a private registry.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// AttemptsTotal counts registration writes by response class.
	AttemptsTotal *prometheus.CounterVec
	// OutcomesTotal counts finished subjects by result.
	OutcomesTotal *prometheus.CounterVec
	// WakeDriftSeconds is the last precision-wake drift.
	WakeDriftSeconds prometheus.Gauge
	// ClockOffsetSeconds is the last measured NTP offset.
	ClockOffsetSeconds prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsp_sniper_attempts_total",
				Help: "Registration requests sent, by response class",
			},
			[]string{"class"},
		),
		OutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsp_sniper_outcomes_total",
				Help: "Subjects that reached a terminal state, by result",
			},
			[]string{"result"},
		),
		WakeDriftSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wsp_sniper_wake_drift_seconds",
			Help: "Difference between the actual wake time and the target instant",
		}),
		ClockOffsetSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wsp_sniper_clock_offset_seconds",
			Help: "Network time minus local time at the last sync",
		}),
	}
	m.registry.MustRegister(m.AttemptsTotal, m.OutcomesTotal, m.WakeDriftSeconds, m.ClockOffsetSeconds)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveWake records the wake drift and the clock offset it was measured with.
func (m *Metrics) ObserveWake(drift, offset time.Duration) {
	if m == nil {
		return
	}
	m.WakeDriftSeconds.Set(drift.Seconds())
	m.ClockOffsetSeconds.Set(offset.Seconds())
}

func (m *Metrics) observeAttempt(c Class) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(c.String()).Inc()
}

func (m *Metrics) observeOutcome(r Result) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(r.String()).Inc()
}
