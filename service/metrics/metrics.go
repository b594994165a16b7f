// Package metrics exposes Prometheus collectors for the approval subsystem.
// Every collector is registered on an instance-local registry so multiple
// services (and tests) can coexist in one process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the subsystem's Prometheus collectors. A nil *Metrics is a
// valid no-op receiver so instrumentation stays optional.
type Metrics struct {
	registry *prometheus.Registry

	pending       prometheus.Gauge
	decisions     *prometheus.CounterVec
	slaBreaches   prometheus.Counter
	overrides     prometheus.Counter
	decideLatency prometheus.Histogram
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_approvals_pending",
			Help: "Number of approval records currently pending",
		}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_approvals_decided_total",
			Help: "Total number of approval records reaching a terminal state",
		}, []string{"status"}),
		slaBreaches: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_sla_breaches_total",
			Help: "Total number of approvals expired by the SLA monitor",
		}),
		overrides: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_emergency_overrides_total",
			Help: "Total number of emergency overrides applied",
		}),
		decideLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_decision_latency_seconds",
			Help:    "Time from approval request to human decision",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~13min
		}),
	}
}

// Registry returns the instance registry for scraping or test inspection.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordPending adjusts the pending gauge by delta.
func (m *Metrics) RecordPending(delta int) {
	if m == nil {
		return
	}
	m.pending.Add(float64(delta))
}

// RecordTerminal counts a terminal transition by status.
func (m *Metrics) RecordTerminal(status string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(status).Inc()
}

// RecordDecisionLatency observes the request-to-decision latency of a human
// decision.
func (m *Metrics) RecordDecisionLatency(latency time.Duration) {
	if m == nil {
		return
	}
	m.decideLatency.Observe(latency.Seconds())
}

// RecordSLABreach counts an expiry enforced by the SLA monitor.
func (m *Metrics) RecordSLABreach() {
	if m == nil {
		return
	}
	m.slaBreaches.Inc()
}

// RecordOverride counts an applied emergency override.
func (m *Metrics) RecordOverride() {
	if m == nil {
		return
	}
	m.overrides.Inc()
}
