package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	DropsIngested   *prometheus.CounterVec
	AlertsSent      *prometheus.CounterVec
	AlertsSkipped   *prometheus.CounterVec
	SendFailures    prometheus.Counter
	Enrichment      *prometheus.CounterVec
	FanoutDuration  prometheus.Histogram
	FanoutsInFlight prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		DropsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drops_ingested_total",
				Help: "Drops received at ingress by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		AlertsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_sent_total",
				Help: "Alerts handed to the conversation surface",
			},
			[]string{"kind"},
		),
		AlertsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_skipped_total",
				Help: "Candidate users skipped by filter or gate",
			},
			[]string{"reason"},
		),
		SendFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alert_send_failures_total",
				Help: "Alerts the conversation surface failed to deliver",
			},
		),
		Enrichment: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrichment_total",
				Help: "Enrichment attempts by result",
			},
			[]string{"result"},
		),
		FanoutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fanout_duration_seconds",
				Help:    "Wall time of one drop's fanout",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
		),
		FanoutsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fanouts_in_flight",
				Help: "Fanouts currently running",
			},
		),
	}

	registry.MustRegister(
		m.DropsIngested,
		m.AlertsSent,
		m.AlertsSkipped,
		m.SendFailures,
		m.Enrichment,
		m.FanoutDuration,
		m.FanoutsInFlight,
	)
	return m
}

// Registry returns the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
