// Package metrics exposes Prometheus instrumentation for the event pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kora_samples_ingested_total",
			Help: "Telemetry samples processed by the pipeline",
		},
		[]string{"outcome"}, // "anomaly", "normal", "rejected"
	)

	IncidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kora_incidents_created_total",
			Help: "Incidents persisted, by severity",
		},
		[]string{"severity"},
	)

	NotarizationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kora_notarizations_total",
			Help: "Ledger notarization terminal outcomes",
		},
		[]string{"outcome"}, // "confirmed", "failed"
	)

	NotaryRoundTrip = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kora_notary_roundtrip_seconds",
			Help:    "Duration of ledger notary submissions",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	AlertsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kora_alerts_dropped_total",
			Help: "Alert events that could not be delivered to any dashboard",
		},
	)

	ActiveSimulations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kora_active_simulations",
			Help: "Device streams currently replaying the historical dataset",
		},
	)
)
