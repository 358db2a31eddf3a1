// Package metrics exposes Prometheus counters for batch run accounting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerfold_events_parsed_total",
		Help: "Total number of raw records successfully parsed, labelled by entity kind.",
	}, []string{"kind"})

	EventsMalformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerfold_events_malformed_total",
		Help: "Total number of raw records rejected by the parser, labelled by entity kind.",
	}, []string{"kind"})

	Anomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerfold_reconstruction_anomalies_total",
		Help: "Total number of data-integrity anomalies observed during reconstruction, labelled by anomaly kind.",
	}, []string{"anomaly"})

	TransactionsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerfold_transactions_emitted_total",
		Help: "Total number of transactions derived from monitored-field changes, labelled by entity kind.",
	}, []string{"kind"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledgerfold_run_duration_ms",
		Help:    "End-to-end batch run latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)
