package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerd_events_accepted_total",
		Help: "Total number of inbound events accepted into the ledger.",
	})

	EventsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerd_events_rejected_total",
		Help: "Total number of inbound events rejected by validation.",
	})

	ConnectorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerd_connector_runs_total",
		Help: "Total number of connector runs, labelled by provider type and outcome.",
	}, []string{"provider_type", "status"})

	RollupRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerd_rollup_rebuilds_total",
		Help: "Total number of daily rollup bucket rebuilds.",
	})

	IngestBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledgerd_ingest_batch_duration_ms",
		Help:    "End-to-end batch ingestion latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerd_live_subscribers",
		Help: "Current number of connected live event stream subscribers.",
	})
)
