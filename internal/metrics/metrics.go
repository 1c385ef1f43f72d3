// Package metrics exposes the Prometheus instruments for the ingestion
// pipeline and correlation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tailer metrics
	LinesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wafguard_tailer_lines_total",
			Help: "Total number of complete log lines read from the audit log",
		},
	)

	BytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wafguard_tailer_bytes_total",
			Help: "Total bytes consumed from the audit log",
		},
	)

	TailerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wafguard_tailer_errors_total",
			Help: "Total transient tailer I/O errors absorbed",
		},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wafguard_pipeline_queue_depth",
			Help: "Current depth of the record queue between tailer and correlator",
		},
	)

	RecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wafguard_pipeline_records_dropped_total",
			Help: "Total records dropped because the queue stayed full past the enqueue timeout",
		},
	)

	// Processing metrics
	DecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wafguard_pipeline_decode_errors_total",
			Help: "Total malformed log lines skipped",
		},
	)

	EventsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wafguard_events_inserted_total",
			Help: "Total events persisted to the store",
		},
	)

	RecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wafguard_pipeline_record_failures_total",
			Help: "Total records whose store writes failed mid-batch",
		},
	)

	// Correlation metrics
	IncidentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wafguard_incidents_created_total",
			Help: "Total new incidents opened",
		},
	)

	IncidentsUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wafguard_incidents_updated_total",
			Help: "Total events folded into an existing open incident",
		},
	)

	CorrelationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wafguard_correlation_duration_seconds",
			Help:    "Duration of one record's normalize-and-correlate cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
