package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "motorwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "motorwatch_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "endpoint"},
	)

	// Ingest metrics
	ReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorwatch_readings_total",
			Help: "Total number of sensor readings received",
		},
		[]string{"status"}, // status: accepted, rejected
	)

	ValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorwatch_validation_errors_total",
			Help: "Total number of reading validation errors",
		},
		[]string{"kind"},
	)

	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorwatch_alerts_triggered_total",
			Help: "Total number of alerts produced by threshold evaluation",
		},
		[]string{"alert_type"},
	)

	// Publisher metrics
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorwatch_publish_total",
			Help: "Total number of alert publish attempts",
		},
		[]string{"status"}, // status: success, failed, dropped
	)

	PublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "motorwatch_publish_duration_seconds",
			Help:    "Time taken to hand an alert to the fanout transport",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	PublishBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "motorwatch_publish_bytes_total",
			Help: "Total bytes handed to the fanout transport",
		},
	)

	// Subscriber metrics
	SubscriberMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorwatch_subscriber_messages_total",
			Help: "Total number of fanout messages received by the subscriber",
		},
		[]string{"status"}, // status: processed, invalid
	)

	// Aggregator metrics
	AggregatorMotors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "motorwatch_aggregator_motors",
			Help: "Number of motors with an alert window",
		},
	)

	AggregatorDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "motorwatch_aggregator_duplicates_total",
			Help: "Alert events ignored because they were already in the window",
		},
	)

	// WebSocket metrics
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "motorwatch_stream_clients",
			Help: "Number of connected live alert stream clients",
		},
	)

	StreamDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "motorwatch_stream_dropped_clients_total",
			Help: "Live stream clients disconnected because their buffer was full",
		},
	)

	// Archiver metrics
	ArchiveQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "motorwatch_archive_queue_size",
			Help: "Current size of the archive queue",
		},
	)

	ArchiveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorwatch_archive_total",
			Help: "Total number of alerts handed to the history store",
		},
		[]string{"status"}, // status: stored, failed, dropped
	)

	ArchiveBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "motorwatch_archive_batch_duration_seconds",
			Help:    "Time taken to store a batch of alerts",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
