// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "asr_gateway"

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Request metrics
	RequestsTotal   prometheus.Counter
	RequestsActive  prometheus.Gauge
	RequestsFailed  *prometheus.CounterVec
	RequestDuration prometheus.Histogram

	// Audio metrics
	AudioBytesReceived prometheus.Counter
	DecodeFailures     *prometheus.CounterVec

	// Provider metrics
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	Transcripts     prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of transcription requests received",
		}),
		RequestsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_active",
			Help:      "Number of transcription requests currently in flight",
		}),
		RequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_failed_total",
			Help:      "Total number of failed transcription requests",
		}, []string{"reason"}),
		RequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end duration of transcription requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total compressed audio bytes received",
		}),
		DecodeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Total codec decode failures",
		}, []string{"reason"}),

		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Latency of recognition backend calls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Total recognition backend failures by class",
		}, []string{"provider", "class"}),
		RetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total backend calls retried after a transient failure",
		}),
		Transcripts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Total successful transcriptions",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordRequestStart records a transcription request starting.
func (m *Metrics) RecordRequestStart(audioBytes int) {
	m.RequestsTotal.Inc()
	m.RequestsActive.Inc()
	m.AudioBytesReceived.Add(float64(audioBytes))
}

// RecordRequestEnd records a transcription request ending. reason is
// empty on success.
func (m *Metrics) RecordRequestEnd(reason string, duration time.Duration) {
	m.RequestsActive.Dec()
	m.RequestDuration.Observe(duration.Seconds())
	if reason == "" {
		m.Transcripts.Inc()
	} else {
		m.RequestsFailed.WithLabelValues(reason).Inc()
	}
}

// RecordDecodeFailure records a codec decode failure.
func (m *Metrics) RecordDecodeFailure(reason string) {
	m.DecodeFailures.WithLabelValues(reason).Inc()
}

// RecordProviderCall records one backend call. class is "ok" for success
// or the failure classification otherwise.
func (m *Metrics) RecordProviderCall(provider, class string, duration time.Duration) {
	m.ProviderLatency.WithLabelValues(provider).Observe(duration.Seconds())
	if class != "ok" {
		m.ProviderErrors.WithLabelValues(provider, class).Inc()
	}
}

// RecordRetry records a backend call being retried.
func (m *Metrics) RecordRetry() {
	m.RetriesTotal.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}
