// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_recognition_bridge"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Stream metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamsSuccess prometheus.Counter
	StreamsFailed  prometheus.Counter
	StreamDuration prometheus.Histogram
	StreamMessages *prometheus.CounterVec

	// Session metrics
	SessionsRequested prometheus.Counter
	SessionsRejected  *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
	SessionsCompleted *prometheus.CounterVec

	// Input event metrics
	InputEvents *prometheus.CounterVec

	// Listener metrics
	ListenerCalls    *prometheus.CounterVec
	ListenerFailures *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
	KafkaPublishDropped *prometheus.CounterVec

	// STT metrics
	STTErrors *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// Stream metrics
		StreamsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of client streams started",
		}),
		StreamsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently active client streams",
		}),
		StreamsSuccess: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_success_total",
			Help:      "Total number of successfully completed streams",
		}),
		StreamsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of failed streams",
		}),
		StreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of client streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		StreamMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Total number of stream messages by direction",
		}, []string{"direction"}),

		// Session metrics
		SessionsRequested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_requested_total",
			Help:      "Total number of listening requests",
		}),
		SessionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rejected_total",
			Help:      "Total number of listening requests rejected before a session started",
		}, []string{"reason"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions that have not reached a terminal event",
		}),
		SessionsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of sessions that reached a terminal event",
		}, []string{"outcome"}),

		// Input event metrics
		InputEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_events_total",
			Help:      "Total number of input events translated",
		}, []string{"kind"}),

		// Listener metrics
		ListenerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_calls_total",
			Help:      "Total number of listener callback attempts",
		}, []string{"callback"}),
		ListenerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_failures_total",
			Help:      "Total number of listener callbacks that failed",
		}, []string{"callback", "kind"}),

		// Audio metrics
		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
		KafkaPublishDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_dropped_total",
			Help:      "Total number of results dropped because the publish queue was full",
		}, []string{"event_type"}),

		// STT metrics
		STTErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),
	}
}

// RecordStreamStart records a new stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a stream ending.
func (m *Metrics) RecordStreamEnd(success bool, durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
	if success {
		m.StreamsSuccess.Inc()
	} else {
		m.StreamsFailed.Inc()
	}
}

// RecordStreamMessage records one message received from ("in") or sent to
// ("out") a client stream.
func (m *Metrics) RecordStreamMessage(direction string) {
	m.StreamMessages.WithLabelValues(direction).Inc()
}

// RecordSessionRequested records a listening request reaching the adapter.
func (m *Metrics) RecordSessionRequested() {
	m.SessionsRequested.Inc()
}

// RecordSessionRejected records a request rejected before a session started.
func (m *Metrics) RecordSessionRejected(reason string) {
	m.SessionsRejected.WithLabelValues(reason).Inc()
}

// RecordSessionStarted records a session accepted by the producer.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsActive.Inc()
}

// RecordSessionCompleted records a session reaching its terminal event.
func (m *Metrics) RecordSessionCompleted(outcome string) {
	m.SessionsActive.Dec()
	m.SessionsCompleted.WithLabelValues(outcome).Inc()
}

// RecordInputEvent records one translated input event.
func (m *Metrics) RecordInputEvent(kind string) {
	m.InputEvents.WithLabelValues(kind).Inc()
}

// RecordListenerCall records a listener callback attempt and its failure, if any.
// kind is empty for successful calls.
func (m *Metrics) RecordListenerCall(callback, failureKind string) {
	m.ListenerCalls.WithLabelValues(callback).Inc()
	if failureKind != "" {
		m.ListenerFailures.WithLabelValues(callback, failureKind).Inc()
	}
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordKafkaDropped records a result dropped before publishing.
func (m *Metrics) RecordKafkaDropped(eventType string) {
	m.KafkaPublishDropped.WithLabelValues(eventType).Inc()
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}
