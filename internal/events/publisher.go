// Package events publishes recognition results to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"speech-recognition-bridge/internal/observability/logging"
	"speech-recognition-bridge/internal/observability/metrics"
)

const contentType = "application/json"

// ResultPublisher publishes recognition results keyed by session.
type ResultPublisher interface {
	PublishPartial(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
}

// route is one result kind and where it is written. writer is nil in
// log-only mode.
type route struct {
	eventType string
	topic     string
	writer    *kafka.Writer
}

// Publisher publishes recognition events to one topic per result kind.
// Messages are keyed by session ID and hash-balanced, so the results of a
// session stay ordered within their partition.
type Publisher struct {
	partial   route
	final     route
	principal string
	enabled   bool
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
	Enabled      bool
	Metrics      *metrics.Metrics
}

// New creates a publisher. A nil or disabled config, or one without brokers,
// yields a log-only publisher.
func New(cfg *Config) *Publisher {
	p := &Publisher{
		partial: route{eventType: "partial"},
		final:   route{eventType: "final"},
		log:     logging.WithComponent("events"),
		metrics: metrics.DefaultMetrics,
	}
	if cfg == nil {
		p.log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return p
	}
	if cfg.Metrics != nil {
		p.metrics = cfg.Metrics
	}
	p.principal = cfg.Principal
	p.partial.topic = cfg.TopicPartial
	p.final.topic = cfg.TopicFinal

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		p.log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	p.partial.writer = newWriter(cfg.Brokers, cfg.TopicPartial, transport)
	p.final.writer = newWriter(cfg.Brokers, cfg.TopicFinal, transport)
	p.enabled = true

	p.log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")
	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishPartial publishes a partial result event to the partial topic.
func (p *Publisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.partial, key, event)
}

// PublishFinal publishes a final result event to the final topic.
func (p *Publisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.final, key, event)
}

func (p *Publisher) publish(ctx context.Context, r route, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("topic", r.topic).Msg("Failed to marshal event")
		return err
	}

	p.log.Debug().
		Str("topic", r.topic).
		Str("eventType", r.eventType).
		Str("sessionId", key).
		RawJSON("payload", payload).
		Msg("Publishing recognition result")

	if !p.enabled || r.writer == nil {
		p.metrics.RecordKafkaPublish(r.topic, r.eventType, nil, time.Since(start).Seconds())
		return nil
	}

	err = r.writer.WriteMessages(ctx, p.message(r, key, payload))
	p.metrics.RecordKafkaPublish(r.topic, r.eventType, err, time.Since(start).Seconds())
	if err != nil {
		p.log.Error().
			Err(err).
			Str("topic", r.topic).
			Str("sessionId", key).
			Msg("Failed to write to Kafka")
		return err
	}
	return nil
}

func (p *Publisher) message(r route, key string, payload []byte) kafka.Message {
	return kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(r.eventType)},
			{Key: "principal", Value: []byte(p.principal)},
			{Key: "contentType", Value: []byte(contentType)},
		},
	}
}

// Close flushes and closes the Kafka writers.
func (p *Publisher) Close() error {
	var errs []error
	for _, r := range []route{p.partial, p.final} {
		if r.writer == nil {
			continue
		}
		if err := r.writer.Close(); err != nil {
			p.log.Error().Err(err).Str("topic", r.topic).Msg("Error closing Kafka writer")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
