package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-recognition-bridge/internal/observability/logging"
	"speech-recognition-bridge/internal/observability/metrics"
)

var (
	// ErrQueueFull is returned when a result is dropped because the publish
	// queue is full.
	ErrQueueFull = errors.New("publish queue full")

	// ErrPublisherClosed is returned for results offered after Close.
	ErrPublisherClosed = errors.New("publisher closed")
)

// AsyncConfig configures an AsyncPublisher.
type AsyncConfig struct {
	QueueSize int
	Timeout   time.Duration
	Metrics   *metrics.Metrics
}

type job struct {
	eventType string
	key       string
	event     any
	publish   func(context.Context, string, any) error
}

// AsyncPublisher queues results for a background writer so callers never
// wait on the broker. Results offered while the queue is full are dropped
// and counted.
type AsyncPublisher struct {
	next    ResultPublisher
	timeout time.Duration
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan job
	done   chan struct{}
}

// NewAsyncPublisher starts the background writer for next.
func NewAsyncPublisher(next ResultPublisher, cfg AsyncConfig) *AsyncPublisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}

	p := &AsyncPublisher{
		next:    next,
		timeout: cfg.Timeout,
		log:     logging.WithComponent("events"),
		metrics: cfg.Metrics,
		queue:   make(chan job, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go p.drain()
	return p
}

// PublishPartial queues a partial result. ctx is not used for the write.
func (p *AsyncPublisher) PublishPartial(_ context.Context, key string, event any) error {
	return p.offer(job{eventType: "partial", key: key, event: event, publish: p.next.PublishPartial})
}

// PublishFinal queues a final result. ctx is not used for the write.
func (p *AsyncPublisher) PublishFinal(_ context.Context, key string, event any) error {
	return p.offer(job{eventType: "final", key: key, event: event, publish: p.next.PublishFinal})
}

func (p *AsyncPublisher) offer(j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- j:
		return nil
	default:
		p.metrics.RecordKafkaDropped(j.eventType)
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) drain() {
	defer close(p.done)
	for j := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := j.publish(ctx, j.key, j.event); err != nil {
			p.log.Warn().
				Err(err).
				Str("eventType", j.eventType).
				Str("sessionId", j.key).
				Msg("Failed to publish recognition result")
		}
		cancel()
	}
}

// Close stops accepting results and waits for queued ones to be written or
// for ctx to end.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
