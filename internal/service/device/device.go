// Package device provides the local speech recognizer: an input producer that
// streams audio into an STT provider and turns its callbacks into input events.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-recognition-bridge/internal/input"
	"speech-recognition-bridge/internal/observability/logging"
	"speech-recognition-bridge/internal/observability/metrics"
	"speech-recognition-bridge/internal/recognition"
	"speech-recognition-bridge/internal/service/session"
	"speech-recognition-bridge/internal/service/stt"
)

var (
	// ErrNotListening is returned by Feed when no session is active.
	ErrNotListening = errors.New("device is not listening")

	// ErrLimitExceeded is the cause of the Error event emitted when a session
	// outgrows its Limits.
	ErrLimitExceeded = errors.New("session limit exceeded")
)

// Limits defines safety guardrails for a single session.
// These prevent unbounded resource usage when the provider never ends the
// utterance.
type Limits struct {
	MaxAudioBytes int64         // Max audio fed per session
	MaxDuration   time.Duration // Max session duration
	MaxPartials   int           // Max partial transcripts per session
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioBytes: 5 * 1024 * 1024, // 5MB (~5 minutes at 8kHz 16-bit mono)
		MaxDuration:   5 * time.Minute,
		MaxPartials:   500,
	}
}

// Config holds device configuration.
type Config struct {
	// NoInputTimeout ends a session with None when nothing was recognized
	// in time. Zero disables it.
	NoInputTimeout time.Duration
	// StopGrace is how long a stopped session may take to report its
	// terminal event before None is emitted on its behalf.
	StopGrace time.Duration
	Limits    Limits
	// Provider names the STT provider in metrics.
	Provider string
	Logger   *zerolog.Logger
	Metrics  *metrics.Metrics
}

// DefaultConfig returns the default device configuration.
func DefaultConfig() Config {
	return Config{
		NoInputTimeout: 5 * time.Second,
		StopGrace:      2 * time.Second,
		Limits:         DefaultLimits(),
		Provider:       "mock",
	}
}

// Device is a recognition.Producer running one provider session at a time.
type Device struct {
	factory stt.Factory
	locale  recognition.LanguageSource
	cfg     Config
	ids     *session.Generator
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	closed bool
	active *run
}

// New creates a device starting provider sessions from factory in the
// language read from locale.
func New(factory stt.Factory, locale recognition.LanguageSource, cfg Config) *Device {
	d := &Device{
		factory: factory,
		locale:  locale,
		cfg:     cfg,
		ids:     session.New(),
		metrics: cfg.Metrics,
	}
	if cfg.Logger != nil {
		d.log = *cfg.Logger
	} else {
		d.log = logging.WithComponent("device")
	}
	if d.metrics == nil {
		d.metrics = metrics.DefaultMetrics
	}
	return d
}

// TryStart starts a provider session delivering events to sink. It refuses
// when the device is closed, already listening, or the provider fails.
func (d *Device) TryStart(sink input.Sink) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn().Msg("TryStart refused: device closed")
		return false
	}
	if d.active != nil {
		id := d.active.id
		d.mu.Unlock()
		d.log.Warn().Str("activeSession", id).Msg("TryStart refused: already listening")
		return false
	}
	r := d.newRun(sink)
	d.active = r
	d.mu.Unlock()

	if err := r.start(); err != nil {
		r.log.Error().Err(err).Msg("Failed to start STT provider")
		d.metrics.RecordSTTError(d.cfg.Provider, "start")
		r.cleanup()
		d.release(r)
		return false
	}

	r.log.Info().Str("provider", d.cfg.Provider).Msg("Provider session started")
	return true
}

// Feed forwards audio to the active provider session. Audio fed while the
// session is stopping is dropped.
func (d *Device) Feed(ctx context.Context, pcm []byte) error {
	d.mu.Lock()
	r := d.active
	d.mu.Unlock()

	if r == nil {
		return ErrNotListening
	}
	return r.feed(ctx, pcm)
}

// Stop asks the active session to stop. Safe to call at any time.
func (d *Device) Stop() {
	d.mu.Lock()
	r := d.active
	d.mu.Unlock()

	if r != nil {
		r.stop()
	}
}

// Listening reports whether a session is active.
func (d *Device) Listening() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

// Close stops the active session and refuses any further one.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	r := d.active
	d.mu.Unlock()

	if r != nil {
		r.stop()
	}
	return nil
}

func (d *Device) release(r *run) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == r {
		d.active = nil
	}
}

func (d *Device) newRun(sink input.Sink) *run {
	id := d.ids.Next("device")
	ctx, cancel := context.WithCancel(context.Background())
	return &run{
		d:         d,
		id:        id,
		sink:      sink,
		lifecycle: session.NewLifecycle(id),
		log:       d.log.With().Str("sessionId", id).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		started:   time.Now(),
	}
}

// run is one provider session. It implements stt.Callback.
type run struct {
	d         *Device
	id        string
	sink      input.Sink
	lifecycle *session.Lifecycle
	log       zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	started   time.Time

	// emitMu serializes lifecycle transitions with their sink call, so events
	// reach the sink in lifecycle order.
	emitMu sync.Mutex

	mu         sync.Mutex
	adapter    stt.Adapter
	stopping   bool
	audioBytes int64
	partials   int
	noInput    *time.Timer
	grace      *time.Timer

	cleanupOnce sync.Once
}

func (r *run) start() error {
	adapter, err := r.d.factory(r.ctx, r.d.locale.Language())
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	r.mu.Lock()
	r.adapter = adapter
	r.mu.Unlock()

	if err := adapter.Start(r.ctx, r); err != nil {
		return fmt.Errorf("start provider: %w", err)
	}

	if t := r.d.cfg.NoInputTimeout; t > 0 {
		r.mu.Lock()
		r.noInput = time.AfterFunc(t, r.onNoInput)
		r.mu.Unlock()
	}
	return nil
}

func (r *run) feed(ctx context.Context, pcm []byte) error {
	r.mu.Lock()
	if r.stopping || r.adapter == nil || r.lifecycle.IsEnded() {
		r.mu.Unlock()
		return nil
	}
	r.audioBytes += int64(len(pcm))
	bytes := r.audioBytes
	adapter := r.adapter
	r.mu.Unlock()

	r.d.metrics.RecordAudioReceived(len(pcm))

	limits := r.d.cfg.Limits
	if limits.MaxAudioBytes > 0 && bytes > limits.MaxAudioBytes {
		err := fmt.Errorf("%w: max audio bytes %d > %d", ErrLimitExceeded, bytes, limits.MaxAudioBytes)
		r.fail(err)
		return err
	}
	if elapsed := time.Since(r.started); limits.MaxDuration > 0 && elapsed > limits.MaxDuration {
		err := fmt.Errorf("%w: max duration %v > %v", ErrLimitExceeded, elapsed, limits.MaxDuration)
		r.fail(err)
		return err
	}

	return adapter.SendAudio(ctx, pcm)
}

// stop closes the provider and arms the grace timer.
func (r *run) stop() {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return
	}
	r.stopping = true
	adapter := r.adapter
	if r.noInput != nil {
		r.noInput.Stop()
	}
	if g := r.d.cfg.StopGrace; g > 0 {
		r.grace = time.AfterFunc(g, r.onGraceExpired)
	}
	r.mu.Unlock()

	r.log.Debug().Msg("Stop requested")
	if adapter != nil {
		if err := adapter.Close(); err != nil {
			r.log.Warn().Err(err).Msg("Failed to close STT provider")
		}
	}
	if r.d.cfg.StopGrace <= 0 {
		r.onGraceExpired()
	}
}

// --- stt.Callback implementation ---

// OnPartial emits a Partial unless the session already ended.
func (r *run) OnPartial(text string) {
	r.mu.Lock()
	if r.noInput != nil {
		r.noInput.Stop()
	}
	r.partials++
	count := r.partials
	r.mu.Unlock()

	if limit := r.d.cfg.Limits.MaxPartials; limit > 0 && count > limit {
		r.fail(fmt.Errorf("%w: max partials %d > %d", ErrLimitExceeded, count, limit))
		return
	}

	r.emit(func() bool { return r.lifecycle.EmitPartial() == nil }, input.Partial{Utterance: text})
}

// OnFinal emits the Final, or None when the provider returned no alternatives.
func (r *run) OnFinal(alternatives []input.Utterance) {
	var ev input.Event = input.Final{Utterances: alternatives}
	if len(alternatives) == 0 {
		ev = input.None{}
	}
	r.emit(r.finish, ev)
}

// OnEndOfUtterance emits None when no final was recognized.
func (r *run) OnEndOfUtterance() {
	r.emit(r.finish, input.None{})
}

// OnError fails the session with err.
func (r *run) OnError(err error) {
	if r.lifecycle.IsEnded() {
		r.log.Debug().Err(err).Msg("STT error after session end ignored")
		return
	}
	r.d.metrics.RecordSTTError(r.d.cfg.Provider, "stream")
	r.fail(err)
}

func (r *run) onNoInput() {
	r.emit(r.lifecycle.FinishSilent, input.None{})
}

func (r *run) onGraceExpired() {
	r.emit(r.finish, input.None{})
}

func (r *run) fail(err error) {
	r.emit(r.lifecycle.Fail, input.Error{Cause: err})
}

func (r *run) finish() bool {
	return r.lifecycle.Finish() == nil
}

// emit delivers ev if transition accepts it. The device is released before a
// terminal event is delivered, so the sink may start the next session.
func (r *run) emit(transition func() bool, ev input.Event) {
	r.emitMu.Lock()
	if !transition() {
		r.emitMu.Unlock()
		r.log.Debug().
			Str("event", input.Kind(ev)).
			Str("state", r.lifecycle.State().String()).
			Msg("Event ignored")
		return
	}

	terminal := input.IsTerminal(ev)
	if terminal {
		r.d.release(r)
	}
	err := r.sink(ev)
	r.emitMu.Unlock()

	if err != nil {
		r.log.Warn().Err(err).Str("event", input.Kind(ev)).Msg("Sink failed, stopping session")
		r.lifecycle.Fail()
		r.d.release(r)
		r.cleanup()
		return
	}
	if terminal {
		r.log.Info().
			Str("event", input.Kind(ev)).
			Dur("duration", time.Since(r.started)).
			Msg("Provider session ended")
		r.cleanup()
	}
}

// cleanup stops the timers and tears down the provider session.
func (r *run) cleanup() {
	r.cleanupOnce.Do(func() {
		r.mu.Lock()
		r.stopping = true
		if r.noInput != nil {
			r.noInput.Stop()
		}
		if r.grace != nil {
			r.grace.Stop()
		}
		adapter := r.adapter
		r.mu.Unlock()

		if adapter != nil {
			if err := adapter.Close(); err != nil {
				r.log.Warn().Err(err).Msg("Failed to close STT provider")
			}
		}
		r.cancel()
	})
}
