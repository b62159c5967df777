// Package recognition adapts an input event stream to the callback protocol of
// a platform recognition service: a language gate in front of the producer,
// then a per-session translation of every event into listener calls.
package recognition

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"speech-recognition-bridge/internal/input"
	"speech-recognition-bridge/internal/observability/logging"
	"speech-recognition-bridge/internal/observability/metrics"
	"speech-recognition-bridge/internal/service/session"
)

// Producer generates the input events of a listening session.
type Producer interface {
	// TryStart starts listening and reports whether it did. Events are then
	// delivered to sink, possibly from another goroutine.
	TryStart(sink input.Sink) bool

	// Stop asks the producer to stop listening soon. Safe to call at any time.
	Stop()
}

// Request is one listening request.
type Request struct {
	// Language is the requested language tag. Empty or "und" accepts any.
	Language string
	// SessionID identifies the session in logs and published events.
	// Generated when empty.
	SessionID string
}

// Config holds adapter configuration.
type Config struct {
	// LanguageUnavailableSupported is false on platforms without a dedicated
	// language-unavailable code; ErrorServer is reported instead.
	LanguageUnavailableSupported bool
	Logger                       *zerolog.Logger
	Metrics                      *metrics.Metrics
}

// Adapter serves listening requests, one session at a time.
type Adapter struct {
	producer            Producer
	locale              LanguageSource
	languageUnavailable ErrorCode
	ids                 *session.Generator
	log                 zerolog.Logger
	metrics             *metrics.Metrics
}

// New creates an adapter over producer, gated on the language read from locale.
func New(producer Producer, locale LanguageSource, cfg Config) *Adapter {
	a := &Adapter{
		producer:            producer,
		locale:              locale,
		languageUnavailable: ErrorServer,
		ids:                 session.New(),
		metrics:             cfg.Metrics,
	}
	if cfg.LanguageUnavailableSupported {
		a.languageUnavailable = ErrorLanguageUnavailable
	}
	if cfg.Logger != nil {
		a.log = *cfg.Logger
	} else {
		a.log = logging.WithComponent("recognition")
	}
	if a.metrics == nil {
		a.metrics = metrics.DefaultMetrics
	}
	return a
}

// StartListening validates req and starts a session delivering to l.
//
// When the requested language does not match the configured one, or the
// producer refuses to start, l receives a single language-unavailable error and
// ErrLanguageUnavailable or ErrProducerRefused is returned.
func (a *Adapter) StartListening(req Request, l Listener) (*Session, error) {
	a.metrics.RecordSessionRequested()

	id := req.SessionID
	if id == "" {
		id = a.ids.Next("recognition")
	}
	log := a.log.With().Str("sessionId", id).Logger()

	configured := a.locale.Language()
	if !languageAccepted(req.Language, configured) {
		log.Error().
			Str("configured", configured).
			Str("requested", req.Language).
			Msg("Unsupported language")
		a.metrics.RecordSessionRejected("language_mismatch")
		return nil, a.reject(log, l, ErrLanguageUnavailable)
	}

	s := newSession(id, req, l, log, a.metrics)
	if !a.producer.TryStart(s.handle) {
		log.Warn().Msg("Input producer refused to start")
		s.abandon()
		a.metrics.RecordSessionRejected("producer_refused")
		return nil, a.reject(log, l, ErrProducerRefused)
	}
	a.metrics.RecordSessionStarted()

	log.Info().
		Str("configured", configured).
		Str("requested", req.Language).
		Msg("Listening session started")
	return s, nil
}

// StopListening asks the producer to stop. It has no effect without an active
// session.
func (a *Adapter) StopListening() {
	a.log.Debug().Msg("Stop listening requested")
	a.producer.Stop()
}

// Cancel asks the producer to stop, like StopListening.
func (a *Adapter) Cancel() {
	a.log.Debug().Msg("Cancel requested")
	a.producer.Stop()
}

func (a *Adapter) reject(log zerolog.Logger, l Listener, cause error) error {
	if err := deliver(log, a.metrics, l, []Call{Error{Code: a.languageUnavailable}}); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// deliver invokes calls on l in order. A call failing with ErrListenerGone is
// logged and skipped; any other failure stops delivery and is returned.
func deliver(log zerolog.Logger, m *metrics.Metrics, l Listener, calls []Call) error {
	for _, c := range calls {
		err := c.invoke(l)
		switch {
		case err == nil:
			m.RecordListenerCall(c.Name(), "")
		case errors.Is(err, ErrListenerGone):
			m.RecordListenerCall(c.Name(), "gone")
			log.Error().
				Err(err).
				Str("callback", c.Name()).
				Msg("Remote listener unreachable, dropping callback")
		default:
			m.RecordListenerCall(c.Name(), "failed")
			return fmt.Errorf("listener %s: %w", c.Name(), err)
		}
	}
	return nil
}
