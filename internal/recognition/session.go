package recognition

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"speech-recognition-bridge/internal/input"
	"speech-recognition-bridge/internal/observability/metrics"
)

const scopeName = "speech-recognition-bridge/internal/recognition"

var tracer = otel.Tracer(scopeName)

// Session is the handle of one started listening session.
type Session struct {
	id       string
	listener Listener
	log      zerolog.Logger
	metrics  *metrics.Metrics
	span     trace.Span
	done     chan struct{}

	mu          sync.Mutex
	speechBegun bool
	finished    bool
	err         error
}

func newSession(id string, req Request, l Listener, log zerolog.Logger, m *metrics.Metrics) *Session {
	_, span := tracer.Start(context.Background(), "recognition.session",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("language.requested", req.Language),
		),
	)
	return &Session{
		id:       id,
		listener: l,
		log:      log,
		metrics:  m,
		span:     span,
		done:     make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Done is closed once the terminal event has been delivered to the listener,
// or delivery failed for a reason other than a gone listener.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the listener failure that ended the session early, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// handle is the sink given to the producer. Events are translated one at a
// time in arrival order, whatever goroutine delivers them.
func (s *Session) handle(ev input.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := input.Kind(ev)
	if s.finished {
		s.log.Warn().Str("event", kind).Msg("Ignoring input event after session end")
		return nil
	}
	s.metrics.RecordInputEvent(kind)
	s.span.AddEvent("input." + kind)

	if e, ok := ev.(input.Error); ok {
		s.log.Error().Err(e.Cause).Msg("Input producer failed")
	}

	var calls []Call
	s.speechBegun, calls = Translate(s.speechBegun, ev)

	if err := deliver(s.log, s.metrics, s.listener, calls); err != nil {
		s.log.Error().Err(err).Msg("Listener delivery failed, ending session")
		s.err = err
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, "listener delivery failed")
		s.finish("listener_error")
		return err
	}

	if input.IsTerminal(ev) {
		s.finish(kind)
	}
	return nil
}

// finish must be called with s.mu held.
func (s *Session) finish(outcome string) {
	s.finished = true
	s.metrics.RecordSessionCompleted(outcome)
	s.span.SetAttributes(
		attribute.String("session.outcome", outcome),
		attribute.Bool("speech.begun", s.speechBegun),
	)
	s.span.End()
	close(s.done)

	s.log.Info().
		Str("outcome", outcome).
		Bool("speechBegun", s.speechBegun).
		Msg("Listening session ended")
}

// abandon ends a session the producer never started.
func (s *Session) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.span.SetStatus(codes.Error, "producer refused")
	s.span.End()
	close(s.done)
}
