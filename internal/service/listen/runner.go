// Package listen runs listening sessions for client connections, independent
// of the transport carrying them.
package listen

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"speech-recognition-bridge/internal/events"
	"speech-recognition-bridge/internal/models"
	"speech-recognition-bridge/internal/observability/logging"
	"speech-recognition-bridge/internal/observability/metrics"
	"speech-recognition-bridge/internal/recognition"
	"speech-recognition-bridge/internal/service/device"
	"speech-recognition-bridge/internal/service/session"
	"speech-recognition-bridge/internal/service/stt"
)

// detachMargin is added to the stop grace when waiting for a cancelled
// session to deliver its terminal result.
const detachMargin = 500 * time.Millisecond

// ErrMalformedMessage is wrapped by Recv errors for a client message that
// could not be decoded. The connection stays usable.
var ErrMalformedMessage = errors.New("malformed client message")

// Conn is one client connection. Recv and Send may be called concurrently.
// Send errors caused by the client going away wrap recognition.ErrListenerGone.
type Conn interface {
	Recv() (models.ClientMessage, error)
	Send(n models.Notification) error
}

// Config holds the dependencies shared by all connections.
type Config struct {
	Locale  recognition.LanguageSource
	Factory stt.Factory
	Device  device.Config
	// LanguageUnavailableSupported selects the error code of rejected requests.
	LanguageUnavailableSupported bool
	Publisher                    events.ResultPublisher
	Validator                    events.EventValidator
	Metrics                      *metrics.Metrics
}

// Runner serves connections, one listening session each.
type Runner struct {
	cfg Config
	ids *session.Generator
}

// NewRunner creates a runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	return &Runner{cfg: cfg, ids: session.New()}
}

// Serve runs conn until its session is done, the client goes away or ctx
// ends. A client closing its side stops the session and waits for its
// terminal result. The session's listener failure, if any, is returned.
func (r *Runner) Serve(ctx context.Context, transport string, conn Conn) error {
	connectionID := uuid.NewString()
	log := logging.WithConnection(transport, connectionID)

	devCfg := r.cfg.Device
	devLog := log.With().Str("component", "device").Logger()
	devCfg.Logger = &devLog
	devCfg.Metrics = r.cfg.Metrics
	dev := device.New(r.cfg.Factory, r.cfg.Locale, devCfg)
	defer dev.Close()

	recLog := log.With().Str("component", "recognition").Logger()
	adapter := recognition.New(dev, r.cfg.Locale, recognition.Config{
		LanguageUnavailableSupported: r.cfg.LanguageUnavailableSupported,
		Logger:                       &recLog,
		Metrics:                      r.cfg.Metrics,
	})

	msgs, recvErrs, quit := r.receive(conn, log)
	defer close(quit)

	log.Info().Msg("Connection opened")

	var current *recognition.Session
	var note *notifier
	var done <-chan struct{}
	// No notification reaches conn once Serve has returned.
	defer func() {
		if note != nil {
			note.detach()
		}
	}()
	for {
		select {
		case msg := <-msgs:
			switch msg.Type {
			case models.MessageStart:
				// A start while a session runs is refused by the device and
				// reported to the client like any other rejection.
				s, n, err := r.start(adapter, conn, msg, transport, log)
				if err != nil {
					log.Warn().Err(err).Msg("Listening request rejected")
					continue
				}
				current, note, done = s, n, s.Done()

			case models.MessageAudio:
				if err := dev.Feed(ctx, msg.Audio); err != nil && !errors.Is(err, device.ErrNotListening) {
					log.Warn().Err(err).Msg("Failed to feed audio")
				}

			case models.MessageStop:
				adapter.StopListening()

			case models.MessageCancel:
				adapter.Cancel()

			default:
				log.Warn().Str("type", string(msg.Type)).Msg("Unknown message type")
			}

		case <-done:
			log.Info().Str("sessionId", current.ID()).Err(current.Err()).Msg("Session done, closing connection")
			return current.Err()

		case err := <-recvErrs:
			if current == nil {
				log.Info().Err(err).Msg("Connection closed by client")
				return nil
			}
			if errors.Is(err, io.EOF) {
				// Half-close: let the session report its result.
				adapter.StopListening()
				select {
				case <-done:
					return current.Err()
				case <-ctx.Done():
					r.cancel(adapter, done, log)
					return ctx.Err()
				}
			}
			log.Warn().Err(err).Msg("Client connection lost, cancelling session")
			r.cancel(adapter, done, log)
			return nil

		case <-ctx.Done():
			r.cancel(adapter, done, log)
			return ctx.Err()
		}
	}
}

// cancel cancels the running session and waits for its terminal result up
// to the stop grace plus detachMargin.
func (r *Runner) cancel(adapter *recognition.Adapter, done <-chan struct{}, log zerolog.Logger) {
	adapter.Cancel()
	if done == nil {
		return
	}

	t := time.NewTimer(r.cfg.Device.StopGrace + detachMargin)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		log.Warn().Msg("Cancelled session did not end in time, detaching listener")
	}
}

func (r *Runner) start(
	adapter *recognition.Adapter,
	conn Conn,
	msg models.ClientMessage,
	transport string,
	log zerolog.Logger,
) (*recognition.Session, *notifier, error) {
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = r.ids.Next(transport)
	}

	note := &notifier{conn: conn, sessionID: sessionID}
	var l recognition.Listener = note
	if r.cfg.Publisher != nil {
		l = events.NewPublishingListener(l, r.cfg.Publisher, r.cfg.Validator, sessionID, msg.Language,
			log.With().Str("sessionId", sessionID).Logger())
	}

	s, err := adapter.StartListening(recognition.Request{
		Language:  msg.Language,
		SessionID: sessionID,
	}, l)
	return s, note, err
}

// receive pumps conn.Recv into channels until it fails or quit is closed.
// Malformed messages are logged and skipped.
func (r *Runner) receive(conn Conn, log zerolog.Logger) (<-chan models.ClientMessage, <-chan error, chan struct{}) {
	msgs := make(chan models.ClientMessage)
	errs := make(chan error, 1)
	quit := make(chan struct{})

	go func() {
		for {
			msg, err := conn.Recv()
			if errors.Is(err, ErrMalformedMessage) {
				log.Warn().Err(err).Msg("Skipping malformed client message")
				continue
			}
			if err != nil {
				errs <- err
				return
			}
			select {
			case msgs <- msg:
			case <-quit:
				return
			}
		}
	}()
	return msgs, errs, quit
}

// notifier sends every listener call to the client as a notification.
// Once detached it reports the listener gone without touching conn.
type notifier struct {
	mu        sync.Mutex
	conn      Conn
	sessionID string
	detached  bool
}

func (n *notifier) send(msg models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.detached {
		return recognition.ErrListenerGone
	}
	msg.SessionID = n.sessionID
	return n.conn.Send(msg)
}

// detach waits for an in-flight send and disconnects the notifier from conn.
func (n *notifier) detach() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.detached = true
}

func (n *notifier) BeginningOfSpeech() error {
	return n.send(models.Notification{Type: models.NotificationBeginningOfSpeech})
}

func (n *notifier) PartialResults(candidates []string) error {
	return n.send(models.Notification{Type: models.NotificationPartialResults, Candidates: candidates})
}

func (n *notifier) Results(candidates []string, scores []float32) error {
	return n.send(models.Notification{
		Type:       models.NotificationResults,
		Candidates: candidates,
		Scores:     scores,
	})
}

func (n *notifier) EndOfSpeech() error {
	return n.send(models.Notification{Type: models.NotificationEndOfSpeech})
}

func (n *notifier) Error(code recognition.ErrorCode) error {
	return n.send(models.Notification{
		Type:      models.NotificationError,
		ErrorCode: int(code),
		ErrorName: code.String(),
	})
}
