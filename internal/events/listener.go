package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"speech-recognition-bridge/internal/models"
	"speech-recognition-bridge/internal/recognition"
)

// EventValidator checks an event before it is published.
type EventValidator interface {
	Validate(event any) error
}

// PublishingListener forwards every call to the wrapped listener unchanged and
// mirrors partial and final results onto the publisher. Publishing failures
// are logged and never change the outcome of the listener call. The publisher
// is called inline, so it should be an AsyncPublisher.
type PublishingListener struct {
	next      recognition.Listener
	publisher ResultPublisher
	validator EventValidator
	sessionID string
	language  string
	log       zerolog.Logger
	now       func() time.Time
}

// NewPublishingListener wraps next. validator may be nil.
func NewPublishingListener(
	next recognition.Listener,
	publisher ResultPublisher,
	validator EventValidator,
	sessionID, language string,
	log zerolog.Logger,
) *PublishingListener {
	return &PublishingListener{
		next:      next,
		publisher: publisher,
		validator: validator,
		sessionID: sessionID,
		language:  language,
		log:       log,
		now:       time.Now,
	}
}

func (l *PublishingListener) BeginningOfSpeech() error {
	return l.next.BeginningOfSpeech()
}

func (l *PublishingListener) PartialResults(candidates []string) error {
	err := l.next.PartialResults(candidates)
	if len(candidates) > 0 {
		l.publish(models.RecognitionPartial{
			EventType: models.EventTypePartial,
			SessionID: l.sessionID,
			Language:  l.language,
			Timestamp: l.now().UnixMilli(),
			Text:      candidates[0],
		}, l.publisher.PublishPartial)
	}
	return err
}

func (l *PublishingListener) Results(candidates []string, scores []float32) error {
	err := l.next.Results(candidates, scores)

	alts := make([]models.Alternative, 0, len(candidates))
	for i, text := range candidates {
		alt := models.Alternative{Text: text}
		if i < len(scores) {
			alt.Confidence = scores[i]
		}
		alts = append(alts, alt)
	}
	l.publish(models.RecognitionFinal{
		EventType:    models.EventTypeFinal,
		SessionID:    l.sessionID,
		Language:     l.language,
		Timestamp:    l.now().UnixMilli(),
		Alternatives: alts,
	}, l.publisher.PublishFinal)
	return err
}

func (l *PublishingListener) EndOfSpeech() error {
	return l.next.EndOfSpeech()
}

func (l *PublishingListener) Error(code recognition.ErrorCode) error {
	return l.next.Error(code)
}

func (l *PublishingListener) publish(event any, publish func(context.Context, string, any) error) {
	if l.validator != nil {
		if err := l.validator.Validate(event); err != nil {
			l.log.Error().Err(err).Msg("Event failed schema validation, not published")
			return
		}
	}

	err := publish(context.Background(), l.sessionID, event)
	switch {
	case err == nil:
	case errors.Is(err, ErrQueueFull):
		l.log.Warn().Msg("Publish queue full, recognition result dropped")
	default:
		l.log.Warn().Err(err).Msg("Failed to publish recognition result")
	}
}
