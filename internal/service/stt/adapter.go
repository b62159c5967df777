// Package stt defines the interface for Speech-to-Text adapters.
package stt

import (
	"context"

	"speech-recognition-bridge/internal/input"
)

// Callback receives transcript results from the STT provider.
type Callback interface {
	// OnPartial is called when an interim/partial transcript is received.
	OnPartial(text string)

	// OnFinal is called when a final transcript is received, with its
	// alternatives sorted best first.
	OnFinal(alternatives []input.Utterance)

	// OnEndOfUtterance is called when the provider stops producing results
	// for the current utterance.
	OnEndOfUtterance()

	// OnError is called when an error occurs during transcription.
	OnError(err error)
}

// Adapter defines the interface for STT providers (Google, mock, etc.).
type Adapter interface {
	// Start begins a streaming transcription session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends audio bytes to the STT provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends the session. Results still in flight are delivered to the
	// callback, followed by OnEndOfUtterance unless a final was already sent.
	Close() error
}

// Factory creates an adapter for one session in the given language.
type Factory func(ctx context.Context, languageCode string) (Adapter, error)
