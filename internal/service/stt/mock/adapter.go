// Package mock provides a mock STT adapter for running without cloud credentials.
// It simulates speech-to-text behavior with progressive partial transcripts
// (one per audio frame) and exactly one final transcript with alternatives.
package mock

import (
	"context"
	"sync"
	"time"

	"speech-recognition-bridge/internal/input"
	"speech-recognition-bridge/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
// An utterance without partials and final simulates silence.
type SimulatedUtterance struct {
	Partials []string          // Progressive partial transcripts
	Final    []input.Utterance // Final alternatives, best first
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []string{"what", "what's the", "what's the weather"},
		Final: []input.Utterance{
			{Text: "what's the weather like today", Confidence: 0.94},
			{Text: "what's the weather like to day", Confidence: 0.41},
		},
	},
	{
		Partials: []string{"set a", "set a timer"},
		Final: []input.Utterance{
			{Text: "set a timer for ten minutes", Confidence: 0.97},
			{Text: "set a timer for two minutes", Confidence: 0.52},
		},
	},
	{
		Partials: []string{"call", "call mom"},
		Final: []input.Utterance{
			{Text: "call mom", Confidence: 0.91},
			{Text: "call tom", Confidence: 0.63},
			{Text: "cold mom", Confidence: 0.12},
		},
	},
	{
		Partials: []string{"open", "open the", "open the calendar"},
		Final: []input.Utterance{
			{Text: "open the calendar", Confidence: 0.89},
		},
	},
	{
		Partials: []string{"thank you"},
		Final: []input.Utterance{
			{Text: "thank you very much", Confidence: 0.98},
			{Text: "thank you", Confidence: 0.47},
		},
	},
}

// DefaultDelay is the simulated processing delay before each callback.
const DefaultDelay = 50 * time.Millisecond

// Factory hands out adapters cycling through a list of utterances.
type Factory struct {
	utterances []SimulatedUtterance
	delay      time.Duration

	mu    sync.Mutex
	count int
}

// NewFactory creates a factory over utterances. DefaultUtterances are used
// when the list is empty.
func NewFactory(utterances []SimulatedUtterance, delay time.Duration) *Factory {
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	return &Factory{utterances: utterances, delay: delay}
}

// New creates the next adapter. It never fails and ignores the language.
func (f *Factory) New(_ context.Context, _ string) (stt.Adapter, error) {
	f.mu.Lock()
	utt := f.utterances[f.count%len(f.utterances)]
	f.count++
	f.mu.Unlock()

	return NewAdapter(utt, f.delay), nil
}

// Adapter implements stt.Adapter with mock responses. Callbacks are
// delivered in order from a single goroutine:
//   - One partial transcript per audio frame received
//   - Exactly one final transcript once partials are exhausted
//   - End-of-utterance after the final
type Adapter struct {
	utterance SimulatedUtterance
	delay     time.Duration

	mu           sync.Mutex
	cb           stt.Callback
	queue        chan func(stt.Callback)
	partialIndex int  // Next partial to send
	finalSent    bool // Ensures only one final per utterance
	closed       bool
}

// NewAdapter creates a new mock STT adapter simulating utt.
func NewAdapter(utt SimulatedUtterance, delay time.Duration) *Adapter {
	return &Adapter{
		utterance: utt,
		delay:     delay,
	}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cb != nil || a.closed {
		return nil
	}
	a.cb = cb
	a.queue = make(chan func(stt.Callback), len(a.utterance.Partials)+2)
	go a.deliver(cb, a.queue)
	return nil
}

func (a *Adapter) deliver(cb stt.Callback, queue <-chan func(stt.Callback)) {
	for f := range queue {
		time.Sleep(a.delay)
		f(cb)
	}
}

// SendAudio simulates receiving audio and triggers progressive partial transcripts.
// When all partials are sent, it simulates end-of-utterance detection (like silence detection).
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}

	if a.partialIndex < len(a.utterance.Partials) {
		text := a.utterance.Partials[a.partialIndex]
		a.partialIndex++
		a.queue <- func(cb stt.Callback) { cb.OnPartial(text) }
	} else if !a.finalSent {
		a.enqueueFinal()
	}

	return nil
}

// Close ends the mock session.
// If final wasn't sent via SendAudio (stream ended early), send it now.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.cb == nil {
		return nil
	}
	if !a.finalSent {
		a.enqueueFinal()
	}
	close(a.queue)
	return nil
}

// enqueueFinal must be called with a.mu held.
func (a *Adapter) enqueueFinal() {
	a.finalSent = true
	final := a.utterance.Final
	if len(final) > 0 {
		a.queue <- func(cb stt.Callback) { cb.OnFinal(final) }
	}
	a.queue <- func(cb stt.Callback) { cb.OnEndOfUtterance() }
}
