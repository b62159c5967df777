package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speech-recognition-bridge/internal/input"
	"speech-recognition-bridge/internal/observability/metrics"
	"speech-recognition-bridge/internal/recognition"
	"speech-recognition-bridge/internal/service/stt"
	"speech-recognition-bridge/internal/service/stt/mock"
)

var testUtterance = mock.SimulatedUtterance{
	Partials: []string{"hel", "hello"},
	Final: []input.Utterance{
		{Text: "hello", Confidence: 0.9},
		{Text: "hallo", Confidence: 0.4},
	},
}

// stubAdapter is a provider that only reacts when driven by the test.
type stubAdapter struct {
	mu       sync.Mutex
	cb       stt.Callback
	startErr error
	audio    int
	closes   int
}

func (a *stubAdapter) Start(_ context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return a.startErr
}

func (a *stubAdapter) SendAudio(context.Context, []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audio++
	return nil
}

func (a *stubAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closes++
	return nil
}

func (a *stubAdapter) callback() stt.Callback {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cb
}

func (a *stubAdapter) closeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closes
}

func stubFactory(a *stubAdapter) stt.Factory {
	return func(context.Context, string) (stt.Adapter, error) { return a, nil }
}

func mockFactory(utt mock.SimulatedUtterance) stt.Factory {
	f := mock.NewFactory([]mock.SimulatedUtterance{utt}, time.Millisecond)
	return f.New
}

// eventSink collects delivered events.
type eventSink struct {
	mu     sync.Mutex
	events []input.Event
	fail   error
	ch     chan input.Event
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan input.Event, 32)}
}

func (s *eventSink) sink(ev input.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	fail := s.fail
	s.mu.Unlock()
	s.ch <- ev
	return fail
}

func (s *eventSink) next(t *testing.T) input.Event {
	t.Helper()
	select {
	case ev := <-s.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (s *eventSink) waitTerminal(t *testing.T) []input.Event {
	t.Helper()
	for {
		if input.IsTerminal(s.next(t)) {
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]input.Event{}, s.events...)
}

func (s *eventSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		out = append(out, input.Kind(ev))
	}
	return out
}

func newTestDevice(factory stt.Factory, mutate ...func(*Config)) *Device {
	cfg := DefaultConfig()
	cfg.NoInputTimeout = 0
	cfg.StopGrace = 50 * time.Millisecond
	logger := zerolog.Nop()
	cfg.Logger = &logger
	cfg.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	for _, m := range mutate {
		m(&cfg)
	}
	return New(factory, recognition.StaticLanguage("en-US"), cfg)
}

func TestDevice_FullUtterance(t *testing.T) {
	d := newTestDevice(mockFactory(testUtterance))
	s := newEventSink()

	require.True(t, d.TryStart(s.sink))
	require.True(t, d.Listening())

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Feed(context.Background(), []byte("frame")))
	}

	events := s.waitTerminal(t)
	require.Len(t, events, 3)
	assert.Equal(t, input.Partial{Utterance: "hel"}, events[0])
	assert.Equal(t, input.Partial{Utterance: "hello"}, events[1])
	assert.Equal(t, input.Final{Utterances: testUtterance.Final}, events[2])

	assert.Eventually(t, func() bool { return !d.Listening() }, time.Second, 5*time.Millisecond)
}

func TestDevice_TryStart_RefusedWhileListening(t *testing.T) {
	d := newTestDevice(mockFactory(testUtterance))
	s := newEventSink()

	require.True(t, d.TryStart(s.sink))
	assert.False(t, d.TryStart(newEventSink().sink))

	d.Stop()
	s.waitTerminal(t)

	assert.Eventually(t, func() bool { return d.TryStart(newEventSink().sink) },
		time.Second, 5*time.Millisecond, "expected a new session after the terminal event")
}

func TestDevice_TryStart_RefusedWhenClosed(t *testing.T) {
	d := newTestDevice(mockFactory(testUtterance))
	require.NoError(t, d.Close())

	assert.False(t, d.TryStart(newEventSink().sink))
}

func TestDevice_TryStart_ProviderFailure(t *testing.T) {
	factoryErr := newTestDevice(func(context.Context, string) (stt.Adapter, error) {
		return nil, errors.New("no credentials")
	})
	assert.False(t, factoryErr.TryStart(newEventSink().sink))
	assert.False(t, factoryErr.Listening())

	a := &stubAdapter{startErr: errors.New("stream refused")}
	startErr := newTestDevice(stubFactory(a))
	assert.False(t, startErr.TryStart(newEventSink().sink))
	assert.False(t, startErr.Listening())
	assert.Equal(t, 1, a.closeCount())
}

func TestDevice_PassesConfiguredLanguage(t *testing.T) {
	var got string
	d := New(func(_ context.Context, lang string) (stt.Adapter, error) {
		got = lang
		return &stubAdapter{}, nil
	}, recognition.StaticLanguage("fr-FR"), Config{Metrics: metrics.NewMetrics(prometheus.NewRegistry())})

	require.True(t, d.TryStart(newEventSink().sink))
	assert.Equal(t, "fr-FR", got)
}

func TestDevice_NoInputTimeout(t *testing.T) {
	a := &stubAdapter{}
	d := newTestDevice(stubFactory(a), func(c *Config) { c.NoInputTimeout = 20 * time.Millisecond })
	s := newEventSink()

	require.True(t, d.TryStart(s.sink))

	events := s.waitTerminal(t)
	assert.Equal(t, []input.Event{input.None{}}, events)
	assert.False(t, d.Listening())
	assert.Equal(t, 1, a.closeCount())
}

func TestDevice_NoInputTimeout_DisarmedByPartial(t *testing.T) {
	a := &stubAdapter{}
	d := newTestDevice(stubFactory(a), func(c *Config) { c.NoInputTimeout = 20 * time.Millisecond })
	s := newEventSink()

	require.True(t, d.TryStart(s.sink))
	a.callback().OnPartial("he")
	s.next(t)

	time.Sleep(60 * time.Millisecond)
	assert.True(t, d.Listening())

	a.callback().OnFinal([]input.Utterance{{Text: "hey", Confidence: 0.8}})
	assert.Equal(t, []string{"partial", "final"}, kindsOf(s.waitTerminal(t)))
}

func TestDevice_Stop_ForcesFinal(t *testing.T) {
	d := newTestDevice(mockFactory(testUtterance))
	s := newEventSink()

	require.True(t, d.TryStart(s.sink))
	require.NoError(t, d.Feed(context.Background(), []byte("frame")))
	d.Stop()

	events := s.waitTerminal(t)
	assert.Equal(t, []string{"partial", "final"}, kindsOf(events))
}

func TestDevice_Stop_GraceEmitsNone(t *testing.T) {
	a := &stubAdapter{}
	d := newTestDevice(stubFactory(a))
	s := newEventSink()

	require.True(t, d.TryStart(s.sink))
	d.Stop()
	d.Stop()

	events := s.waitTerminal(t)
	assert.Equal(t, []input.Event{input.None{}}, events)
	assert.GreaterOrEqual(t, a.closeCount(), 1)
}

func TestDevice_Stop_WithoutSession(t *testing.T) {
	d := newTestDevice(mockFactory(testUtterance))

	assert.NotPanics(t, func() {
		d.Stop()
		d.Stop()
	})
}

func TestDevice_Feed_WithoutSession(t *testing.T) {
	d := newTestDevice(mockFactory(testUtterance))

	err := d.Feed(context.Background(), []byte("frame"))
	assert.ErrorIs(t, err, ErrNotListening)
}

func TestDevice_ProviderError(t *testing.T) {
	a := &stubAdapter{}
	d := newTestDevice(stubFactory(a))
	s := newEventSink()
	cause := errors.New("stream reset")

	require.True(t, d.TryStart(s.sink))
	a.callback().OnPartial("hel")
	a.callback().OnError(cause)

	events := s.waitTerminal(t)
	require.Len(t, events, 2)
	assert.Equal(t, input.Error{Cause: cause}, events[1])
}

func TestDevice_OnlyOneTerminal(t *testing.T) {
	a := &stubAdapter{}
	d := newTestDevice(stubFactory(a))
	s := newEventSink()

	require.True(t, d.TryStart(s.sink))
	cb := a.callback()
	cb.OnFinal([]input.Utterance{{Text: "yes", Confidence: 0.7}})
	cb.OnEndOfUtterance()
	cb.OnPartial("late")
	cb.OnError(errors.New("late"))

	s.waitTerminal(t)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"final"}, s.kinds())
}

func TestDevice_EndOfUtteranceWithoutFinal(t *testing.T) {
	a := &stubAdapter{}
	d := newTestDevice(stubFactory(a))
	s := newEventSink()

	require.True(t, d.TryStart(s.sink))
	a.callback().OnEndOfUtterance()

	assert.Equal(t, []input.Event{input.None{}}, s.waitTerminal(t))
}

func TestDevice_EmptyFinalIsNone(t *testing.T) {
	a := &stubAdapter{}
	d := newTestDevice(stubFactory(a))
	s := newEventSink()

	require.True(t, d.TryStart(s.sink))
	a.callback().OnFinal(nil)

	assert.Equal(t, []input.Event{input.None{}}, s.waitTerminal(t))
}

func TestDevice_SinkErrorStopsSession(t *testing.T) {
	a := &stubAdapter{}
	d := newTestDevice(stubFactory(a))
	s := newEventSink()
	s.fail = errors.New("listener broken")

	require.True(t, d.TryStart(s.sink))
	a.callback().OnPartial("hel")
	s.next(t)

	assert.False(t, d.Listening())
	assert.Equal(t, 1, a.closeCount())
	assert.ErrorIs(t, d.Feed(context.Background(), []byte("frame")), ErrNotListening)

	a.callback().OnPartial("hello")
	assert.Equal(t, []string{"partial"}, s.kinds())
}

func TestDevice_MaxPartials(t *testing.T) {
	a := &stubAdapter{}
	d := newTestDevice(stubFactory(a), func(c *Config) { c.Limits.MaxPartials = 1 })
	s := newEventSink()

	require.True(t, d.TryStart(s.sink))
	a.callback().OnPartial("one")
	a.callback().OnPartial("two")

	events := s.waitTerminal(t)
	require.Len(t, events, 2)
	errEv, ok := events[1].(input.Error)
	require.True(t, ok, "expected error event, got %v", events[1])
	assert.ErrorIs(t, errEv.Cause, ErrLimitExceeded)
}

func TestDevice_MaxAudioBytes(t *testing.T) {
	a := &stubAdapter{}
	d := newTestDevice(stubFactory(a), func(c *Config) { c.Limits.MaxAudioBytes = 8 })
	s := newEventSink()

	require.True(t, d.TryStart(s.sink))
	require.NoError(t, d.Feed(context.Background(), []byte("12345")))
	err := d.Feed(context.Background(), []byte("67890"))
	assert.ErrorIs(t, err, ErrLimitExceeded)

	events := s.waitTerminal(t)
	assert.Equal(t, []string{"error"}, kindsOf(events))
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	assert.Equal(t, int64(5*1024*1024), limits.MaxAudioBytes)
	assert.Equal(t, 5*time.Minute, limits.MaxDuration)
	assert.Equal(t, 500, limits.MaxPartials)
}

func kindsOf(events []input.Event) []string {
	var out []string
	for _, ev := range events {
		out = append(out, input.Kind(ev))
	}
	return out
}
