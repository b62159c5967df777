package recognition

import (
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"speech-recognition-bridge/internal/input"
)

// recordingListener records every callback as a string. Callbacks named in
// fail return the mapped error.
type recordingListener struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (l *recordingListener) record(name string, call string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
	return l.fail[name]
}

func (l *recordingListener) BeginningOfSpeech() error {
	return l.record("beginningOfSpeech", "beginningOfSpeech")
}

func (l *recordingListener) PartialResults(candidates []string) error {
	return l.record("partialResults", fmt.Sprintf("partialResults%q", candidates))
}

func (l *recordingListener) Results(candidates []string, scores []float32) error {
	return l.record("results", fmt.Sprintf("results%q%v", candidates, scores))
}

func (l *recordingListener) EndOfSpeech() error {
	return l.record("endOfSpeech", "endOfSpeech")
}

func (l *recordingListener) Error(code ErrorCode) error {
	return l.record("error", "error("+code.String()+")")
}

func (l *recordingListener) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.calls...)
}

// mockListener is a testify mock of Listener.
type mockListener struct {
	mock.Mock
}

func (m *mockListener) BeginningOfSpeech() error { return m.Called().Error(0) }

func (m *mockListener) PartialResults(candidates []string) error {
	return m.Called(candidates).Error(0)
}

func (m *mockListener) Results(candidates []string, scores []float32) error {
	return m.Called(candidates, scores).Error(0)
}

func (m *mockListener) EndOfSpeech() error { return m.Called().Error(0) }

func (m *mockListener) Error(code ErrorCode) error { return m.Called(code).Error(0) }

// fakeProducer hands its sink to the test instead of listening.
type fakeProducer struct {
	mu     sync.Mutex
	refuse bool
	sink   input.Sink
	starts int
	stops  int
}

func (p *fakeProducer) TryStart(sink input.Sink) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	if p.refuse {
		return false
	}
	p.sink = sink
	return true
}

func (p *fakeProducer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakeProducer) emit(events ...input.Event) error {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	for _, ev := range events {
		if err := sink(ev); err != nil {
			return err
		}
	}
	return nil
}
