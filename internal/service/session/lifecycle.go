// Package session provides session ID generation and the producer-side
// lifecycle of a listening session.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a listening session.
type State int

const (
	// StateListening - Session started, nothing heard yet.
	StateListening State = iota
	// StateSpeaking - At least one partial was emitted.
	StateSpeaking
	// StateFinished - Final or None emitted. Terminal.
	StateFinished
	// StateFailed - Error emitted. Terminal.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateListening:
		return "LISTENING"
	case StateSpeaking:
		return "SPEAKING"
	case StateFinished:
		return "FINISHED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (FINISHED or FAILED).
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateFailed
}

// ErrSessionEnded is returned for any emission after the terminal event.
var ErrSessionEnded = errors.New("session already emitted its terminal event")

// Lifecycle guards the event sequence of a single session: any number of
// partials, then exactly one terminal event. Thread-safe.
//
// State transitions:
//
//	LISTENING ──EmitPartial()──→ SPEAKING ──EmitPartial()──→ SPEAKING
//	    │                            │
//	    ├── Finish() / FinishSilent() ├── Finish() ──→ FINISHED
//	    │                            │
//	    └── Fail() ──────────────────┴── Fail() ────→ FAILED
type Lifecycle struct {
	mu        sync.RWMutex
	sessionId string
	state     State
}

// NewLifecycle creates a new session lifecycle in LISTENING state.
func NewLifecycle(sessionId string) *Lifecycle {
	return &Lifecycle{
		sessionId: sessionId,
		state:     StateListening,
	}
}

// SessionId returns the session ID.
func (l *Lifecycle) SessionId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsEnded returns true once the terminal event was emitted.
func (l *Lifecycle) IsEnded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// EmitPartial validates and records a partial emission.
func (l *Lifecycle) EmitPartial() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return ErrSessionEnded
	}
	l.state = StateSpeaking
	return nil
}

// Finish records a Final or None emission and ends the session.
func (l *Lifecycle) Finish() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return ErrSessionEnded
	}
	l.state = StateFinished
	return nil
}

// FinishSilent ends the session only if nothing was heard yet. Used by
// no-input timeouts. Returns true if the session was finished.
func (l *Lifecycle) FinishSilent() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateListening {
		return false
	}
	l.state = StateFinished
	return true
}

// Fail records an Error emission and ends the session.
// Returns true if the session was failed, false if it had already ended.
func (l *Lifecycle) Fail() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return false
	}
	l.state = StateFailed
	return true
}
