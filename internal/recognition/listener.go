package recognition

import "fmt"

// Listener is the platform callback contract of one recognition request. Every
// method may fail independently; a disconnected endpoint is reported with an
// error wrapping ErrListenerGone.
type Listener interface {
	BeginningOfSpeech() error
	PartialResults(candidates []string) error
	Results(candidates []string, scores []float32) error
	EndOfSpeech() error
	Error(code ErrorCode) error
}

// Call is one listener invocation produced by Translate.
type Call interface {
	// Name is the callback name used in logs and metric labels.
	Name() string

	invoke(l Listener) error
}

// BeginningOfSpeech marks the first content of a session.
type BeginningOfSpeech struct{}

// PartialResults carries an unconfirmed transcript.
type PartialResults struct {
	Candidates []string
}

// Results carries the final candidates and their scores, in the same order.
type Results struct {
	Candidates []string
	Scores     []float32
}

// EndOfSpeech marks the end of the session's speech.
type EndOfSpeech struct{}

// Error reports a recognition error code.
type Error struct {
	Code ErrorCode
}

func (BeginningOfSpeech) Name() string { return "beginningOfSpeech" }
func (PartialResults) Name() string    { return "partialResults" }
func (Results) Name() string           { return "results" }
func (EndOfSpeech) Name() string       { return "endOfSpeech" }
func (Error) Name() string             { return "error" }

func (BeginningOfSpeech) invoke(l Listener) error { return l.BeginningOfSpeech() }
func (c PartialResults) invoke(l Listener) error  { return l.PartialResults(c.Candidates) }
func (c Results) invoke(l Listener) error         { return l.Results(c.Candidates, c.Scores) }
func (EndOfSpeech) invoke(l Listener) error       { return l.EndOfSpeech() }
func (c Error) invoke(l Listener) error           { return l.Error(c.Code) }

func (BeginningOfSpeech) String() string { return "beginningOfSpeech" }
func (c PartialResults) String() string  { return fmt.Sprintf("partialResults%q", c.Candidates) }
func (c Results) String() string         { return fmt.Sprintf("results%q%v", c.Candidates, c.Scores) }
func (EndOfSpeech) String() string       { return "endOfSpeech" }
func (c Error) String() string           { return "error(" + c.Code.String() + ")" }
