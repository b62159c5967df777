// Package input defines the events produced by one listening session.
//
// Input events are either generated by a speech recognizer or by a text/LLM
// driven source, and must abide by this rule: any number of Partial events may
// be issued, followed by exactly one of Final, None or Error when input
// finishes being produced. Nothing is issued after the terminal event.
package input

import "fmt"

// Event is one of Partial, Final, None or Error. The set is closed.
type Event interface {
	// Accept calls the Handler method matching the variant.
	Accept(h Handler)

	isInputEvent()
}

// Handler handles every Event variant. Adding a variant adds a method here, so
// every consumer fails to compile until it handles the new case.
type Handler interface {
	OnPartial(ev Partial)
	OnFinal(ev Final)
	OnNone(ev None)
	OnError(ev Error)
}

// Sink receives the events of one session. A non-nil error means the consumer
// could not deliver the event downstream and the producer should stop.
type Sink func(ev Event) error

// Utterance is one candidate transcription with its confidence score, from
// 1.0 (best) to 0.0 (worst).
type Utterance struct {
	Text       string
	Confidence float32
}

// Partial is in-progress user input, e.g. while the user is talking.
type Partial struct {
	Utterance string
}

// Final is the input ready to be used. Utterances are sorted by confidence,
// best first, and may hold alternative interpretations.
type Final struct {
	Utterances []Utterance
}

// None reports that listening was initiated but nothing was said.
type None struct{}

// Error reports a failure of the input process.
type Error struct {
	Cause error
}

func (ev Partial) Accept(h Handler) { h.OnPartial(ev) }
func (ev Final) Accept(h Handler)   { h.OnFinal(ev) }
func (ev None) Accept(h Handler)    { h.OnNone(ev) }
func (ev Error) Accept(h Handler)   { h.OnError(ev) }

func (Partial) isInputEvent() {}
func (Final) isInputEvent()   {}
func (None) isInputEvent()    {}
func (Error) isInputEvent()   {}

func (ev Partial) String() string { return ev.Utterance + "..." }
func (ev Final) String() string   { return fmt.Sprintf("final%v", ev.Texts()) }
func (None) String() string       { return "none" }
func (ev Error) String() string   { return fmt.Sprintf("error(%v)", ev.Cause) }

// Texts returns the utterance texts in order.
func (ev Final) Texts() []string {
	texts := make([]string, len(ev.Utterances))
	for i, u := range ev.Utterances {
		texts[i] = u.Text
	}
	return texts
}

// Scores returns the confidence scores in the same order as Texts.
func (ev Final) Scores() []float32 {
	scores := make([]float32, len(ev.Utterances))
	for i, u := range ev.Utterances {
		scores[i] = u.Confidence
	}
	return scores
}

// Kind is a short label for ev, used in logs and metric labels.
func Kind(ev Event) string {
	var k kindOf
	ev.Accept(&k)
	return string(k)
}

// IsTerminal reports whether ev ends a session.
func IsTerminal(ev Event) bool {
	_, partial := ev.(Partial)
	return !partial
}

type kindOf string

func (k *kindOf) OnPartial(Partial) { *k = "partial" }
func (k *kindOf) OnFinal(Final)     { *k = "final" }
func (k *kindOf) OnNone(None)       { *k = "none" }
func (k *kindOf) OnError(Error)     { *k = "error" }
