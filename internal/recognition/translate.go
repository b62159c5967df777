package recognition

import "speech-recognition-bridge/internal/input"

// Translate maps one input event onto the ordered listener calls it produces.
// speechBegun is the session's "speech has begun" flag before the event; the
// returned flag is its value afterwards. Beginning of speech is synthesized
// once, on the first Partial or Final.
func Translate(speechBegun bool, ev input.Event) (bool, []Call) {
	t := translator{begun: speechBegun}
	ev.Accept(&t)
	return t.begun, t.calls
}

type translator struct {
	begun bool
	calls []Call
}

func (t *translator) beginSpeech() {
	if !t.begun {
		t.begun = true
		t.calls = append(t.calls, BeginningOfSpeech{})
	}
}

func (t *translator) OnPartial(ev input.Partial) {
	t.beginSpeech()
	t.calls = append(t.calls, PartialResults{Candidates: []string{ev.Utterance}})
}

func (t *translator) OnFinal(ev input.Final) {
	t.beginSpeech()
	t.calls = append(t.calls,
		Results{Candidates: ev.Texts(), Scores: ev.Scores()},
		EndOfSpeech{},
	)
}

func (t *translator) OnNone(input.None) {
	t.calls = append(t.calls, Error{Code: ErrorSpeechTimeout}, EndOfSpeech{})
}

func (t *translator) OnError(input.Error) {
	t.calls = append(t.calls, Error{Code: ErrorServer})
}
