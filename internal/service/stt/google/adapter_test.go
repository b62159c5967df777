package google

import (
	"context"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"

	"speech-recognition-bridge/internal/input"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 8000 {
		t.Errorf("expected default sample rate 8000, got %d", cfg.SampleRateHz)
	}
	if cfg.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.InterimResults)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
	if cfg.MaxAlternatives != 3 {
		t.Errorf("expected default max alternatives 3, got %d", cfg.MaxAlternatives)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"UNKNOWN", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},        // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStreamingConfig(t *testing.T) {
	cfg := Config{
		LanguageCode:    "es-ES",
		SampleRateHz:    16000,
		InterimResults:  false,
		AudioEncoding:   "MULAW",
		MaxAlternatives: 5,
	}

	sc := streamingConfig(cfg)

	if !sc.GetSingleUtterance() {
		t.Error("expected single utterance mode")
	}
	if sc.GetInterimResults() {
		t.Error("expected interim results false")
	}
	rc := sc.GetConfig()
	if rc.GetLanguageCode() != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", rc.GetLanguageCode())
	}
	if rc.GetSampleRateHertz() != 16000 {
		t.Errorf("expected sample rate 16000, got %d", rc.GetSampleRateHertz())
	}
	if rc.GetEncoding() != speechpb.RecognitionConfig_MULAW {
		t.Errorf("expected encoding MULAW, got %v", rc.GetEncoding())
	}
	if rc.GetMaxAlternatives() != 5 {
		t.Errorf("expected 5 alternatives, got %d", rc.GetMaxAlternatives())
	}
}

func TestProvider_New_OverridesLanguage(t *testing.T) {
	p := &Provider{cfg: DefaultConfig()}

	a, err := p.New(context.Background(), "de-DE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := a.(*Adapter).cfg.LanguageCode; got != "de-DE" {
		t.Errorf("expected language 'de-DE', got %s", got)
	}

	a, _ = p.New(context.Background(), "")
	if got := a.(*Adapter).cfg.LanguageCode; got != "en-US" {
		t.Errorf("expected configured language 'en-US', got %s", got)
	}
}

func TestParseAudioEncoding_CaseSensitive(t *testing.T) {
	// Encoding strings should be uppercase
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"linear16", speechpb.RecognitionConfig_LINEAR16}, // lowercase -> fallback
		{"Linear16", speechpb.RecognitionConfig_LINEAR16}, // mixed case -> fallback
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16}, // uppercase -> match
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

type recordingCallback struct {
	partials []string
	finals   [][]input.Utterance
	ends     int
	errs     []error
}

func (c *recordingCallback) OnPartial(text string)          { c.partials = append(c.partials, text) }
func (c *recordingCallback) OnFinal(alts []input.Utterance) { c.finals = append(c.finals, alts) }
func (c *recordingCallback) OnEndOfUtterance()              { c.ends++ }
func (c *recordingCallback) OnError(err error)              { c.errs = append(c.errs, err) }

func TestHandleResponse_Partial(t *testing.T) {
	cb := &recordingCallback{}
	resp := &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{
			Alternatives: []*speechpb.SpeechRecognitionAlternative{
				{Transcript: "hello wor"},
				{Transcript: "hello war"},
			},
		}},
	}

	if handleResponse(resp, cb) {
		t.Error("expected no end of utterance")
	}
	if len(cb.partials) != 1 || cb.partials[0] != "hello wor" {
		t.Errorf("expected top partial, got %v", cb.partials)
	}
	if len(cb.finals) != 0 {
		t.Errorf("expected no finals, got %v", cb.finals)
	}
}

func TestHandleResponse_FinalKeepsAllAlternatives(t *testing.T) {
	cb := &recordingCallback{}
	resp := &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{
			IsFinal: true,
			Alternatives: []*speechpb.SpeechRecognitionAlternative{
				{Transcript: "hello world", Confidence: 0.92},
				{Transcript: "hello word", Confidence: 0.31},
			},
		}},
	}

	handleResponse(resp, cb)

	if len(cb.finals) != 1 {
		t.Fatalf("expected 1 final, got %d", len(cb.finals))
	}
	want := []input.Utterance{
		{Text: "hello world", Confidence: 0.92},
		{Text: "hello word", Confidence: 0.31},
	}
	got := cb.finals[0]
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("alternative %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestHandleResponse_SkipsEmptyResults(t *testing.T) {
	cb := &recordingCallback{}
	resp := &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{IsFinal: true}},
	}

	handleResponse(resp, cb)

	if len(cb.finals) != 0 || len(cb.partials) != 0 {
		t.Errorf("expected nothing delivered, got partials=%v finals=%v", cb.partials, cb.finals)
	}
}

func TestHandleResponse_EndOfSingleUtterance(t *testing.T) {
	cb := &recordingCallback{}
	resp := &speechpb.StreamingRecognizeResponse{
		SpeechEventType: speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE,
	}

	if !handleResponse(resp, cb) {
		t.Error("expected end of utterance")
	}
	if cb.ends != 0 {
		t.Error("end of utterance is reported when the stream closes, not on the event")
	}
}

func TestHandleResponse_Error(t *testing.T) {
	cb := &recordingCallback{}
	resp := &speechpb.StreamingRecognizeResponse{
		Error: &rpcstatus.Status{Code: int32(codes.ResourceExhausted), Message: "quota"},
		Results: []*speechpb.StreamingRecognitionResult{{
			IsFinal:      true,
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "ignored"}},
		}},
	}

	handleResponse(resp, cb)

	if len(cb.errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(cb.errs))
	}
	if len(cb.finals) != 0 {
		t.Errorf("expected results to be dropped with error, got %v", cb.finals)
	}
}
