// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speech-recognition-bridge/internal/input"
	"speech-recognition-bridge/internal/service/stt"
)

// Config holds the recognition settings sent with every stream.
type Config struct {
	LanguageCode    string
	SampleRateHz    int
	InterimResults  bool
	AudioEncoding   string
	MaxAlternatives int
}

// DefaultConfig returns the settings used for 8kHz LINEAR16 telephony audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    "en-US",
		SampleRateHz:    8000,
		InterimResults:  true,
		AudioEncoding:   "LINEAR16",
		MaxAlternatives: 3,
	}
}

// Provider owns the Speech client shared by all sessions.
type Provider struct {
	client *speech.Client
	cfg    Config
}

// NewProvider creates a Google STT provider.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Provider{client: c, cfg: cfg}, nil
}

// New creates an adapter for one session. languageCode overrides the
// configured language when set.
func (p *Provider) New(_ context.Context, languageCode string) (stt.Adapter, error) {
	cfg := p.cfg
	if languageCode != "" {
		cfg.LanguageCode = languageCode
	}
	return &Adapter{client: p.client, cfg: cfg}, nil
}

// Close releases the Speech client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text in
// single-utterance mode.
type Adapter struct {
	client *speech.Client
	cfg    Config

	mu         sync.Mutex
	stream     speechpb.Speech_StreamingRecognizeClient
	cb         stt.Callback
	halfClosed bool
}

// Start begins a streaming recognition session, sends the initial config and
// starts receiving results.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streamingConfig(a.cfg),
		},
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.stream = stream
	a.cb = cb
	a.mu.Unlock()

	go a.listen(stream, cb)
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text. Audio sent after the
// end of the utterance was detected is dropped.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream == nil || a.halfClosed {
		return nil
	}
	return a.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the stream. Pending results are still received.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeSend()
}

// closeSend must be called with a.mu held.
func (a *Adapter) closeSend() error {
	if a.stream == nil || a.halfClosed {
		return nil
	}
	a.halfClosed = true
	return a.stream.CloseSend()
}

// listen receives transcript responses from Google and invokes callbacks.
func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			cb.OnEndOfUtterance()
			return
		}
		if err != nil {
			cb.OnError(err)
			return
		}

		if endOfUtterance := handleResponse(resp, cb); endOfUtterance {
			a.mu.Lock()
			_ = a.closeSend()
			a.mu.Unlock()
		}
	}
}

// handleResponse forwards the results of resp to cb. It reports whether the
// response marks the end of the single utterance.
func handleResponse(resp *speechpb.StreamingRecognizeResponse, cb stt.Callback) bool {
	if s := resp.GetError(); s != nil && codes.Code(s.GetCode()) != codes.OK {
		cb.OnError(status.ErrorProto(s))
		return false
	}

	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if r.GetIsFinal() {
			cb.OnFinal(utterances(r.GetAlternatives()))
		} else {
			cb.OnPartial(r.GetAlternatives()[0].GetTranscript())
		}
	}

	return resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE
}

func utterances(alts []*speechpb.SpeechRecognitionAlternative) []input.Utterance {
	out := make([]input.Utterance, 0, len(alts))
	for _, alt := range alts {
		out = append(out, input.Utterance{
			Text:       alt.GetTranscript(),
			Confidence: alt.GetConfidence(),
		})
	}
	return out
}

func streamingConfig(cfg Config) *speechpb.StreamingRecognitionConfig {
	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:        parseAudioEncoding(cfg.AudioEncoding),
			SampleRateHertz: int32(cfg.SampleRateHz),
			LanguageCode:    cfg.LanguageCode,
			MaxAlternatives: int32(cfg.MaxAlternatives),
		},
		SingleUtterance: true,
		InterimResults:  cfg.InterimResults,
	}
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
