// Package models defines the data structures for recognition events and the
// client wire messages.
package models

// Event types of published recognition results.
const (
	EventTypePartial = "recognition.result.partial"
	EventTypeFinal   = "recognition.result.final"
)

// RecognitionPartial represents an in-progress recognition result.
type RecognitionPartial struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

// Alternative is one candidate transcription of a final result.
type Alternative struct {
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
}

// RecognitionFinal represents a final recognition result with its
// alternatives, best first.
type RecognitionFinal struct {
	EventType    string        `json:"eventType"`
	SessionID    string        `json:"sessionId"`
	Language     string        `json:"language"`
	Timestamp    int64         `json:"timestamp"`
	Alternatives []Alternative `json:"alternatives"`
}
