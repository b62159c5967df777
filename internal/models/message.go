package models

// MessageType identifies a client message.
type MessageType string

const (
	MessageStart  MessageType = "start"
	MessageAudio  MessageType = "audio"
	MessageStop   MessageType = "stop"
	MessageCancel MessageType = "cancel"
)

// ClientMessage is sent by clients over a listening connection.
type ClientMessage struct {
	Type MessageType `json:"type"`

	// Start only.
	Language  string `json:"language,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// Audio only. Raw PCM, base64 in JSON.
	Audio []byte `json:"audio,omitempty"`
}

// Notification types, one per listener callback.
const (
	NotificationBeginningOfSpeech = "beginningOfSpeech"
	NotificationPartialResults    = "partialResults"
	NotificationResults           = "results"
	NotificationEndOfSpeech       = "endOfSpeech"
	NotificationError             = "error"
)

// Notification is sent to clients for every listener callback.
type Notification struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"sessionId,omitempty"`
	Candidates []string  `json:"candidates,omitempty"`
	Scores     []float32 `json:"scores,omitempty"`
	ErrorCode  int       `json:"errorCode,omitempty"`
	ErrorName  string    `json:"errorName,omitempty"`
}
