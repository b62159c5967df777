package recognition

import (
	"errors"
	"fmt"
)

// ErrorCode is a recognition error reported to the listener. Values follow the
// platform speech-recognizer numbering.
type ErrorCode int

const (
	// ErrorServer reports a failure of the input process.
	ErrorServer ErrorCode = 4
	// ErrorSpeechTimeout reports that listening produced no input.
	ErrorSpeechTimeout ErrorCode = 6
	// ErrorLanguageUnavailable reports that the requested language is a known
	// one, but not the one currently available.
	ErrorLanguageUnavailable ErrorCode = 13
)

// String returns the platform name of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrorServer:
		return "ERROR_SERVER"
	case ErrorSpeechTimeout:
		return "ERROR_SPEECH_TIMEOUT"
	case ErrorLanguageUnavailable:
		return "ERROR_LANGUAGE_UNAVAILABLE"
	default:
		return fmt.Sprintf("ERROR(%d)", int(c))
	}
}

var (
	// ErrListenerGone is wrapped by listener errors when the remote endpoint
	// has disconnected. Only these errors are tolerated during delivery.
	ErrListenerGone = errors.New("listener endpoint gone")

	// ErrLanguageUnavailable is returned when the requested language does not
	// match the configured one.
	ErrLanguageUnavailable = errors.New("requested language unavailable")

	// ErrProducerRefused is returned when the producer could not start listening.
	ErrProducerRefused = errors.New("input producer refused to start")
)
