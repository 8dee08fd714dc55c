// Package protocol defines the text frames exchanged on a live voice
// connection. Binary frames carry raw audio and never pass through here.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Close codes used when a connection is torn down server-side.
const (
	CloseBadHandshake = 1008
	CloseServerError  = 1011
)

// Signal values recognized on client control frames.
const (
	SignalEOS   = "EOS"
	SignalReset = "RESET"
)

// Stage names reported in processing notices.
const (
	StageTranscription = "transcription"
	StageLLM           = "llm"
	StageTTS           = "tts"
)

// Error types reported on recoverable error notices.
const (
	ErrTypeTranscription = "transcription_error"
	ErrTypeCompletion    = "llm_error"
	ErrTypeSynthesis     = "tts_error"
	ErrTypeFormat        = "format_error"
	ErrTypeInternal      = "processing_error"
	ErrTypeShutdown      = "server_shutdown"
)

// DecodeError is a fatal protocol violation. The connection closes with
// CloseBadHandshake or CloseServerError depending on where it occurred.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// Handshake is the first text frame on a connection.
type Handshake struct {
	SessionID string `json:"session_id"`
}

// EndOfSpeech marks the utterance boundary and triggers the pipeline.
type EndOfSpeech struct{}

// Reset clears the conversation context and audio buffer in place.
type Reset struct{}

// Unknown is a well-formed control frame carrying an unrecognized signal.
// It is a no-op, not an error.
type Unknown struct {
	Signal string
}

// DecodeHandshake parses and validates the handshake frame. A missing or
// blank session_id is fatal.
func DecodeHandshake(data []byte) (Handshake, error) {
	var h Handshake
	if err := json.Unmarshal(data, &h); err != nil {
		return Handshake{}, badRequest("invalid handshake frame", "")
	}
	h.SessionID = strings.TrimSpace(h.SessionID)
	if h.SessionID == "" {
		return Handshake{}, badRequest("missing session_id in handshake", "session_id")
	}
	return h, nil
}

// DecodeSignal classifies a post-handshake text frame into one of the
// closed set of control variants. Malformed JSON is fatal; a recognized
// shape with an unknown signal value decodes to Unknown.
func DecodeSignal(data []byte) (any, error) {
	var frame struct {
		Signal string `json:"signal"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, badRequest("invalid control frame", "")
	}
	switch strings.TrimSpace(frame.Signal) {
	case SignalEOS:
		return EndOfSpeech{}, nil
	case SignalReset:
		return Reset{}, nil
	default:
		return Unknown{Signal: frame.Signal}, nil
	}
}

// Status is a server notice. Fields beyond Status are stage-dependent and
// omitted when empty, matching the client's expectations frame by frame.
type Status struct {
	Status     string `json:"status"`
	SessionID  string `json:"session_id,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Response   string `json:"response,omitempty"`
	Message    string `json:"message,omitempty"`
	ErrorType  string `json:"error_type,omitempty"`
}

// Connected acknowledges a successful handshake.
func Connected(sessionID string) Status {
	return Status{Status: "connected", SessionID: sessionID}
}

// ProcessingTranscription announces the transcription stage.
func ProcessingTranscription() Status {
	return Status{Status: "processing", Stage: StageTranscription}
}

// ProcessingLLM announces the completion stage and echoes the transcript.
func ProcessingLLM(transcript string) Status {
	return Status{Status: "processing", Stage: StageLLM, Transcript: transcript}
}

// ProcessingTTS announces the synthesis stage with the reply text being
// rendered.
func ProcessingTTS(response string) Status {
	return Status{Status: "processing", Stage: StageTTS, Response: response}
}

// Complete marks the end of an utterance's audio stream.
func Complete() Status {
	return Status{Status: "complete"}
}

// ResetComplete acknowledges a RESET signal.
func ResetComplete() Status {
	return Status{Status: "reset_complete"}
}

// ErrorNotice reports a recoverable failure. The connection stays open.
// Message must be one of the fixed client-facing strings, never internal
// error text.
func ErrorNotice(errType, message string) Status {
	return Status{Status: "error", ErrorType: errType, Message: message}
}

// Encode marshals a status frame for the wire.
func Encode(s Status) ([]byte, error) {
	return json.Marshal(s)
}
