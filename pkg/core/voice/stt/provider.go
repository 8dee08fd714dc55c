// Package stt defines the speech-to-text stage contract.
package stt

import (
	"context"
)

// Transcriber converts one utterance of capture-profile PCM into text.
// Implementations block until the transcript is available; the caller
// decides where the work runs.
type Transcriber interface {
	// Name returns the provider identifier, used in logs and /health.
	Name() string

	// Transcribe converts 16 kHz mono s16le PCM to text. An empty
	// transcript with a nil error means no intelligible speech.
	Transcribe(ctx context.Context, pcm []byte) (Result, error)

	// Ready probes whether the backend can serve requests.
	Ready(ctx context.Context) error
}

// Result is a completed transcription.
type Result struct {
	Text     string  // transcribed text, whitespace-trimmed
	Language string  // detected or configured language code
	Duration float64 // audio duration in seconds, if the backend reports it
}
