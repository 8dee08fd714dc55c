// Package tts defines the text-to-speech stage contract.
package tts

import (
	"context"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/audio"
)

// Synthesizer converts a text span into linear PCM. Implementations report
// the true format of what they produced; normalization to the capture
// profile happens downstream.
type Synthesizer interface {
	// Name returns the provider identifier, used in logs and /health.
	Name() string

	// Synthesize renders one text span. Spans are short (a sentence or
	// two), so the whole clip is returned at once.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (Clip, error)

	// Voices lists the voices this synthesizer can render with.
	Voices(ctx context.Context) ([]Voice, error)

	// Ready probes whether the backend can serve requests.
	Ready(ctx context.Context) error
}

// SynthesizeOptions selects per-request synthesis parameters. Zero values
// fall back to provider defaults.
type SynthesizeOptions struct {
	Voice string  // voice identifier
	Speed float64 // speed multiplier, 1.0 is normal
}

// Clip is synthesized audio with its actual PCM shape.
type Clip struct {
	PCM    []byte
	Format audio.Format
}

// Voice describes one selectable voice.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender,omitempty"`
}
