// Package providers defines the reply-generation stage contract shared by
// the concrete LLM backends.
package providers

import (
	"context"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/convo"
)

// DefaultSystemPrompt steers replies toward short spoken answers. Replies
// are synthesized and played back, so brevity is a latency requirement,
// not a style choice.
const DefaultSystemPrompt = "You are a helpful voice assistant with vision capabilities. " +
	"Respond in a single short sentence suitable for text-to-speech. " +
	"When an image is provided, describe or answer questions about what you see. " +
	"Do not use markdown, lists, or special formatting."

// Request carries everything a backend needs to produce one reply.
type Request struct {
	// System overrides DefaultSystemPrompt when non-empty.
	System string

	// History is the prior conversation, oldest first.
	History []convo.Turn

	// UserText is the current transcribed utterance.
	UserText string

	// ImageJPEG is an optional camera frame attached to this turn.
	ImageJPEG []byte
}

// Completer produces one assistant reply for a request.
type Completer interface {
	// Name returns the provider identifier, used in logs and /health.
	Name() string

	// Complete blocks until the reply text is available.
	Complete(ctx context.Context, req Request) (string, error)
}

// SystemPrompt resolves the effective system prompt for a request.
func (r Request) SystemPrompt() string {
	if r.System != "" {
		return r.System
	}
	return DefaultSystemPrompt
}
