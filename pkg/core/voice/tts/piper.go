package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/audio"
)

// DefaultPiperBaseURL targets a local piper HTTP server.
const DefaultPiperBaseURL = "http://localhost:5000"

// PiperOptions configures the piper server client.
type PiperOptions struct {
	// BaseURL is the server root (default: DefaultPiperBaseURL).
	BaseURL string

	// Voice names the loaded piper voice, reported through Voices.
	Voice string

	// Language tags the voice (default: "en_US").
	Language string

	// HTTPClient overrides the default client (default: 60s timeout).
	HTTPClient *http.Client
}

// Piper synthesizes against a piper HTTP server. The server renders with
// whatever voice model it was started with, so Voices reports exactly one
// entry and SynthesizeOptions.Voice is ignored.
type Piper struct {
	baseURL  string
	voice    string
	language string
	client   *http.Client
}

// NewPiper creates a piper server client.
func NewPiper(opts PiperOptions) *Piper {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultPiperBaseURL
	}
	if opts.Voice == "" {
		opts.Voice = "default"
	}
	if opts.Language == "" {
		opts.Language = "en_US"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Piper{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		voice:    opts.Voice,
		language: opts.Language,
		client:   opts.HTTPClient,
	}
}

// Name implements Synthesizer.
func (p *Piper) Name() string { return "piper" }

// Synthesize posts the span and decodes the WAV reply, reporting the
// server's native PCM shape.
func (p *Piper) Synthesize(ctx context.Context, text string, _ SynthesizeOptions) (Clip, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Clip{}, fmt.Errorf("tts: build request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/", bytes.NewReader(payload))
	if err != nil {
		return Clip{}, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Clip{}, fmt.Errorf("tts: piper request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return Clip{}, fmt.Errorf("tts: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Clip{}, fmt.Errorf("tts: piper status %d", resp.StatusCode)
	}

	pcm, format, err := audio.DecodeWAV(raw)
	if err != nil {
		return Clip{}, fmt.Errorf("tts: piper reply: %w", err)
	}
	return Clip{PCM: pcm, Format: format}, nil
}

// Voices implements Synthesizer with the single configured voice.
func (p *Piper) Voices(context.Context) ([]Voice, error) {
	return []Voice{{ID: p.voice, Name: p.voice, Language: p.language}}, nil
}

// Ready implements Synthesizer. Piper has no health route, so any HTTP
// response at all counts as up.
func (p *Piper) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("tts: piper health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
