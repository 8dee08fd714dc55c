package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/audio"
)

// DefaultWhisperBaseURL targets a local whisper.cpp server.
const DefaultWhisperBaseURL = "http://localhost:8178"

// WhisperOptions configures the whisper.cpp server client.
type WhisperOptions struct {
	// BaseURL is the server root (default: DefaultWhisperBaseURL).
	BaseURL string

	// Language is passed through to the model (default: "en").
	Language string

	// Temperature controls decoding randomness (default: 0).
	Temperature float64

	// HTTPClient overrides the default client (default: 60s timeout).
	HTTPClient *http.Client
}

// Whisper transcribes against a whisper.cpp server's /inference endpoint.
type Whisper struct {
	baseURL     string
	language    string
	temperature float64
	client      *http.Client
}

// NewWhisper creates a whisper.cpp server client.
func NewWhisper(opts WhisperOptions) *Whisper {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultWhisperBaseURL
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Whisper{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		language:    opts.Language,
		temperature: opts.Temperature,
		client:      opts.HTTPClient,
	}
}

// Name implements Transcriber.
func (w *Whisper) Name() string { return "whisper" }

type whisperResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe wraps the PCM in a WAV container and posts it as a multipart
// upload, the shape whisper.cpp's server expects.
func (w *Whisper) Transcribe(ctx context.Context, pcm []byte) (Result, error) {
	wav, err := audio.EncodeWAV(pcm, audio.CaptureProfile)
	if err != nil {
		return Result{}, fmt.Errorf("stt: encode wav: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return Result{}, fmt.Errorf("stt: build request: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return Result{}, fmt.Errorf("stt: build request: %w", err)
	}
	_ = mw.WriteField("language", w.language)
	_ = mw.WriteField("temperature", fmt.Sprintf("%g", w.temperature))
	_ = mw.WriteField("response_format", "json")
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("stt: build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/inference", &body)
	if err != nil {
		return Result{}, fmt.Errorf("stt: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("stt: whisper request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("stt: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("stt: whisper status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var parsed whisperResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("stt: decode response: %w", err)
	}
	if parsed.Error != "" {
		return Result{}, fmt.Errorf("stt: whisper error: %s", parsed.Error)
	}

	seconds := float64(len(pcm)) / float64(audio.CaptureProfile.SampleRate*audio.CaptureProfile.Width)
	return Result{
		Text:     strings.TrimSpace(parsed.Text),
		Language: w.language,
		Duration: seconds,
	}, nil
}

// Ready implements Transcriber via the server's health endpoint.
func (w *Whisper) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("stt: whisper health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stt: whisper health status %d", resp.StatusCode)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
