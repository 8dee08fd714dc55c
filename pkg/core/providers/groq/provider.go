// Package groq implements reply generation against the Groq API. Groq is
// OpenAI-compatible, so the wire shapes here are standard chat completions.
package groq

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/convo"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/providers"
)

const (
	// DefaultBaseURL is the Groq API endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel handles both text and image turns.
	DefaultModel = "meta-llama/llama-4-scout-17b-16e-instruct"
)

// Generation parameters tuned for short spoken replies.
const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 100
	defaultTopP        = 0.9
)

// Options configures the Groq completer.
type Options struct {
	// BaseURL overrides DefaultBaseURL, e.g. for a proxy.
	BaseURL string

	// Model overrides DefaultModel.
	Model string

	// MaxTokens overrides the reply length cap.
	MaxTokens int

	// HTTPClient overrides the default client (default: 30s timeout).
	HTTPClient *http.Client
}

// Provider is a Groq chat-completions client.
type Provider struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
}

// New creates a Groq completer.
func New(apiKey string, opts Options) *Provider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Provider{
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		client:    opts.HTTPClient,
	}
}

// Name implements providers.Completer.
func (p *Provider) Name() string { return "groq" }

// Message content is either a plain string or, for image turns, an array
// of typed parts.
type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imagePart struct {
	Type     string `json:"type"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete implements providers.Completer.
func (p *Provider) Complete(ctx context.Context, req providers.Request) (string, error) {
	messages := make([]chatMessage, 0, len(req.History)+2)
	messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt()})
	for _, turn := range req.History {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Text})
	}
	messages = append(messages, userMessage(req))

	body, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   p.maxTokens,
		TopP:        defaultTopP,
	})
	if err != nil {
		return "", fmt.Errorf("groq: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("groq: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("groq: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("groq: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("groq: decode response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("groq: api error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("groq: status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("groq: empty choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// userMessage builds the current turn. Image turns use the multipart
// content form with an inline data URL.
func userMessage(req providers.Request) chatMessage {
	if len(req.ImageJPEG) == 0 {
		return chatMessage{Role: convo.RoleUser, Content: req.UserText}
	}
	img := imagePart{Type: "image_url"}
	img.ImageURL.URL = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.ImageJPEG)
	return chatMessage{
		Role:    convo.RoleUser,
		Content: []any{textPart{Type: "text", Text: req.UserText}, img},
	}
}
