// Package gemini implements reply generation against the Gemini API via
// the official genai SDK.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/VighneshNilajakar/HOTPIN/pkg/core/convo"
	"github.com/VighneshNilajakar/HOTPIN/pkg/core/providers"
)

// DefaultModel handles both text and image turns at low latency.
const DefaultModel = "gemini-2.0-flash"

const (
	defaultTemperature = float32(0.2)
	defaultTopP        = float32(0.9)
	defaultMaxTokens   = int32(100)
)

// Options configures the Gemini completer.
type Options struct {
	// Model overrides DefaultModel.
	Model string

	// MaxTokens overrides the reply length cap.
	MaxTokens int
}

// Provider is a Gemini completer. The SDK client is created lazily on the
// first request so construction never touches the network.
type Provider struct {
	apiKey    string
	model     string
	maxTokens int32

	mu     sync.Mutex
	client *genai.Client
}

// New creates a Gemini completer.
func New(apiKey string, opts Options) *Provider {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	maxTokens := defaultMaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = int32(opts.MaxTokens)
	}
	return &Provider{apiKey: apiKey, model: opts.Model, maxTokens: maxTokens}
}

// Name implements providers.Completer.
func (p *Provider) Name() string { return "gemini" }

// Complete implements providers.Completer.
func (p *Provider) Complete(ctx context.Context, req providers.Request) (string, error) {
	client, err := p.resolveClient(ctx)
	if err != nil {
		return "", err
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := genai.Role(genai.RoleUser)
		if turn.Role == convo.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	contents = append(contents, currentTurn(req))

	resp, err := client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(defaultTemperature),
		TopP:              genai.Ptr(defaultTopP),
		MaxOutputTokens:   p.maxTokens,
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt(), genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: empty reply")
	}
	return text, nil
}

func currentTurn(req providers.Request) *genai.Content {
	if len(req.ImageJPEG) == 0 {
		return genai.NewContentFromText(req.UserText, genai.RoleUser)
	}
	parts := []*genai.Part{
		genai.NewPartFromText(req.UserText),
		genai.NewPartFromBytes(req.ImageJPEG, "image/jpeg"),
	}
	return genai.NewContentFromParts(parts, genai.RoleUser)
}

func (p *Provider) resolveClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return p.client, nil
}
