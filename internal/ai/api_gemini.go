package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/chronolens/chronolens/internal/logging"
)

const geminiDefaultModel = "gemini-2.0-flash"

// GeminiProvider implements the Google Gemini API using the official SDK
type GeminiProvider struct {
	mu           sync.Mutex
	client       *genai.Client
	apiKey       string
	model        string
	systemPrompt string
	caps         Capabilities
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(apiKey, model string, maxInputTokens int) *GeminiProvider {
	if model == "" {
		model = geminiDefaultModel
	}
	caps := Capabilities{
		MaxInputTokens:           1000000,
		OptimalChunkTokens:       30000,
		SupportsTokenMeasurement: false,
	}
	if maxInputTokens > 0 {
		caps.MaxInputTokens = maxInputTokens
	}
	return &GeminiProvider{
		apiKey: apiKey,
		model:  model,
		caps:   caps,
	}
}

// ID returns the provider identifier
func (p *GeminiProvider) ID() string {
	return "gemini"
}

// ensureClient lazily constructs the SDK client (its constructor needs a ctx)
func (p *GeminiProvider) ensureClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, WrapError(KindUnavailable, "failed to create gemini client", err)
	}
	p.client = client
	return client, nil
}

// Initialize stores the system prompt and validates configuration
func (p *GeminiProvider) Initialize(ctx context.Context, systemPrompt string) error {
	if p.apiKey == "" {
		return NewError(KindUnavailable, "gemini provider is not configured: missing API key")
	}
	p.systemPrompt = systemPrompt
	return nil
}

// Prompt sends text and returns the raw response string
func (p *GeminiProvider) Prompt(ctx context.Context, text string, opts *PromptOptions) (string, error) {
	if p.apiKey == "" {
		return "", NewError(KindUnavailable, "gemini provider is not configured: missing API key")
	}

	client, err := p.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	model := client.GenerativeModel(p.model)
	if p.systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(p.systemPrompt)},
		}
	}
	if opts != nil && opts.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxOutputTokens))
	}
	if opts != nil && len(opts.ResponseSchema) > 0 {
		model.ResponseMIMEType = "application/json"
	}

	logging.Infof("[Gemini] Sending request: model=%s chars=%d", p.model, len(text))

	resp, err := model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return "", Normalize(err, "gemini")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", NewError(KindParse, "gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

// MeasureInputUsage is unsupported; the estimator path is used instead
func (p *GeminiProvider) MeasureInputUsage(ctx context.Context, text string) (int, error) {
	return 0, NewError(KindUnavailable, "gemini token measurement is not enabled")
}

// Status reports whether the provider can take work
func (p *GeminiProvider) Status(ctx context.Context) Status {
	if p.apiKey == "" {
		return StatusNeedsConfiguration
	}
	return StatusAvailable
}

// Capabilities returns the active model's limits
func (p *GeminiProvider) Capabilities() Capabilities {
	return p.caps
}

// Close releases the underlying SDK client
func (p *GeminiProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	if err != nil {
		return fmt.Errorf("failed to close gemini client: %w", err)
	}
	return nil
}
