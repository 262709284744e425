package ai

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chronolens/chronolens/internal/logging"
)

const anthropicDefaultModel = "claude-haiku-4-5"

// AnthropicProvider implements the Anthropic API using the official SDK
type AnthropicProvider struct {
	client       anthropic.Client
	apiKey       string
	model        string
	systemPrompt string
	caps         Capabilities
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, model string, maxInputTokens int) *AnthropicProvider {
	if model == "" {
		model = anthropicDefaultModel
	}
	caps := Capabilities{
		MaxInputTokens:           200000,
		OptimalChunkTokens:       30000,
		SupportsTokenMeasurement: true,
	}
	if maxInputTokens > 0 {
		caps.MaxInputTokens = maxInputTokens
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		apiKey: apiKey,
		model:  model,
		caps:   caps,
	}
}

// ID returns the provider identifier
func (p *AnthropicProvider) ID() string {
	return "anthropic"
}

// Initialize stores the system prompt and validates configuration
func (p *AnthropicProvider) Initialize(ctx context.Context, systemPrompt string) error {
	if p.apiKey == "" {
		return NewError(KindUnavailable, "anthropic provider is not configured: missing API key")
	}
	p.systemPrompt = systemPrompt
	return nil
}

// Prompt sends text and returns the raw response string
func (p *AnthropicProvider) Prompt(ctx context.Context, text string, opts *PromptOptions) (string, error) {
	if p.apiKey == "" {
		return "", NewError(KindUnavailable, "anthropic provider is not configured: missing API key")
	}

	maxTokens := int64(8192)
	if opts != nil && opts.MaxOutputTokens > 0 {
		maxTokens = int64(opts.MaxOutputTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	}
	if p.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.systemPrompt}}
	}

	logging.Infof("[Anthropic] Sending request: model=%s chars=%d", p.model, len(text))

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", Normalize(err, "anthropic")
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String(), nil
}

// MeasureInputUsage counts tokens with the native count_tokens endpoint
func (p *AnthropicProvider) MeasureInputUsage(ctx context.Context, text string) (int, error) {
	if p.apiKey == "" {
		return 0, NewError(KindUnavailable, "anthropic provider is not configured: missing API key")
	}

	count, err := p.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: anthropic.Model(p.model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return 0, Normalize(err, "anthropic")
	}
	return int(count.InputTokens), nil
}

// Status reports whether the provider can take work
func (p *AnthropicProvider) Status(ctx context.Context) Status {
	if p.apiKey == "" {
		return StatusNeedsConfiguration
	}
	return StatusAvailable
}

// Capabilities returns the active model's limits
func (p *AnthropicProvider) Capabilities() Capabilities {
	return p.caps
}
