package ai

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/chronolens/chronolens/internal/logging"
)

const openaiDefaultModel = "gpt-4o-mini"

// OpenAIProvider implements the OpenAI API using the official SDK
type OpenAIProvider struct {
	client       openai.Client
	apiKey       string
	model        string
	systemPrompt string
	caps         Capabilities
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, model string, maxInputTokens int) *OpenAIProvider {
	if model == "" {
		model = openaiDefaultModel
	}
	caps := Capabilities{
		MaxInputTokens:           128000,
		OptimalChunkTokens:       30000,
		SupportsTokenMeasurement: false,
	}
	if maxInputTokens > 0 {
		caps.MaxInputTokens = maxInputTokens
	}
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		apiKey: apiKey,
		model:  model,
		caps:   caps,
	}
}

// ID returns the provider identifier
func (p *OpenAIProvider) ID() string {
	return "openai"
}

// Initialize stores the system prompt and validates configuration
func (p *OpenAIProvider) Initialize(ctx context.Context, systemPrompt string) error {
	if p.apiKey == "" {
		return NewError(KindUnavailable, "openai provider is not configured: missing API key")
	}
	p.systemPrompt = systemPrompt
	return nil
}

// Prompt sends text and returns the raw response string
func (p *OpenAIProvider) Prompt(ctx context.Context, text string, opts *PromptOptions) (string, error) {
	if p.apiKey == "" {
		return "", NewError(KindUnavailable, "openai provider is not configured: missing API key")
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if p.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(p.systemPrompt))
	}
	messages = append(messages, openai.UserMessage(text))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if opts != nil && opts.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxOutputTokens))
	}
	// A schema means the caller wants machine-parseable output; ask the API
	// to constrain the response to a JSON object.
	if opts != nil && len(opts.ResponseSchema) > 0 {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	logging.Infof("[OpenAI] Sending request: model=%s chars=%d", p.model, len(text))

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", Normalize(err, "openai")
	}
	if len(resp.Choices) == 0 {
		return "", NewError(KindParse, "openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// MeasureInputUsage is unsupported; OpenAI has no count-tokens endpoint
func (p *OpenAIProvider) MeasureInputUsage(ctx context.Context, text string) (int, error) {
	return 0, NewError(KindUnavailable, "openai does not support native token measurement")
}

// Status reports whether the provider can take work
func (p *OpenAIProvider) Status(ctx context.Context) Status {
	if p.apiKey == "" {
		return StatusNeedsConfiguration
	}
	return StatusAvailable
}

// Capabilities returns the active model's limits
func (p *OpenAIProvider) Capabilities() Capabilities {
	return p.caps
}
