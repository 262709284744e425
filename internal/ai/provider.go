// Package ai is the provider gateway: one contract over heterogeneous
// language-model backends. Provider-specific error types never leave this
// package; failures are normalized into the Error taxonomy in errors.go.
package ai

import (
	"context"
	"encoding/json"
)

// Status describes whether a provider can take work right now
type Status string

const (
	StatusAvailable          Status = "available"
	StatusNeedsConfiguration Status = "needs-configuration"
	StatusRateLimited        Status = "rate-limited"
	StatusUnavailable        Status = "unavailable"
	StatusError              Status = "error"
	// StatusDownloadable and StatusDownloading only apply to the on-device
	// provider: the model must be pulled before it becomes available.
	StatusDownloadable Status = "downloadable"
	StatusDownloading  Status = "downloading"
)

// Capabilities describes the limits of a provider's active model
type Capabilities struct {
	MaxInputTokens           int  `json:"maxInputTokens"`
	OptimalChunkTokens       int  `json:"optimalChunkTokens"`
	SupportsTokenMeasurement bool `json:"supportsTokenMeasurement"`
}

// PromptOptions carries per-call options for Prompt
type PromptOptions struct {
	// ResponseSchema asks the backend for schema-conformant JSON output
	// where supported. Backends without structured output honor it via
	// prompt instruction only; callers must still repair-parse the reply.
	ResponseSchema json.RawMessage

	// MaxOutputTokens bounds the response length (0 = provider default)
	MaxOutputTokens int
}

// Provider is the uniform contract over language-model backends
type Provider interface {
	// ID returns the provider identifier (e.g., "anthropic", "ollama")
	ID() string

	// Initialize prepares the provider with a system prompt. Hosted
	// backends validate configuration; the on-device backend verifies the
	// model is present.
	Initialize(ctx context.Context, systemPrompt string) error

	// Prompt sends text and returns the raw response string
	Prompt(ctx context.Context, text string, opts *PromptOptions) (string, error)

	// MeasureInputUsage returns the native token count for text.
	// Providers without native measurement return an Error of kind
	// KindUnavailable; check Capabilities().SupportsTokenMeasurement first.
	MeasureInputUsage(ctx context.Context, text string) (int, error)

	// Status reports whether the provider can take work
	Status(ctx context.Context) Status

	// Capabilities returns the active model's limits
	Capabilities() Capabilities
}

// Downloader is implemented by providers whose model requires an explicit
// user-triggered download step (the on-device backend).
type Downloader interface {
	// Download pulls the model, reporting progress as a percentage [0,100]
	Download(ctx context.Context, progress func(pct int)) error
}
