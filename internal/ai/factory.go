package ai

import (
	"sync"

	"github.com/chronolens/chronolens/internal/config"
)

// Factory builds providers from configuration and caches one instance per
// provider type so repeated lookups don't re-initialize SDK clients.
type Factory struct {
	mu    sync.Mutex
	cache map[string]Provider
}

// NewFactory creates a provider factory
func NewFactory() *Factory {
	return &Factory{cache: make(map[string]Provider)}
}

// Get returns the provider for the given configuration, building it on
// first use. Unknown types yield a KindUnavailable error.
func (f *Factory) Get(cfg config.ProviderConfig) (Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.cache[cfg.Type]; ok {
		return p, nil
	}

	var p Provider
	switch cfg.Type {
	case "anthropic":
		p = NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.MaxInputTokens)
	case "openai":
		p = NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.MaxInputTokens)
	case "gemini":
		p = NewGeminiProvider(cfg.APIKey, cfg.Model, cfg.MaxInputTokens)
	case "ollama", "":
		p = NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.MaxInputTokens)
	default:
		return nil, NewError(KindUnavailable, "unknown provider type %q", cfg.Type)
	}

	f.cache[cfg.Type] = p
	return p, nil
}
