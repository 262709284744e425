package ai

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/chronolens/chronolens/internal/logging"
)

const (
	ollamaDefaultBaseURL = "http://localhost:11434"
	ollamaDefaultModel   = "qwen3:4b"
)

// OllamaProvider implements the on-device backend via a local Ollama server.
// Unlike the hosted providers it can report downloadable/downloading: the
// model must be pulled explicitly before the provider becomes available.
type OllamaProvider struct {
	client       *api.Client
	baseURL      string
	model        string
	systemPrompt string
	caps         Capabilities

	mu          sync.Mutex
	downloading bool
}

// NewOllamaProvider creates a new on-device provider
func NewOllamaProvider(baseURL, model string, maxInputTokens int) *OllamaProvider {
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	if model == "" {
		model = ollamaDefaultModel
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		parsedURL, _ = url.Parse(ollamaDefaultBaseURL)
	}

	caps := Capabilities{
		MaxInputTokens:           8192,
		OptimalChunkTokens:       4000,
		SupportsTokenMeasurement: false,
	}
	if maxInputTokens > 0 {
		caps.MaxInputTokens = maxInputTokens
	}

	httpClient := &http.Client{
		Timeout: 5 * time.Minute, // Local inference can be slow
	}

	return &OllamaProvider{
		client:  api.NewClient(parsedURL, httpClient),
		baseURL: baseURL,
		model:   model,
		caps:    caps,
	}
}

// ID returns the provider identifier
func (p *OllamaProvider) ID() string {
	return "ollama"
}

// Initialize stores the system prompt and verifies the model is usable
func (p *OllamaProvider) Initialize(ctx context.Context, systemPrompt string) error {
	switch p.Status(ctx) {
	case StatusUnavailable:
		return NewError(KindUnavailable, "ollama server is not reachable at %s", p.baseURL)
	case StatusDownloadable:
		return NewError(KindUnavailable, "model %s is not present locally; run a download first", p.model)
	case StatusDownloading:
		return NewError(KindUnavailable, "model %s is still downloading", p.model)
	}
	p.systemPrompt = systemPrompt
	return nil
}

// Prompt sends text and returns the full (non-streamed) response string
func (p *OllamaProvider) Prompt(ctx context.Context, text string, opts *PromptOptions) (string, error) {
	messages := []api.Message{}
	if p.systemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: p.systemPrompt})
	}
	messages = append(messages, api.Message{Role: "user", Content: text})

	stream := false
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   &stream,
	}
	if opts != nil {
		if opts.MaxOutputTokens > 0 {
			chatReq.Options = map[string]any{"num_predict": opts.MaxOutputTokens}
		}
		if len(opts.ResponseSchema) > 0 {
			chatReq.Format = []byte(`"json"`)
		}
	}

	logging.Infof("[Ollama] Sending request: model=%s chars=%d", p.model, len(text))

	var sb strings.Builder
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", Normalize(err, "ollama")
	}
	return sb.String(), nil
}

// MeasureInputUsage is unsupported; the estimator path is used instead
func (p *OllamaProvider) MeasureInputUsage(ctx context.Context, text string) (int, error) {
	return 0, NewError(KindUnavailable, "ollama does not support native token measurement")
}

// Status probes the local server and the model's presence
func (p *OllamaProvider) Status(ctx context.Context) Status {
	p.mu.Lock()
	if p.downloading {
		p.mu.Unlock()
		return StatusDownloading
	}
	p.mu.Unlock()

	if !p.serverReachable() {
		return StatusUnavailable
	}

	present, err := p.modelPresent(ctx)
	if err != nil {
		return StatusError
	}
	if !present {
		return StatusDownloadable
	}
	return StatusAvailable
}

// Capabilities returns the active model's limits
func (p *OllamaProvider) Capabilities() Capabilities {
	return p.caps
}

// Download pulls the model, reporting progress as a percentage.
// Implements the Downloader interface; this is the explicit user-triggered
// step that moves the provider from downloadable to available.
func (p *OllamaProvider) Download(ctx context.Context, progress func(pct int)) error {
	p.mu.Lock()
	if p.downloading {
		p.mu.Unlock()
		return NewError(KindUnavailable, "model %s is already downloading", p.model)
	}
	p.downloading = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.downloading = false
		p.mu.Unlock()
	}()

	logging.Infof("[Ollama] Pulling model %s", p.model)

	lastPct := -1
	err := p.client.Pull(ctx, &api.PullRequest{Model: p.model}, func(resp api.ProgressResponse) error {
		if resp.Total > 0 {
			pct := int(resp.Completed * 100 / resp.Total)
			if pct != lastPct {
				lastPct = pct
				if progress != nil {
					progress(pct)
				}
			}
		}
		return nil
	})
	if err != nil {
		return Normalize(err, "ollama")
	}

	logging.Infof("[Ollama] Model %s ready", p.model)
	return nil
}

// serverReachable checks the Ollama HTTP endpoint
func (p *OllamaProvider) serverReachable() bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(p.baseURL + "/api/tags")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// modelPresent reports whether the configured model exists locally.
// Ollama lists "qwen3:4b" or "qwen3:latest"; match with and without tags.
func (p *OllamaProvider) modelPresent(ctx context.Context) (bool, error) {
	resp, err := p.client.List(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range resp.Models {
		if m.Name == p.model ||
			strings.HasPrefix(m.Name, p.model+":") ||
			strings.TrimSuffix(m.Name, ":latest") == p.model {
			return true, nil
		}
	}
	return false, nil
}
