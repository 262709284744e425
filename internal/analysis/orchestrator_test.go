package analysis

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chronolens/chronolens/internal/ai"
	"github.com/chronolens/chronolens/internal/config"
	"github.com/chronolens/chronolens/internal/history"
	"github.com/chronolens/chronolens/internal/memory"
)

// fakeProvider scripts responses by call content: chunking prompts ask for
// session grouping, analysis prompts list visits.
type fakeProvider struct {
	mu      sync.Mutex
	respond func(call int, text string) (string, error)
	calls   int
	prompts []string
}

func (f *fakeProvider) ID() string                                       { return "fake" }
func (f *fakeProvider) Initialize(ctx context.Context, sys string) error { return nil }
func (f *fakeProvider) Status(ctx context.Context) ai.Status             { return ai.StatusAvailable }
func (f *fakeProvider) Capabilities() ai.Capabilities {
	return ai.Capabilities{MaxInputTokens: 8192, OptimalChunkTokens: 4000}
}

func (f *fakeProvider) MeasureInputUsage(ctx context.Context, text string) (int, error) {
	return 0, ai.NewError(ai.KindUnavailable, "not supported")
}

func (f *fakeProvider) Prompt(ctx context.Context, text string, opts *ai.PromptOptions) (string, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.prompts = append(f.prompts, text)
	f.mu.Unlock()
	return f.respond(call, text)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func isChunkingPrompt(text string) bool {
	return strings.Contains(text, "browsing timestamps")
}

type fakeSource struct {
	provider ai.Provider
	err      error
}

func (s *fakeSource) Get(cfg config.ProviderConfig) (ai.Provider, error) {
	return s.provider, s.err
}

const sessionReply = `{"sessions": [{"startIndex": 0, "endIndex": 1, "label": "morning work"}, {"startIndex": 2, "endIndex": 3, "label": "afternoon research"}]}`

const analysisReply = `{"summary": "software work", "coreIdentities": ["software developer"], "currentTasks": ["api integration"], "currentInterests": ["databases"], "patterns": [{"pattern": "documentation check", "description": "reads library docs", "frequency": 2, "urls": ["https://docs.example.com"], "automationPotential": "low"}]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Timezone = "UTC"
	cfg.Analysis.BaseDelayMs = 1
	cfg.Analysis.ChunkDelayMs = 1
	return cfg
}

func testStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.OpenStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func visit(id string, hour, min int) history.Item {
	return history.Item{
		ID:        id,
		URL:       "https://example.com/" + id,
		Title:     "Page " + id,
		LastVisit: time.Date(2024, 3, 15, hour, min, 0, 0, time.UTC),
	}
}

func fourVisits() []history.Item {
	return []history.Item{
		visit("a", 9, 0), visit("b", 9, 15), visit("c", 14, 0), visit("d", 14, 20),
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	fake := &fakeProvider{respond: func(int, string) (string, error) { return analysisReply, nil }}
	orch := New(testConfig(t), &fakeSource{provider: fake}, nil)

	var phases []Phase
	res, err := orch.Analyze(context.Background(), nil, Options{
		Progress: func(p Progress) { phases = append(phases, p.Phase) },
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.TotalURLs != 0 {
		t.Errorf("totalURLs = %d", res.TotalURLs)
	}
	if fake.callCount() != 0 {
		t.Errorf("provider calls = %d, want 0 for empty input", fake.callCount())
	}
	if phases[len(phases)-1] != PhaseComplete {
		t.Errorf("final phase = %s", phases[len(phases)-1])
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	fake := &fakeProvider{respond: func(call int, text string) (string, error) {
		if isChunkingPrompt(text) {
			return sessionReply, nil
		}
		return analysisReply, nil
	}}
	store := testStore(t)
	orch := New(testConfig(t), &fakeSource{provider: fake}, store)

	var phases []Phase
	res, err := orch.Analyze(context.Background(), fourVisits(), Options{
		Progress: func(p Progress) { phases = append(phases, p.Phase) },
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.TotalURLs != 4 {
		t.Errorf("totalURLs = %d", res.TotalURLs)
	}
	if len(res.TopDomains) != 1 || res.TopDomains[0].Domain != "example.com" {
		t.Errorf("topDomains = %+v", res.TopDomains)
	}
	if res.Profile == nil {
		t.Fatal("profile missing from result")
	}
	if len(res.Profile.StableTraits.CoreIdentities) != 1 {
		t.Errorf("identities = %v", res.Profile.StableTraits.CoreIdentities)
	}
	// Two chunks, same pattern reported by both: frequencies accumulate
	if len(res.Patterns) != 1 || res.Patterns[0].Frequency != 4 {
		t.Errorf("patterns = %+v, want one pattern with frequency 4", res.Patterns)
	}
	if len(res.Diagnostics.Chunks) != 2 {
		t.Errorf("chunk diagnostics = %+v", res.Diagnostics.Chunks)
	}

	// The merged profile is persisted
	stored, err := store.Load()
	if err != nil || stored == nil {
		t.Fatalf("stored profile missing: %v", err)
	}
	if stored.Summary != "software work" {
		t.Errorf("stored summary = %q", stored.Summary)
	}
	if stored.LastHistoryTimestamp.IsZero() {
		t.Error("lastHistoryTimestamp not advanced")
	}

	wantOrder := []Phase{PhaseCalculating, PhaseChunking, PhaseAnalyzing}
	for i, want := range wantOrder {
		if phases[i] != want {
			t.Errorf("phase[%d] = %s, want %s", i, phases[i], want)
		}
	}
	if phases[len(phases)-1] != PhaseComplete {
		t.Errorf("final phase = %s", phases[len(phases)-1])
	}
}

func TestAnalyzeChunkFailureIsIsolated(t *testing.T) {
	var analysisCalls int
	fake := &fakeProvider{respond: func(call int, text string) (string, error) {
		if isChunkingPrompt(text) {
			return sessionReply, nil
		}
		analysisCalls++
		if analysisCalls == 1 {
			return "", ai.NewError(ai.KindOther, "backend exploded")
		}
		return analysisReply, nil
	}}
	orch := New(testConfig(t), &fakeSource{provider: fake}, nil)

	res, err := orch.Analyze(context.Background(), fourVisits(), Options{})
	if err != nil {
		t.Fatalf("one failed chunk must not fail the run: %v", err)
	}

	if len(res.Diagnostics.Chunks) != 2 {
		t.Fatalf("chunk diagnostics = %+v", res.Diagnostics.Chunks)
	}
	if res.Diagnostics.Chunks[0].Status != "failed" {
		t.Errorf("chunk 0 status = %q", res.Diagnostics.Chunks[0].Status)
	}
	if res.Diagnostics.Chunks[1].Status != "ok" {
		t.Errorf("chunk 1 status = %q", res.Diagnostics.Chunks[1].Status)
	}
	// The surviving chunk still merged
	if res.Profile == nil || res.Profile.Summary != "software work" {
		t.Errorf("profile = %+v", res.Profile)
	}
}

func TestAnalyzeIrreparableResponseSkipsChunk(t *testing.T) {
	var analysisCalls int
	fake := &fakeProvider{respond: func(call int, text string) (string, error) {
		if isChunkingPrompt(text) {
			return sessionReply, nil
		}
		analysisCalls++
		if analysisCalls == 1 {
			return "I could not produce JSON for this one, sorry!", nil
		}
		// Fenced but repairable output still parses
		return "```json\n" + analysisReply + "\n```", nil
	}}
	store := testStore(t)
	orch := New(testConfig(t), &fakeSource{provider: fake}, store)

	res, err := orch.Analyze(context.Background(), fourVisits(), Options{})
	if err != nil {
		t.Fatalf("a parse failure must not fail the run: %v", err)
	}
	if res.Diagnostics.Chunks[0].Status != "failed" {
		t.Errorf("chunk 0 status = %q", res.Diagnostics.Chunks[0].Status)
	}
	// Only the repairable chunk merged; the failed one left no trace
	stored, err := store.Load()
	if err != nil || stored == nil {
		t.Fatalf("stored profile: %v", err)
	}
	if stored.Summary != "software work" {
		t.Errorf("summary = %q", stored.Summary)
	}
	if len(stored.Patterns) != 1 || stored.Patterns[0].Frequency != 2 {
		t.Errorf("patterns = %+v, want the single surviving chunk's merge", stored.Patterns)
	}
}

func TestAnalyzeAllChunksFailed(t *testing.T) {
	fake := &fakeProvider{respond: func(call int, text string) (string, error) {
		if isChunkingPrompt(text) {
			return sessionReply, nil
		}
		return "", ai.NewError(ai.KindOther, "backend down")
	}}
	orch := New(testConfig(t), &fakeSource{provider: fake}, nil)

	res, err := orch.Analyze(context.Background(), fourVisits(), Options{})
	if err == nil {
		t.Fatal("run with zero analyzed chunks must fail")
	}
	if res == nil || res.TotalURLs != 4 {
		t.Error("statistics must survive a failed run")
	}
}

func TestAnalyzeQuotaRetries(t *testing.T) {
	var analysisCalls int
	fake := &fakeProvider{respond: func(call int, text string) (string, error) {
		if isChunkingPrompt(text) {
			return `{"sessions": [{"startIndex": 0, "endIndex": 3, "label": "work"}]}`, nil
		}
		analysisCalls++
		if analysisCalls <= 2 {
			return "", ai.NewError(ai.KindQuota, "rate limit exceeded")
		}
		return analysisReply, nil
	}}
	orch := New(testConfig(t), &fakeSource{provider: fake}, nil)

	var events []Progress
	res, err := orch.Analyze(context.Background(), fourVisits(), Options{
		Progress: func(p Progress) { events = append(events, p) },
	})
	if err != nil {
		t.Fatalf("quota errors within the retry budget must recover: %v", err)
	}
	if analysisCalls != 3 {
		t.Errorf("analysis calls = %d, want 2 failures + 1 success", analysisCalls)
	}
	if res.Diagnostics.Chunks[0].Status != "ok" {
		t.Errorf("chunk status = %q", res.Diagnostics.Chunks[0].Status)
	}

	// Each backoff sleep announces itself so a watcher can tell a
	// rate-limit wait from a hung call
	var retrying []Progress
	for _, p := range events {
		if p.Phase == PhaseRetrying {
			retrying = append(retrying, p)
		}
	}
	if len(retrying) != 2 {
		t.Fatalf("retrying events = %d, want one per backoff; phases = %v", len(retrying), phaseList(events))
	}
	if retrying[0].ChunkIndex != 1 || retrying[0].TotalChunks != 1 {
		t.Errorf("retrying event position = %d/%d, want 1/1", retrying[0].ChunkIndex, retrying[0].TotalChunks)
	}
	if events[len(events)-1].Phase != PhaseComplete {
		t.Errorf("final phase = %s", events[len(events)-1].Phase)
	}
}

func phaseList(events []Progress) []Phase {
	out := make([]Phase, len(events))
	for i, p := range events {
		out[i] = p.Phase
	}
	return out
}

func TestAnalyzeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeProvider{respond: func(call int, text string) (string, error) {
		if isChunkingPrompt(text) {
			return sessionReply, nil
		}
		cancel()
		return "", ctx.Err()
	}}
	orch := New(testConfig(t), &fakeSource{provider: fake}, nil)

	var last Progress
	_, err := orch.Analyze(ctx, fourVisits(), Options{
		Progress: func(p Progress) { last = p },
	})
	if err == nil {
		t.Fatal("cancelled run must return an error")
	}
	if !ai.IsCancelled(err) {
		t.Errorf("error kind = %v, want cancelled", err)
	}
	if last.Phase != PhaseCancelled {
		t.Errorf("final phase = %s, want cancelled", last.Phase)
	}
}

func TestAnalyzeSubdividesOversizedChunk(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider.MaxInputTokens = 250
	cfg.Analysis.SafetyMarginTok = 100

	var analysisCalls int
	fake := &fakeProvider{respond: func(call int, text string) (string, error) {
		if isChunkingPrompt(text) {
			return `{"sessions": [{"startIndex": 0, "endIndex": 19, "label": "long session"}]}`, nil
		}
		analysisCalls++
		return analysisReply, nil
	}}
	orch := New(cfg, &fakeSource{provider: fake}, nil)

	var items []history.Item
	for i := 0; i < 20; i++ {
		items = append(items, visit(strings.Repeat("x", 3)+string(rune('a'+i)), 9, i))
	}

	res, err := orch.Analyze(context.Background(), items, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysisCalls < 2 {
		t.Errorf("analysis calls = %d, want the chunk subdivided", analysisCalls)
	}
	if res.Diagnostics.Chunks[0].Subdivisions < 2 {
		t.Errorf("subdivisions = %d", res.Diagnostics.Chunks[0].Subdivisions)
	}
}

func TestAnalyzeSingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeProvider{respond: func(call int, text string) (string, error) {
		if isChunkingPrompt(text) {
			close(started)
			<-release
			return sessionReply, nil
		}
		return analysisReply, nil
	}}
	orch := New(testConfig(t), &fakeSource{provider: fake}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := orch.Analyze(context.Background(), fourVisits(), Options{})
		done <- err
	}()

	<-started
	if _, err := orch.Analyze(context.Background(), fourVisits(), Options{}); err != ErrRunActive {
		t.Errorf("concurrent run error = %v, want ErrRunActive", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first run failed: %v", err)
	}
}

func TestSubdivideItems(t *testing.T) {
	render := func(items []history.Item) string {
		var sb strings.Builder
		for _, it := range items {
			sb.WriteString(it.URL)
			sb.WriteString("\n")
		}
		return sb.String()
	}

	var items []history.Item
	for i := 0; i < 10; i++ {
		items = append(items, history.Item{URL: strings.Repeat("u", 34)}) // ~10 tokens each
	}

	t.Run("fits in one slice", func(t *testing.T) {
		got := subdivideItems(items, render, 1000)
		if len(got) != 1 || len(got[0]) != 10 {
			t.Errorf("slices = %d", len(got))
		}
	})

	t.Run("splits consecutively", func(t *testing.T) {
		got := subdivideItems(items, render, 35) // ~3 items per slice
		if len(got) < 3 {
			t.Fatalf("slices = %d, want several", len(got))
		}
		total := 0
		for _, s := range got {
			total += len(s)
		}
		if total != 10 {
			t.Errorf("items across slices = %d, want all 10", total)
		}
	})

	t.Run("single oversized item still sent", func(t *testing.T) {
		got := subdivideItems(items[:1], render, 1)
		if len(got) != 1 || len(got[0]) != 1 {
			t.Errorf("got %+v", got)
		}
	})
}
