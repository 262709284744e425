package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chronolens/chronolens/internal/ai"
	"github.com/chronolens/chronolens/internal/chunking"
	"github.com/chronolens/chronolens/internal/config"
	"github.com/chronolens/chronolens/internal/history"
	"github.com/chronolens/chronolens/internal/jsonrepair"
	"github.com/chronolens/chronolens/internal/logging"
	"github.com/chronolens/chronolens/internal/memory"
	"github.com/chronolens/chronolens/internal/retry"
)

// ErrRunActive is returned when a run is requested while one is in flight
var ErrRunActive = errors.New("an analysis run is already active")

// ProviderSource resolves a configured provider. *ai.Factory satisfies it.
type ProviderSource interface {
	Get(cfg config.ProviderConfig) (ai.Provider, error)
}

// Orchestrator drives analysis runs. At most one run is active at a time;
// concurrent requests fail fast with ErrRunActive rather than queue.
type Orchestrator struct {
	cfg       *config.Config
	providers ProviderSource
	store     *memory.Store

	mu      sync.Mutex
	running bool
}

// New creates an orchestrator. Store may be nil for dry runs; the profile
// then lives only for the duration of the run.
func New(cfg *config.Config, providers ProviderSource, store *memory.Store) *Orchestrator {
	return &Orchestrator{cfg: cfg, providers: providers, store: store}
}

// Options carries per-run options
type Options struct {
	Trigger      string // TriggerManual or TriggerScheduled
	Progress     ProgressFunc
	SystemPrompt string // Overrides the default analysis framing when set
	Guidance     string // Extra focus instructions added to every chunk prompt
}

// Running reports whether a run is currently active
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Analyze runs the full pipeline over items: statistics, session chunking,
// per-chunk provider analysis, and incremental profile merging. Statistics
// are computed with zero provider calls; an empty input completes
// immediately. Individual chunk failures are logged and skipped; the run
// fails only when every chunk fails or the context is cancelled. The
// returned Result is valid even alongside a non-nil error and reflects
// whatever merged before the run ended.
func (o *Orchestrator) Analyze(ctx context.Context, items []history.Item, opts Options) (*Result, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrRunActive
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	if opts.Trigger == "" {
		opts.Trigger = TriggerManual
	}
	result := &Result{
		RunID:     uuid.NewString(),
		Trigger:   opts.Trigger,
		StartedAt: time.Now(),
	}
	emit := func(p Progress) {
		p.RunID = result.RunID
		if opts.Progress == nil {
			return
		}
		// Progress is best-effort; a broken callback must not kill the run
		defer func() {
			if r := recover(); r != nil {
				logging.Warnf("[Analysis] Progress callback panicked: %v", r)
			}
		}()
		opts.Progress(p)
	}
	finish := func(phase Phase, err error) (*Result, error) {
		result.FinishedAt = time.Now()
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		emit(Progress{Phase: phase, Message: msg})
		return result, err
	}

	logging.Infof("[Analysis] Run %s started (%s, %d items)", result.RunID, opts.Trigger, len(items))

	emit(Progress{Phase: PhaseCalculating})
	stats := history.ComputeStats(items)
	result.TotalURLs = stats.TotalURLs
	result.TopDomains = stats.TopDomains
	result.DateStart = stats.DateStart
	result.DateEnd = stats.DateEnd

	if len(items) == 0 {
		logging.Infof("[Analysis] Run %s: nothing to analyze", result.RunID)
		return finish(PhaseComplete, nil)
	}

	mem := o.loadProfile()

	provider, err := o.providers.Get(o.cfg.Provider)
	if err != nil {
		return finish(PhaseError, err)
	}
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	if err := provider.Initialize(ctx, systemPrompt); err != nil {
		return finish(PhaseError, ai.Normalize(err, provider.ID()))
	}

	a := o.cfg.Analysis
	retryOpts := retry.Options{
		MaxRetries: a.MaxRetries,
		BaseDelay:  time.Duration(a.BaseDelayMs) * time.Millisecond,
	}

	emit(Progress{Phase: PhaseChunking})
	chunkingRetry := retryOpts
	chunkingRetry.OnRetry = func(attempt int, delay time.Duration, err error) {
		emit(Progress{
			Phase:   PhaseRetrying,
			Message: fmt.Sprintf("session detection rate-limited, retrying in %s", delay),
		})
	}
	detector := chunking.NewDetector(provider, chunking.Options{
		BatchCeiling: a.BatchCeiling,
		MergeGap:     time.Duration(a.MergeGapSeconds) * time.Second,
		SessionGap:   time.Duration(a.SessionGapMin) * time.Minute,
		Location:     o.cfg.Location(),
		Retry:        chunkingRetry,
	})
	chunkRes := detector.Detect(ctx, items)
	if chunkRes.Err != nil {
		if ai.IsCancelled(chunkRes.Err) {
			return finish(PhaseCancelled, chunkRes.Err)
		}
		result.Diagnostics.ChunkingError = chunkRes.Err.Error()
	}
	result.Diagnostics.ChunkingRawResponse = chunkRes.RawResponse

	chunks := chunkRes.Chunks
	if undated := undatedItems(items); len(undated) > 0 {
		chunks = append(chunks, chunking.Chunk{
			Items:       undated,
			Description: "Undated activity",
			IsFallback:  true,
		})
	}
	if len(chunks) == 0 {
		return finish(PhaseComplete, nil)
	}

	budget := o.tokenBudget(provider)
	caps := memory.Caps{
		Identities:     a.MaxIdentities,
		Preferences:    a.MaxPreferences,
		Tasks:          a.MaxTasks,
		Interests:      a.MaxInterests,
		Patterns:       a.MaxPatterns,
		URLsPerPattern: a.MaxURLsPerResult,
	}

	var analyzed, failed int
	for i, chunk := range chunks {
		emit(Progress{
			Phase:       PhaseAnalyzing,
			ChunkIndex:  i + 1,
			TotalChunks: len(chunks),
			Description: chunk.Description,
		})

		memCtx := memoryContext(mem)
		render := func(sub []history.Item) string {
			return renderAnalysisPrompt(sub, memCtx, chunk.Description, opts.Guidance)
		}
		slices := subdivideItems(chunk.Items, render, budget)
		if len(slices) > 1 {
			logging.Infof("[Analysis] Chunk %d/%d exceeds the token budget, subdividing into %d parts",
				i+1, len(chunks), len(slices))
		}

		info := ChunkInfo{
			Index:        i,
			Start:        chunk.Start,
			End:          chunk.End,
			Description:  chunk.Description,
			ItemCount:    len(chunk.Items),
			IsFallback:   chunk.IsFallback,
			Subdivisions: len(slices),
			Status:       "ok",
		}

		chunkRetry := retryOpts
		chunkRetry.OnRetry = func(attempt int, delay time.Duration, err error) {
			emit(Progress{
				Phase:       PhaseRetrying,
				ChunkIndex:  i + 1,
				TotalChunks: len(chunks),
				Description: chunk.Description,
				Message:     fmt.Sprintf("rate-limited, retrying in %s", delay),
			})
		}

		var chunkErr error
		for _, sub := range slices {
			raw, err := retry.Do(ctx, chunkRetry, func(ctx context.Context) (string, error) {
				return provider.Prompt(ctx, render(sub), &ai.PromptOptions{ResponseSchema: analysisSchema})
			})
			if err != nil {
				if ai.IsCancelled(err) {
					info.Status = "failed"
					info.Error = err.Error()
					result.Diagnostics.Chunks = append(result.Diagnostics.Chunks, info)
					result.Profile = mem
					result.Patterns = mem.Patterns
					return finish(PhaseCancelled, err)
				}
				chunkErr = err
				break
			}

			var upd memory.ChunkUpdate
			if err := jsonrepair.Parse(raw, &upd); err != nil {
				chunkErr = err
				break
			}

			memory.Merge(mem, &upd, caps)
			mem.LastAnalyzedAt = time.Now()
			if latest := latestVisit(sub); latest.After(mem.LastHistoryTimestamp) {
				mem.LastHistoryTimestamp = latest
			}
			o.saveProfile(mem)
			memCtx = memoryContext(mem)
		}

		if chunkErr != nil {
			failed++
			info.Status = "failed"
			info.Error = chunkErr.Error()
			logging.Warnf("[Analysis] Chunk %d/%d failed, skipping: %v", i+1, len(chunks), chunkErr)
		} else {
			analyzed++
		}
		result.Diagnostics.Chunks = append(result.Diagnostics.Chunks, info)

		if i < len(chunks)-1 {
			if err := pause(ctx, time.Duration(a.ChunkDelayMs)*time.Millisecond); err != nil {
				result.Profile = mem
				result.Patterns = mem.Patterns
				return finish(PhaseCancelled, err)
			}
		}
	}

	result.Profile = mem
	result.Patterns = mem.Patterns

	if analyzed == 0 {
		return finish(PhaseError, ai.NewError(ai.KindOther, "all %d chunks failed", failed))
	}
	logging.Infof("[Analysis] Run %s complete: %d chunks analyzed, %d failed", result.RunID, analyzed, failed)
	return finish(PhaseComplete, nil)
}

// loadProfile reads the stored profile, starting fresh when absent or when
// persistence is unavailable. Store failures never abort a run.
func (o *Orchestrator) loadProfile() *memory.ProfileMemory {
	if o.store == nil {
		return memory.NewProfileMemory()
	}
	mem, err := o.store.Load()
	if err != nil {
		logging.Warnf("[Analysis] Could not load profile, starting fresh: %v", err)
	}
	if mem == nil {
		mem = memory.NewProfileMemory()
	}
	return mem
}

// saveProfile persists the profile after each merged slice. Persistence
// failures are tolerated: the merged state stays in memory for the rest of
// the run and the final result.
func (o *Orchestrator) saveProfile(mem *memory.ProfileMemory) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(mem); err != nil {
		logging.Warnf("[Analysis] Could not persist profile: %v", err)
	}
}

// tokenBudget returns the per-prompt input budget: the configured or
// provider-reported input ceiling minus the safety margin.
func (o *Orchestrator) tokenBudget(provider ai.Provider) int {
	max := o.cfg.Provider.MaxInputTokens
	if max <= 0 {
		max = provider.Capabilities().MaxInputTokens
	}
	budget := max - o.cfg.Analysis.SafetyMarginTok
	if budget <= 0 {
		budget = max
	}
	return budget
}

// undatedItems returns the items that carry no visit timestamp
func undatedItems(items []history.Item) []history.Item {
	var out []history.Item
	for _, it := range items {
		if !it.HasTimestamp() {
			out = append(out, it)
		}
	}
	return out
}

// latestVisit returns the newest timestamp in items, zero when none
func latestVisit(items []history.Item) time.Time {
	var latest time.Time
	for _, it := range items {
		if it.LastVisit.After(latest) {
			latest = it.LastVisit
		}
	}
	return latest
}

// pause waits between chunk analyses, aborting promptly on cancellation
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ai.WrapError(ai.KindCancelled, "cancelled between chunks", ctx.Err())
	case <-timer.C:
		return nil
	}
}
