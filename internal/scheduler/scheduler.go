// Package scheduler triggers periodic analysis runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"

	"github.com/chronolens/chronolens/internal/analysis"
	"github.com/chronolens/chronolens/internal/history"
	"github.com/chronolens/chronolens/internal/logging"
)

// Source supplies the history batch for a scheduled run
type Source func(ctx context.Context) ([]history.Item, error)

// Runner is the analysis surface the scheduler drives.
// *analysis.Orchestrator satisfies it.
type Runner interface {
	Running() bool
	Analyze(ctx context.Context, items []history.Item, opts analysis.Options) (*analysis.Result, error)
}

// Scheduler fires analysis runs on a cron expression. A tick that lands
// while a run is still active is skipped, not queued.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	source   Source
	progress analysis.ProgressFunc
}

// New creates a scheduler for the given cron expression (standard
// five-field syntax). The expression is validated at construction, not at
// Start.
func New(spec string, runner Runner, source Source, progress analysis.ProgressFunc) (*Scheduler, error) {
	if source == nil {
		return nil, errors.New("scheduler requires a history source")
	}

	s := &Scheduler{
		cron:     cron.New(),
		runner:   runner,
		source:   source,
		progress: progress,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins firing on schedule. Returns immediately; runs execute on the
// cron goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for an in-flight run to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// runOnce is one scheduled tick
func (s *Scheduler) runOnce() {
	if s.runner.Running() {
		logging.Infof("[Scheduler] Previous run still active, skipping this tick")
		return
	}

	ctx := context.Background()
	items, err := s.source(ctx)
	if err != nil {
		logging.Errorf("[Scheduler] Could not load history: %v", err)
		return
	}

	res, err := s.runner.Analyze(ctx, items, analysis.Options{
		Trigger:  analysis.TriggerScheduled,
		Progress: s.progress,
	})
	if err != nil {
		if errors.Is(err, analysis.ErrRunActive) {
			logging.Infof("[Scheduler] Run already active, skipped")
			return
		}
		logging.Errorf("[Scheduler] Scheduled run failed: %v", err)
		return
	}
	logging.Infof("[Scheduler] Scheduled run %s complete: %d URLs, %d patterns",
		res.RunID, res.TotalURLs, len(res.Patterns))
}
