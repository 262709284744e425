package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chronolens/chronolens/internal/ai"
	"github.com/chronolens/chronolens/internal/analysis"
	"github.com/chronolens/chronolens/internal/history"
	"github.com/chronolens/chronolens/internal/logging"
	"github.com/chronolens/chronolens/internal/memory"
	"github.com/chronolens/chronolens/internal/scheduler"
)

var watchCron string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run analysis on a schedule until interrupted",
	Long:  "Re-analyzes the configured history source on a cron schedule,\npicking up only visits newer than the last analyzed timestamp.\nA tick that lands while a run is active is skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		// Validate the source once up front instead of failing on first tick
		if inputPath == "" && chromePath == "" {
			return fmt.Errorf("no history source: pass --input or --chrome")
		}

		store, err := memory.OpenStore(cfg.DatabasePath())
		if err != nil {
			return err
		}
		defer store.Close()

		orch := analysis.New(cfg, ai.NewFactory(), store)

		source := func(ctx context.Context) ([]history.Item, error) {
			var since time.Time
			if prof, err := store.Load(); err == nil && prof != nil {
				since = prof.LastHistoryTimestamp
			}
			return loadItems(since)
		}

		spec := watchCron
		if spec == "" {
			spec = cfg.Schedule.Cron
		}
		sched, err := scheduler.New(spec, orch, source, nil)
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", spec, err)
		}

		sched.Start()
		logging.Infof("[Watch] Scheduled analysis active (%s); press Ctrl-C to stop", spec)
		<-ctx.Done()
		sched.Stop()
		logging.Infof("[Watch] Stopped")
		return nil
	},
}

func init() {
	addSourceFlags(watchCmd)
	watchCmd.Flags().StringVar(&watchCron, "cron", "", "Cron expression override (default from config)")
}
