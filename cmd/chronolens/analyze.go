package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chronolens/chronolens/internal/ai"
	"github.com/chronolens/chronolens/internal/analysis"
	"github.com/chronolens/chronolens/internal/memory"
)

var (
	analyzeJSON     bool
	analyzeFull     bool
	analyzeProvider string
	analyzeDays     int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a browsing-history batch",
	Long:  "Runs the full pipeline over a history export or Chrome database:\nstatistics, session detection, per-session AI analysis, and profile\nmerging. By default only visits newer than the last analyzed timestamp\nare considered; --full reprocesses everything.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		if analyzeProvider != "" {
			cfg.Provider.Type = analyzeProvider
			cfg.Provider.APIKey = ""
			cfg.Provider.Model = ""
			cfg.ApplyEnv()
		}

		store, err := memory.OpenStore(cfg.DatabasePath())
		if err != nil {
			return err
		}
		defer store.Close()

		var since time.Time
		if !analyzeFull {
			if prof, err := store.Load(); err == nil && prof != nil {
				since = prof.LastHistoryTimestamp
			}
		}
		if analyzeDays > 0 {
			if window := time.Now().AddDate(0, 0, -analyzeDays); window.After(since) {
				since = window
			}
		}

		items, err := loadItems(since)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Nothing new to analyze.")
			return nil
		}

		var progress analysis.ProgressFunc
		if !analyzeJSON {
			progress = printProgress
		}

		orch := analysis.New(cfg, ai.NewFactory(), store)
		res, runErr := orch.Analyze(ctx, items, analysis.Options{
			Trigger:  analysis.TriggerManual,
			Progress: progress,
		})
		if res != nil {
			if analyzeJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printSummary(res)
			}
		}
		return runErr
	},
}

func init() {
	addSourceFlags(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the full result as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeFull, "full", false, "Ignore the last analyzed timestamp and reprocess everything")
	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "", "Provider type override (anthropic, openai, gemini, ollama)")
	analyzeCmd.Flags().IntVar(&analyzeDays, "days", 0, "Only analyze visits from the last N days")
}

// printProgress renders run progress to stderr
func printProgress(p analysis.Progress) {
	switch p.Phase {
	case analysis.PhaseCalculating:
		fmt.Fprintln(os.Stderr, "Calculating statistics...")
	case analysis.PhaseChunking:
		fmt.Fprintln(os.Stderr, "Detecting sessions...")
	case analysis.PhaseAnalyzing:
		desc := p.Description
		if desc == "" {
			desc = "session"
		}
		fmt.Fprintf(os.Stderr, "Analyzing %d/%d: %s\n", p.ChunkIndex, p.TotalChunks, desc)
	case analysis.PhaseCancelled:
		fmt.Fprintln(os.Stderr, "Cancelled.")
	case analysis.PhaseError:
		fmt.Fprintf(os.Stderr, "Failed: %s\n", p.Message)
	}
}

// printSummary renders a completed result for terminal reading
func printSummary(res *analysis.Result) {
	fmt.Printf("\nAnalyzed %d URLs", res.TotalURLs)
	if !res.DateStart.IsZero() {
		fmt.Printf(" (%s to %s)", res.DateStart.Format("Jan 2, 2006"), res.DateEnd.Format("Jan 2, 2006"))
	}
	fmt.Println()

	if len(res.TopDomains) > 0 {
		fmt.Println("\nTop domains:")
		for _, d := range res.TopDomains {
			fmt.Printf("  %5d  %s\n", d.Count, d.Domain)
		}
	}

	if res.Profile != nil {
		if res.Profile.Summary != "" {
			fmt.Printf("\nProfile: %s\n", res.Profile.Summary)
		}
		if len(res.Profile.StableTraits.CoreIdentities) > 0 {
			fmt.Println("\nIdentities:")
			for _, id := range res.Profile.StableTraits.CoreIdentities {
				fmt.Printf("  - %s\n", id)
			}
		}
		if len(res.Profile.DynamicContext.CurrentTasks) > 0 {
			fmt.Println("\nCurrent tasks:")
			for _, task := range res.Profile.DynamicContext.CurrentTasks {
				fmt.Printf("  - %s\n", task)
			}
		}
	}

	if len(res.Patterns) > 0 {
		fmt.Println("\nWorkflow patterns:")
		for _, p := range res.Patterns {
			fmt.Printf("  - %s (seen %dx, automation: %s)\n", p.Pattern, p.Frequency, p.AutomationPotential)
			if p.Suggestion != "" {
				fmt.Printf("    %s\n", p.Suggestion)
			}
		}
	}

	failed := 0
	for _, c := range res.Diagnostics.Chunks {
		if c.Status == "failed" {
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("\n%d of %d sessions could not be analyzed; run again to retry.\n",
			failed, len(res.Diagnostics.Chunks))
	}
}
