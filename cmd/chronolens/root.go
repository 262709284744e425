package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chronolens/chronolens/internal/config"
	"github.com/chronolens/chronolens/internal/history"
	"github.com/chronolens/chronolens/internal/logging"
)

var (
	cfgPath string
	dataDir string
	quiet   bool

	cfg *config.Config

	// History source flags, shared by analyze and watch
	inputPath  string
	chromePath string
)

var rootCmd = &cobra.Command{
	Use:           "chronolens",
	Short:         "Browsing-history analysis with an evolving user profile",
	Long:          "chronolens turns a browsing-history export into session-level insights:\nwho you are, what you are working on, and which repetitive workflows\ncould be automated. Profiles accumulate across runs in a local database.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env next to the binary may carry API keys
		_ = godotenv.Load()

		if quiet {
			logging.Disable()
		}

		if cfgPath == "" {
			cfgPath = filepath.Join(config.DefaultDataDir(), "config.yaml")
		}
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: ~/.chronolens/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the data directory")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress log output")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(watchCmd)
}

// addSourceFlags registers the history source flags on a command
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "History export file (JSON array of items)")
	cmd.Flags().StringVar(&chromePath, "chrome", "", "Path to a copy of a Chrome History database")
}

// loadItems reads the configured history source, keeping only items visited
// after since (zero means everything).
func loadItems(since time.Time) ([]history.Item, error) {
	switch {
	case chromePath != "":
		return history.LoadChrome(chromePath, since)
	case inputPath != "":
		items, err := history.LoadJSON(inputPath)
		if err != nil {
			return nil, err
		}
		return filterSince(items, since), nil
	default:
		return nil, fmt.Errorf("no history source: pass --input or --chrome")
	}
}

// filterSince drops items visited at or before since. Items without a
// timestamp always pass; there is no way to tell how old they are.
func filterSince(items []history.Item, since time.Time) []history.Item {
	if since.IsZero() {
		return items
	}
	out := make([]history.Item, 0, len(items))
	for _, it := range items {
		if !it.HasTimestamp() || it.LastVisit.After(since) {
			out = append(out, it)
		}
	}
	return out
}

// signalContext returns a context cancelled by SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
