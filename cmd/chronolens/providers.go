package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chronolens/chronolens/internal/ai"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect and manage AI providers",
}

var providersStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured provider's status and limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		provider, err := ai.NewFactory().Get(cfg.Provider)
		if err != nil {
			return err
		}

		status := provider.Status(ctx)
		caps := provider.Capabilities()

		fmt.Printf("Provider:  %s\n", provider.ID())
		if cfg.Provider.Model != "" {
			fmt.Printf("Model:     %s\n", cfg.Provider.Model)
		}
		fmt.Printf("Status:    %s\n", status)
		fmt.Printf("Input cap: %d tokens\n", caps.MaxInputTokens)

		switch status {
		case ai.StatusNeedsConfiguration:
			fmt.Println("\nSet an API key in the config file or environment.")
		case ai.StatusDownloadable:
			fmt.Println("\nThe model is not present yet. Run: chronolens providers download")
		}
		return nil
	},
}

var providersDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the on-device model",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		provider, err := ai.NewFactory().Get(cfg.Provider)
		if err != nil {
			return err
		}

		dl, ok := provider.(ai.Downloader)
		if !ok {
			return fmt.Errorf("provider %s does not support model downloads", provider.ID())
		}

		last := -1
		err = dl.Download(ctx, func(pct int) {
			if pct != last {
				fmt.Printf("\rDownloading... %3d%%", pct)
				last = pct
			}
		})
		fmt.Println()
		if err != nil {
			return err
		}
		fmt.Println("Model ready.")
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersStatusCmd)
	providersCmd.AddCommand(providersDownloadCmd)
}
