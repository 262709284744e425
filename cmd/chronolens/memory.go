package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chronolens/chronolens/internal/memory"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage the stored profile",
}

// withStore opens the profile database for a subcommand
func withStore(fn func(store *memory.Store) error) error {
	store, err := memory.OpenStore(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

var memoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *memory.Store) error {
			prof, err := store.Load()
			if err != nil {
				return err
			}
			if prof == nil {
				fmt.Println("No profile stored yet. Run: chronolens analyze")
				return nil
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(prof)
		})
	},
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the stored profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *memory.Store) error {
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Println("Profile cleared.")
			return nil
		})
	},
}

var memoryClearPatternsCmd = &cobra.Command{
	Use:   "clear-patterns",
	Short: "Remove detected workflow patterns, keeping the rest of the profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *memory.Store) error {
			if err := store.ClearPatterns(); err != nil {
				return err
			}
			fmt.Println("Patterns cleared.")
			return nil
		})
	},
}

func init() {
	memoryCmd.AddCommand(memoryShowCmd)
	memoryCmd.AddCommand(memoryClearCmd)
	memoryCmd.AddCommand(memoryClearPatternsCmd)
}
