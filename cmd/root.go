package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicsignal/docket-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "docket-cli",
	Short: "Batch analysis pipeline for federal rulemaking comments",
	Long:  "Fetches public comments from regulations.gov dockets, deduplicates them into a lookup table, classifies stance and themes via Claude, annotates clusters, and merges analysis back onto every comment.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
