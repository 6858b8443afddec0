package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/civicsignal/docket-cli/internal/pipeline"
)

var (
	summaryDocket string
	summaryJSON   bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print stance, theme, and cluster breakdowns for a docket",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := docketPaths(summaryDocket)
		table, err := loadTable(paths)
		if err != nil {
			return err
		}

		s := pipeline.Summarize(table)

		if summaryJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}

		fmt.Print(s.Render())
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringVar(&summaryDocket, "docket", "", "docket ID (required)")
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "emit JSON instead of the plain-text report")
	_ = summaryCmd.MarkFlagRequired("docket")
	rootCmd.AddCommand(summaryCmd)
}
