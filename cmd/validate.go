package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civicsignal/docket-cli/internal/dataset"
	"github.com/civicsignal/docket-cli/internal/fetcher"
	"github.com/civicsignal/docket-cli/internal/pipeline"
)

var (
	validateDocket string
	validateCSV    string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check consistency across raw records, lookup table, and merged output",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		paths := docketPaths(validateDocket)
		raw, err := loadRaw(paths)
		if err != nil {
			return err
		}
		table, err := loadTable(paths)
		if err != nil {
			return err
		}

		mergedRows, err := dataset.LoadMergedRows(paths.MergedData())
		if err != nil {
			return eris.Wrap(err, "load merged output (run merge first)")
		}

		var csvIDs []string
		if validateCSV != "" {
			csvIDs, err = fetcher.LoadCommentIDs(ctx, validateCSV)
			if err != nil {
				return eris.Wrap(err, "load comment ids")
			}
		}

		result := pipeline.Validate(csvIDs, raw, table, mergedRows)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}

		if !result.Valid {
			return eris.Errorf("validation failed with %d errors", len(result.Errors))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateDocket, "docket", "", "docket ID (required)")
	validateCmd.Flags().StringVar(&validateCSV, "csv", "", "source comment id list for the three-way count check")
	_ = validateCmd.MarkFlagRequired("docket")
	rootCmd.AddCommand(validateCmd)
}
