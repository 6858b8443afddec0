package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicsignal/docket-cli/internal/dataset"
	"github.com/civicsignal/docket-cli/internal/fetcher"
	"github.com/civicsignal/docket-cli/internal/model"
	"github.com/civicsignal/docket-cli/internal/pipeline"
)

var (
	mergeDocket  string
	mergeCSV     string
	mergePublish bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Join analysis back onto every raw comment and validate the output",
	Long:  "Produces one output row per fetched comment by joining each record's metadata with its lookup entry's analysis, then runs the consistency check. Validation errors abort before anything is written.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		paths := docketPaths(mergeDocket)
		raw, err := loadRaw(paths)
		if err != nil {
			return err
		}
		table, err := loadTable(paths)
		if err != nil {
			return err
		}

		var csvIDs []string
		if mergeCSV != "" {
			csvIDs, err = fetcher.LoadCommentIDs(ctx, mergeCSV)
			if err != nil {
				return eris.Wrap(err, "load comment ids")
			}
		}

		return recordedRun(ctx, mergeDocket, "merge", func() (*model.RunResult, error) {
			merged, err := pipeline.MergeOutput(raw, table)
			if err != nil {
				return nil, err
			}

			result := pipeline.Validate(csvIDs, raw, table, merged)
			for _, w := range result.Warnings {
				zap.L().Warn("validation warning", zap.String("detail", w))
			}
			if !result.Valid {
				for _, e := range result.Errors {
					zap.L().Error("validation error", zap.String("detail", e))
				}
				return nil, eris.Errorf("merge output failed validation with %d errors", len(result.Errors))
			}

			if err := dataset.SaveMergedRows(paths.MergedData(), merged); err != nil {
				return nil, err
			}

			if mergePublish {
				st, err := initStore(ctx)
				if err != nil {
					return nil, err
				}
				defer st.Close() //nolint:errcheck
				if err := st.ReplaceMergedRows(ctx, mergeDocket, merged); err != nil {
					return nil, err
				}
				zap.L().Info("merged rows published", zap.Int("rows", len(merged)))
			}

			analyzed, failed := 0, 0
			for _, e := range table {
				switch {
				case e.Failed():
					failed++
				case e.Analyzed():
					analyzed++
				}
			}

			zap.L().Info("merge complete",
				zap.String("docket", mergeDocket),
				zap.Int("rows", len(merged)),
				zap.Int("warnings", len(result.Warnings)),
			)

			return &model.RunResult{
				RawRecords:  len(raw),
				UniqueTexts: len(table),
				Analyzed:    analyzed,
				Failed:      failed,
			}, nil
		})
	},
}

func init() {
	mergeCmd.Flags().StringVar(&mergeDocket, "docket", "", "docket ID (required)")
	mergeCmd.Flags().StringVar(&mergeCSV, "csv", "", "source comment id list for the three-way count check")
	mergeCmd.Flags().BoolVar(&mergePublish, "publish", false, "also replace the docket's rows in the store")
	_ = mergeCmd.MarkFlagRequired("docket")
	rootCmd.AddCommand(mergeCmd)
}
