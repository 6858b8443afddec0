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
	resumeDocket   string
	resumeCSV      string
	resumeTruncate int
	resumeLimit    int
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Fold newly posted comments into an existing dataset",
	Long:  "Computes the id delta between a fresh comment listing and the raw set, fetches only the new comments, and merges them into the lookup table without disturbing existing analysis.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		paths := docketPaths(resumeDocket)
		raw, err := loadRaw(paths)
		if err != nil {
			return err
		}
		table, err := loadTable(paths)
		if err != nil {
			return err
		}
		manifest, err := dataset.LoadManifest(paths.Manifest())
		if err != nil {
			return err
		}

		reg, err := initRegulations()
		if err != nil {
			return err
		}

		var csvIDs []string
		if resumeCSV != "" {
			csvIDs, err = fetcher.LoadCommentIDs(ctx, resumeCSV)
			if err != nil {
				return eris.Wrap(err, "load comment ids")
			}
		} else {
			csvIDs, err = reg.ListDocketCommentIDs(ctx, resumeDocket)
			if err != nil {
				return eris.Wrap(err, "list docket comments")
			}
		}

		truncate := resumeTruncate
		if truncate == 0 && manifest != nil {
			truncate = manifest.TruncateChars
		}

		cf := fetcher.NewCommentFetcher(reg)
		opts := pipeline.ResumeOptions{
			TruncateChars: truncate,
			Limit:         resumeLimit,
		}

		return recordedRun(ctx, resumeDocket, "resume", func() (*model.RunResult, error) {
			newRaw, newTable, stats, err := pipeline.Resume(ctx, csvIDs, raw, table, manifest, cf, opts)
			if err != nil {
				return nil, err
			}

			if err := dataset.SaveRawRecords(paths.RawData(), newRaw); err != nil {
				return nil, err
			}
			if err := dataset.SaveLookupTable(paths.LookupTable(), newTable); err != nil {
				return nil, err
			}
			if manifest != nil {
				if err := dataset.SaveManifest(paths.Manifest(), manifest); err != nil {
					return nil, err
				}
			}

			zap.L().Info("resume complete",
				zap.String("docket", resumeDocket),
				zap.Int("new_ids", stats.NewIDs),
				zap.Int("fetched", stats.Fetched),
				zap.Int("fetch_errors", stats.FetchErrors),
				zap.Int("merged_into_existing", stats.MergedIntoExisting),
				zap.Int("new_entries", stats.NewEntries),
			)

			return &model.RunResult{
				RawRecords:  len(newRaw),
				UniqueTexts: len(newTable),
				Analyzed:    0,
				Skipped:     stats.FetchErrors,
			}, nil
		})
	},
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDocket, "docket", "", "docket ID (required)")
	resumeCmd.Flags().StringVar(&resumeCSV, "csv", "", "read the fresh comment id list from a file instead of listing the docket")
	resumeCmd.Flags().IntVar(&resumeTruncate, "truncate", 0, "truncation limit the dataset was built with (default from manifest)")
	resumeCmd.Flags().IntVar(&resumeLimit, "limit", 0, "cap on new comments fetched this run (0 = all)")
	_ = resumeCmd.MarkFlagRequired("docket")
	rootCmd.AddCommand(resumeCmd)
}
