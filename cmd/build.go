package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civicsignal/docket-cli/internal/dataset"
	"github.com/civicsignal/docket-cli/internal/fetcher"
	"github.com/civicsignal/docket-cli/internal/model"
	"github.com/civicsignal/docket-cli/internal/pipeline"
	"github.com/civicsignal/docket-cli/pkg/regulations"
)

var (
	buildDocket   string
	buildIDsFile  string
	buildTruncate int
	buildWorkers  int
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Fetch a docket's comments and build the deduplicated lookup table",
	Long:  "Lists comment ids for a docket (or reads them from a file), fetches each comment with attachments, and writes the raw records, lookup table, and manifest artifacts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		truncate := buildTruncate
		if truncate == 0 {
			truncate = cfg.Analyze.TruncateChars
		}

		reg, err := initRegulations()
		if err != nil {
			return err
		}

		var ids []string
		if buildIDsFile != "" {
			ids, err = fetcher.LoadCommentIDs(ctx, buildIDsFile)
			if err != nil {
				return eris.Wrap(err, "load comment ids")
			}
		} else {
			ids, err = reg.ListDocketCommentIDs(ctx, buildDocket)
			if err != nil {
				return eris.Wrap(err, "list docket comments")
			}
		}
		zap.L().Info("comment ids resolved",
			zap.String("docket", buildDocket),
			zap.Int("count", len(ids)),
		)

		return recordedRun(ctx, buildDocket, "build", func() (*model.RunResult, error) {
			records, fetchErrors, err := fetchRecords(ctx, reg, ids, buildWorkers)
			if err != nil {
				return nil, err
			}

			table := pipeline.BuildLookupTable(records, truncate)

			paths := docketPaths(buildDocket)
			if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
				return nil, eris.Wrap(err, "create data dir")
			}
			if err := dataset.SaveRawRecords(paths.RawData(), records); err != nil {
				return nil, err
			}
			if err := dataset.SaveLookupTable(paths.LookupTable(), table); err != nil {
				return nil, err
			}
			manifest := &dataset.Manifest{
				DocketID:      buildDocket,
				TruncateChars: truncate,
				Model:         cfg.Anthropic.Model,
			}
			if err := dataset.SaveManifest(paths.Manifest(), manifest); err != nil {
				return nil, err
			}

			zap.L().Info("dataset built",
				zap.String("docket", buildDocket),
				zap.Int("records", len(records)),
				zap.Int("unique_texts", len(table)),
				zap.Int("fetch_errors", fetchErrors),
			)

			return &model.RunResult{
				RawRecords:  len(records),
				UniqueTexts: len(table),
				Skipped:     fetchErrors,
			}, nil
		})
	},
}

// fetchRecords downloads comment details through a bounded worker pool.
// Per-comment failures are logged and skipped so one bad record cannot sink
// a multi-hour fetch; the skipped ids stay absent from the raw set and a
// later resume run picks them up.
func fetchRecords(ctx context.Context, client regulations.Client, ids []string, workers int) ([]*model.RawRecord, int, error) {
	if workers <= 0 {
		workers = 4
	}

	cf := fetcher.NewCommentFetcher(client)
	slots := make([]*model.RawRecord, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, id := range ids {
		g.Go(func() error {
			rec, err := cf.GetComment(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("fetch comment failed",
					zap.String("comment_id", id),
					zap.Error(err),
				)
				return nil
			}
			slots[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, eris.Wrap(err, "fetch comments")
	}

	records := make([]*model.RawRecord, 0, len(ids))
	for _, rec := range slots {
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, len(ids) - len(records), nil
}

func init() {
	buildCmd.Flags().StringVar(&buildDocket, "docket", "", "docket ID, e.g. FAA-2026-0001 (required)")
	buildCmd.Flags().StringVar(&buildIDsFile, "ids", "", "read comment ids from a CSV/XLSX/text file instead of listing the docket")
	buildCmd.Flags().IntVar(&buildTruncate, "truncate", 0, "truncate comment texts to this many characters before dedup (default from config)")
	buildCmd.Flags().IntVar(&buildWorkers, "workers", 4, "concurrent comment fetches")
	_ = buildCmd.MarkFlagRequired("docket")
	rootCmd.AddCommand(buildCmd)
}
