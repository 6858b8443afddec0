package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicsignal/docket-cli/internal/dataset"
	"github.com/civicsignal/docket-cli/internal/model"
	"github.com/civicsignal/docket-cli/internal/pipeline"
	anthropicpkg "github.com/civicsignal/docket-cli/pkg/anthropic"
)

var (
	analyzeDocket      string
	analyzeBatchSize   int
	analyzeTimeout     time.Duration
	analyzeNoParallel  bool
	analyzeRetryFailed bool
	analyzeNoResume    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify stance and themes for every unanalyzed unique text",
	Long:  "Runs the batch classification scheduler over the lookup table. Already-analyzed entries are skipped, so interrupted runs resume where they left off; a mid-run checkpoint is picked up automatically.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic API key is required (DOCKET_ANTHROPIC_KEY)")
		}

		paths := docketPaths(analyzeDocket)

		// A leftover checkpoint means the previous run died mid-batch; it
		// holds strictly more analysis than the lookup table artifact.
		var table []*model.LookupEntry
		var err error
		if !analyzeNoResume && dataset.Exists(paths.Checkpoint()) {
			zap.L().Info("resuming from checkpoint", zap.String("path", paths.Checkpoint()))
			table, err = dataset.LoadLookupTable(paths.Checkpoint())
		} else {
			table, err = loadTable(paths)
		}
		if err != nil {
			return err
		}

		batchSize := analyzeBatchSize
		if batchSize <= 0 {
			batchSize = cfg.Analyze.BatchSize
		}
		timeout := analyzeTimeout
		if timeout <= 0 {
			timeout = cfg.Analyze.Timeout()
		}

		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		classifier := pipeline.NewStanceClassifier(client, cfg.Anthropic, cfg.Analyze.Themes)

		opts := pipeline.AnalyzeOptions{
			BatchSize:       batchSize,
			Parallel:        !analyzeNoParallel,
			Timeout:         timeout,
			MaxRetries:      cfg.Analyze.MaxRetries,
			InitialBackoff:  cfg.Analyze.Backoff(),
			CheckpointEvery: cfg.Analyze.CheckpointEvery,
			CheckpointPath:  paths.Checkpoint(),
			RetryFailed:     analyzeRetryFailed,
		}

		return recordedRun(ctx, analyzeDocket, "analyze", func() (*model.RunResult, error) {
			stats, err := pipeline.AnalyzeBatch(ctx, table, classifier, opts)

			// Persist whatever was classified, even on error; the entries
			// already carry their results and the next run skips them.
			if saveErr := dataset.SaveLookupTable(paths.LookupTable(), table); saveErr != nil {
				if err == nil {
					err = saveErr
				} else {
					zap.L().Error("save lookup table failed", zap.Error(saveErr))
				}
			}

			classifier.Usage().LogCost(cfg.Anthropic.Model, "analyze")

			if err != nil {
				return nil, err
			}

			if rmErr := dataset.RemoveCheckpoint(paths.Checkpoint()); rmErr != nil {
				zap.L().Warn("remove checkpoint failed", zap.Error(rmErr))
			}

			zap.L().Info("analysis complete",
				zap.String("docket", analyzeDocket),
				zap.Int("already_analyzed", stats.AlreadyAnalyzed),
				zap.Int("newly_analyzed", stats.NewlyAnalyzed),
				zap.Int("failed", stats.Failed),
			)

			return &model.RunResult{
				UniqueTexts: len(table),
				Analyzed:    stats.NewlyAnalyzed,
				Skipped:     stats.AlreadyAnalyzed,
				Failed:      stats.Failed,
			}, nil
		})
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDocket, "docket", "", "docket ID (required)")
	analyzeCmd.Flags().IntVar(&analyzeBatchSize, "batch-size", 0, "entries per batch and max concurrent calls (default from config)")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0, "per-call classification timeout (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeNoParallel, "no-parallel", false, "classify one entry at a time")
	analyzeCmd.Flags().BoolVar(&analyzeRetryFailed, "retry-failed", false, "clear sentinel-failed entries and reclassify them")
	analyzeCmd.Flags().BoolVar(&analyzeNoResume, "no-resume", false, "ignore a leftover mid-run checkpoint")
	_ = analyzeCmd.MarkFlagRequired("docket")
	rootCmd.AddCommand(analyzeCmd)
}
