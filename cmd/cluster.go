package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicsignal/docket-cli/internal/clustering"
	"github.com/civicsignal/docket-cli/internal/dataset"
	"github.com/civicsignal/docket-cli/internal/model"
	"github.com/civicsignal/docket-cli/internal/pipeline"
	"github.com/civicsignal/docket-cli/pkg/embeddings"
)

var (
	clusterDocket string
	clusterK      int
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Annotate lookup entries with cluster ids and 2D coordinates",
	Long:  "Embeds every unique text, clusters the vectors (k chosen by elbow unless --k is given), splits dominant clusters into lettered subclusters, and writes PCA coordinates for plotting.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Embeddings.Key == "" {
			return eris.New("embeddings API key is required (DOCKET_EMBEDDINGS_KEY)")
		}

		paths := docketPaths(clusterDocket)
		table, err := loadTable(paths)
		if err != nil {
			return err
		}

		embOpts := []embeddings.Option{}
		if cfg.Embeddings.BaseURL != "" {
			embOpts = append(embOpts, embeddings.WithBaseURL(cfg.Embeddings.BaseURL))
		}
		if cfg.Embeddings.BatchSize > 0 {
			embOpts = append(embOpts, embeddings.WithBatchSize(cfg.Embeddings.BatchSize))
		}
		embedder := embeddings.NewClient(cfg.Embeddings.Key, cfg.Embeddings.Model, embOpts...)

		k := clusterK
		if k == 0 {
			k = cfg.Cluster.K
		}
		opts := pipeline.ClusterOptions{
			K:                  k,
			MaxK:               cfg.Cluster.MaxK,
			SubclusterMinShare: cfg.Cluster.SubclusterMinShare,
		}

		return recordedRun(ctx, clusterDocket, "cluster", func() (*model.RunResult, error) {
			stats, err := pipeline.AnnotateClusters(ctx, table, embedder, clustering.NewKMeans(), opts)
			if err != nil {
				return nil, err
			}

			if err := dataset.SaveLookupTable(paths.LookupTable(), table); err != nil {
				return nil, err
			}

			zap.L().Info("clustering complete",
				zap.String("docket", clusterDocket),
				zap.Int("entries", stats.Entries),
				zap.Int("k", stats.K),
				zap.Int("subclusters", stats.Subclusters),
			)

			return &model.RunResult{UniqueTexts: len(table)}, nil
		})
	},
}

func init() {
	clusterCmd.Flags().StringVar(&clusterDocket, "docket", "", "docket ID (required)")
	clusterCmd.Flags().IntVar(&clusterK, "k", 0, "cluster count (0 = choose via elbow)")
	_ = clusterCmd.MarkFlagRequired("docket")
	rootCmd.AddCommand(clusterCmd)
}
