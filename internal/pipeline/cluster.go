package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsignal/docket-cli/internal/clustering"
	"github.com/civicsignal/docket-cli/internal/model"
)

// Embedder produces one embedding vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Clusterer assigns a label in [0, k) to each vector, in input order.
type Clusterer interface {
	Cluster(vectors [][]float64, k int) ([]int, error)
}

// ClusterOptions controls cluster annotation.
type ClusterOptions struct {
	// K fixes the cluster count. Zero means choose by elbow up to MaxK.
	K    int
	MaxK int
	// SubclusterMinShare is the fraction of all entries a single cluster
	// must hold before it is split into lettered subclusters.
	SubclusterMinShare float64
}

// ClusterStats summarizes one annotation pass.
type ClusterStats struct {
	Entries     int
	K           int
	Subclusters int
}

const minSubclusterSize = 4

// AnnotateClusters embeds each entry's truncated text, groups the entries,
// and writes cluster ids and 2D projection coordinates back onto the table.
// Labels, coordinates, and entries correspond by position throughout.
func AnnotateClusters(ctx context.Context, table []*model.LookupEntry, embedder Embedder, clusterer Clusterer, opts ClusterOptions) (*ClusterStats, error) {
	if len(table) == 0 {
		return &ClusterStats{}, nil
	}

	texts := make([]string, len(table))
	for i, e := range table {
		texts[i] = e.TruncatedText
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: embed lookup texts")
	}
	if len(vectors) != len(table) {
		return nil, eris.Errorf("cluster: got %d embeddings for %d entries", len(vectors), len(table))
	}

	k := opts.K
	if k <= 0 {
		maxK := opts.MaxK
		if maxK <= 0 {
			maxK = 12
		}
		k, err = clustering.ChooseK(vectors, maxK, clusterer.Cluster)
		if err != nil {
			return nil, eris.Wrap(err, "cluster: choose k")
		}
		zap.L().Info("chose cluster count by elbow", zap.Int("k", k))
	}

	labels, err := clusterer.Cluster(vectors, k)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: group entries")
	}
	if len(labels) != len(table) {
		return nil, eris.Errorf("cluster: got %d labels for %d entries", len(labels), len(table))
	}

	ids := make([]string, len(table))
	for i, l := range labels {
		ids[i] = fmt.Sprintf("%d", l)
	}

	subclusters, err := splitLargeClusters(vectors, labels, ids, clusterer, opts.SubclusterMinShare)
	if err != nil {
		return nil, err
	}

	coords, err := clustering.Project2D(vectors)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: project coordinates")
	}

	for i, e := range table {
		id := ids[i]
		x, y := coords[i][0], coords[i][1]
		e.ClusterID = &id
		e.PCAX = &x
		e.PCAY = &y
	}

	stats := &ClusterStats{Entries: len(table), K: k, Subclusters: subclusters}
	zap.L().Info("annotated clusters",
		zap.Int("entries", stats.Entries),
		zap.Int("k", stats.K),
		zap.Int("subclusters", stats.Subclusters))
	return stats, nil
}

// splitLargeClusters re-clusters any cluster holding more than minShare of
// all entries into two lettered children, e.g. "3" becomes "3a" and "3b".
// It rewrites ids in place and returns the number of subclusters created.
func splitLargeClusters(vectors [][]float64, labels []int, ids []string, clusterer Clusterer, minShare float64) (int, error) {
	if minShare <= 0 || minShare >= 1 {
		return 0, nil
	}

	counts := map[int][]int{}
	for i, l := range labels {
		counts[l] = append(counts[l], i)
	}

	created := 0
	threshold := minShare * float64(len(labels))
	for label, members := range counts {
		if float64(len(members)) <= threshold || len(members) < minSubclusterSize {
			continue
		}

		sub := make([][]float64, len(members))
		for j, idx := range members {
			sub[j] = vectors[idx]
		}
		subLabels, err := clusterer.Cluster(sub, 2)
		if err != nil {
			return 0, eris.Wrapf(err, "cluster: split cluster %d", label)
		}

		for j, idx := range members {
			ids[idx] = fmt.Sprintf("%d%c", label, 'a'+rune(subLabels[j]))
		}
		created += 2
	}
	return created, nil
}
