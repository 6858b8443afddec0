package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/docket-cli/internal/clustering"
	"github.com/civicsignal/docket-cli/internal/model"
)

// stubEmbedder maps each text to a fixed vector, preserving input order.
type stubEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = s.vectors[text]
	}
	return out, nil
}

func clusterTable() ([]*model.LookupEntry, *stubEmbedder) {
	table := []*model.LookupEntry{
		{LookupID: "lookup_000001", TruncatedText: "oppose a"},
		{LookupID: "lookup_000002", TruncatedText: "oppose b"},
		{LookupID: "lookup_000003", TruncatedText: "support a"},
		{LookupID: "lookup_000004", TruncatedText: "support b"},
	}
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"oppose a":  {0.0, 0.0},
		"oppose b":  {0.1, 0.1},
		"support a": {10.0, 10.0},
		"support b": {10.1, 9.9},
	}}
	return table, embedder
}

func TestAnnotateClustersAssignsIDsAndCoordinates(t *testing.T) {
	table, embedder := clusterTable()

	stats, err := AnnotateClusters(context.Background(), table, embedder, clustering.NewKMeans(), ClusterOptions{K: 2})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Entries)
	assert.Equal(t, 2, stats.K)
	for _, e := range table {
		require.NotNil(t, e.ClusterID, e.LookupID)
		require.NotNil(t, e.PCAX)
		require.NotNil(t, e.PCAY)
	}

	// The two oppose texts share a cluster, the two support texts the other.
	assert.Equal(t, *table[0].ClusterID, *table[1].ClusterID)
	assert.Equal(t, *table[2].ClusterID, *table[3].ClusterID)
	assert.NotEqual(t, *table[0].ClusterID, *table[2].ClusterID)
}

func TestAnnotateClustersChoosesKByElbow(t *testing.T) {
	table, embedder := clusterTable()

	stats, err := AnnotateClusters(context.Background(), table, embedder, clustering.NewKMeans(), ClusterOptions{MaxK: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.K)
}

func TestAnnotateClustersSubclustersDominantCluster(t *testing.T) {
	// One cluster holds 6 of 8 entries in two distinct sub-blobs; with a
	// 35% share threshold it splits into lettered children.
	table := make([]*model.LookupEntry, 0, 8)
	vectors := map[string][]float64{}
	add := func(text string, v []float64) {
		table = append(table, &model.LookupEntry{
			LookupID:      model.FormatLookupID(len(table) + 1),
			TruncatedText: text,
		})
		vectors[text] = v
	}

	add("a1", []float64{0.0, 0.0})
	add("a2", []float64{0.1, 0.0})
	add("a3", []float64{0.0, 0.1})
	add("a4", []float64{2.0, 2.0})
	add("a5", []float64{2.1, 2.0})
	add("a6", []float64{2.0, 2.1})
	add("b1", []float64{50.0, 50.0})
	add("b2", []float64{50.1, 50.1})

	embedder := &stubEmbedder{vectors: vectors}
	stats, err := AnnotateClusters(context.Background(), table, embedder, clustering.NewKMeans(),
		ClusterOptions{K: 2, SubclusterMinShare: 0.35})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Subclusters)

	ids := map[string]int{}
	for _, e := range table {
		ids[*e.ClusterID]++
	}

	// The large cluster's members carry lettered ids, the small one a bare
	// numeric id.
	lettered := 0
	for id, n := range ids {
		last := id[len(id)-1]
		if last >= 'a' && last <= 'z' {
			lettered += n
		}
	}
	assert.Equal(t, 6, lettered)
	assert.Len(t, ids, 3)
}

func TestAnnotateClustersEmbedderError(t *testing.T) {
	table, _ := clusterTable()
	embedder := &stubEmbedder{err: eris.New("embeddings service unavailable")}

	_, err := AnnotateClusters(context.Background(), table, embedder, clustering.NewKMeans(), ClusterOptions{K: 2})
	require.Error(t, err)
	for _, e := range table {
		assert.Nil(t, e.ClusterID)
	}
}

func TestAnnotateClustersEmptyTable(t *testing.T) {
	stats, err := AnnotateClusters(context.Background(), nil, &stubEmbedder{}, clustering.NewKMeans(), ClusterOptions{})
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
}
