package clustering

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoBlobs() [][]float64 {
	return [][]float64{
		{0.0, 0.1}, {0.1, 0.0}, {0.05, 0.05}, {-0.1, 0.1},
		{10.0, 10.1}, {10.1, 10.0}, {9.9, 9.95}, {10.05, 10.05},
	}
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	vectors := twoBlobs()
	km := NewKMeans()

	labels, err := km.Cluster(vectors, 2)
	require.NoError(t, err)
	require.Len(t, labels, len(vectors))

	// The first four points share a label, the last four share the other.
	for i := 1; i < 4; i++ {
		assert.Equal(t, labels[0], labels[i])
	}
	for i := 5; i < 8; i++ {
		assert.Equal(t, labels[4], labels[i])
	}
	assert.NotEqual(t, labels[0], labels[4])
}

func TestKMeansDeterministic(t *testing.T) {
	vectors := twoBlobs()

	a, err := NewKMeans().Cluster(vectors, 2)
	require.NoError(t, err)
	b, err := NewKMeans().Cluster(vectors, 2)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestKMeansEdgeCases(t *testing.T) {
	km := NewKMeans()

	labels, err := km.Cluster(nil, 3)
	require.NoError(t, err)
	assert.Nil(t, labels)

	_, err = km.Cluster([][]float64{{1, 2}}, 0)
	assert.Error(t, err)

	// k larger than n is clamped rather than rejected.
	labels, err = km.Cluster([][]float64{{1, 2}, {3, 4}}, 5)
	require.NoError(t, err)
	assert.Len(t, labels, 2)

	_, err = km.Cluster([][]float64{{1, 2}, {3}}, 2)
	assert.Error(t, err)
}

func TestInertia(t *testing.T) {
	vectors := [][]float64{{0, 0}, {2, 0}, {10, 0}, {12, 0}}
	labels := []int{0, 0, 1, 1}

	// Each pair is 1 unit from its centroid, four points total.
	assert.InDelta(t, 4.0, Inertia(vectors, labels), 1e-9)
}

func TestChooseKFindsElbow(t *testing.T) {
	vectors := twoBlobs()
	km := NewKMeans()

	k, err := ChooseK(vectors, 5, km.Cluster)
	require.NoError(t, err)
	assert.Equal(t, 2, k)
}

func TestChooseKTinyInput(t *testing.T) {
	k, err := ChooseK([][]float64{{1}, {2}}, 8, NewKMeans().Cluster)
	require.NoError(t, err)
	assert.Equal(t, 1, k)
}

func TestProject2DOrderingAndSpread(t *testing.T) {
	vectors := twoBlobs()

	coords, err := Project2D(vectors)
	require.NoError(t, err)
	require.Len(t, coords, len(vectors))

	// The dominant component separates the blobs.
	lo, hi := coords[0][0], coords[4][0]
	assert.Greater(t, math.Abs(hi-lo), 5.0)
	for i := 1; i < 4; i++ {
		assert.InDelta(t, lo, coords[i][0], 1.0)
	}
}

func TestProject2DDegenerate(t *testing.T) {
	coords, err := Project2D(nil)
	require.NoError(t, err)
	assert.Nil(t, coords)

	coords, err = Project2D([][]float64{{1, 2, 3}})
	require.NoError(t, err)
	require.Len(t, coords, 1)
	assert.Equal(t, [2]float64{0, 0}, coords[0])

	// One-dimensional input gets a zero second component.
	coords, err = Project2D([][]float64{{0}, {1}, {2}})
	require.NoError(t, err)
	for _, c := range coords {
		assert.Zero(t, c[1])
	}
}
