// Package clustering holds the delegated math behind the cluster annotator:
// k-means grouping, the elbow heuristic for choosing k, and the 2D PCA
// projection used for plotting.
package clustering

import (
	"math"
	"math/rand/v2"

	"github.com/rotisserie/eris"
)

// KMeans groups vectors with Lloyd's algorithm and k-means++ seeding.
// Runs are deterministic for a given Seed.
type KMeans struct {
	MaxIterations int
	Seed          uint64
}

// NewKMeans returns a KMeans with sensible defaults.
func NewKMeans() *KMeans {
	return &KMeans{MaxIterations: 100, Seed: 1}
}

// Cluster assigns each vector a label in [0, k). The label slice index
// ordering matches the input vector ordering exactly.
func (km *KMeans) Cluster(vectors [][]float64, k int) ([]int, error) {
	n := len(vectors)
	if n == 0 {
		return nil, nil
	}
	if k <= 0 {
		return nil, eris.Errorf("clustering: k must be positive, got %d", k)
	}
	if k > n {
		k = n
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, eris.Errorf("clustering: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	maxIter := km.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}

	rng := rand.New(rand.NewPCG(km.Seed, km.Seed))
	centroids := seedPlusPlus(vectors, k, rng)
	labels := make([]int, n)

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearestCentroid(v, centroids)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// Recompute centroids; an emptied cluster keeps its old position.
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := labels[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += x
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := range sums[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	return labels, nil
}

// seedPlusPlus picks initial centroids with the k-means++ scheme: each new
// centroid is drawn with probability proportional to squared distance from
// the nearest existing one.
func seedPlusPlus(vectors [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(vectors)
	centroids := make([][]float64, 0, k)

	first := vectors[rng.IntN(n)]
	centroids = append(centroids, append([]float64(nil), first...))

	dists := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, v := range vectors {
			d := math.Inf(1)
			for _, c := range centroids {
				if dd := sqDist(v, c); dd < d {
					d = dd
				}
			}
			dists[i] = d
			total += d
		}

		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, append([]float64(nil), vectors[rng.IntN(n)]...))
			continue
		}

		target := rng.Float64() * total
		acc := 0.0
		pick := n - 1
		for i, d := range dists {
			acc += d
			if acc >= target {
				pick = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), vectors[pick]...))
	}

	return centroids
}

func nearestCentroid(v []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, cent := range centroids {
		if d := sqDist(v, cent); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Inertia is the within-cluster sum of squared distances to the label's
// centroid, the quantity the elbow heuristic minimizes.
func Inertia(vectors [][]float64, labels []int) float64 {
	if len(vectors) == 0 || len(vectors) != len(labels) {
		return 0
	}
	dim := len(vectors[0])

	k := 0
	for _, l := range labels {
		if l+1 > k {
			k = l + 1
		}
	}

	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, v := range vectors {
		c := labels[i]
		counts[c]++
		for d, x := range v {
			sums[c][d] += x
		}
	}
	centroids := make([][]float64, k)
	for c := range centroids {
		centroids[c] = make([]float64, dim)
		if counts[c] == 0 {
			continue
		}
		for d := range centroids[c] {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}

	total := 0.0
	for i, v := range vectors {
		total += sqDist(v, centroids[labels[i]])
	}
	return total
}

// ChooseK picks a cluster count in [2, maxK] by the elbow heuristic:
// the k whose inertia point lies farthest from the chord between the
// smallest and largest candidate k.
func ChooseK(vectors [][]float64, maxK int, cluster func(vectors [][]float64, k int) ([]int, error)) (int, error) {
	n := len(vectors)
	if n < 3 {
		return 1, nil
	}
	if maxK < 2 {
		maxK = 2
	}
	if maxK > n-1 {
		maxK = n - 1
	}

	ks := make([]int, 0, maxK-1)
	inertias := make([]float64, 0, maxK-1)
	for k := 2; k <= maxK; k++ {
		labels, err := cluster(vectors, k)
		if err != nil {
			return 0, eris.Wrapf(err, "clustering: elbow probe k=%d", k)
		}
		ks = append(ks, k)
		inertias = append(inertias, Inertia(vectors, labels))
	}
	if len(ks) == 1 {
		return ks[0], nil
	}

	// Distance from each point to the line through the endpoints.
	x1, y1 := float64(ks[0]), inertias[0]
	x2, y2 := float64(ks[len(ks)-1]), inertias[len(inertias)-1]
	denom := math.Hypot(x2-x1, y2-y1)
	if denom == 0 {
		return ks[0], nil
	}

	bestK := ks[0]
	bestDist := -1.0
	for i := range ks {
		x0, y0 := float64(ks[i]), inertias[i]
		dist := math.Abs((y2-y1)*x0-(x2-x1)*y0+x2*y1-y2*x1) / denom
		if dist > bestDist {
			bestDist = dist
			bestK = ks[i]
		}
	}
	return bestK, nil
}
