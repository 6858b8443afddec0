package clustering

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Project2D reduces each vector to its first two principal components.
// Output ordering matches the input ordering. Inputs with fewer than two
// usable dimensions are padded with zeros.
func Project2D(vectors [][]float64) ([][2]float64, error) {
	n := len(vectors)
	if n == 0 {
		return nil, nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, eris.Errorf("clustering: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	out := make([][2]float64, n)
	if n == 1 || dim == 0 {
		return out, nil
	}

	// Center the columns before factorizing.
	means := make([]float64, dim)
	for _, v := range vectors {
		for d, x := range v {
			means[d] += x
		}
	}
	for d := range means {
		means[d] /= float64(n)
	}

	data := make([]float64, 0, n*dim)
	for _, v := range vectors {
		for d, x := range v {
			data = append(data, x-means[d])
		}
	}
	m := mat.NewDense(n, dim, data)

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, eris.New("clustering: svd factorization failed")
	}

	var v mat.Dense
	svd.VTo(&v)
	_, comps := v.Dims()

	for i, vec := range vectors {
		for c := 0; c < 2 && c < comps; c++ {
			sum := 0.0
			for d := 0; d < dim; d++ {
				sum += (vec[d] - means[d]) * v.At(d, c)
			}
			out[i][c] = sum
		}
	}
	return out, nil
}
