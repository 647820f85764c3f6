package optimization

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// softmax writes exp(z_i) / sum(exp(z)) into w. Every output is strictly
// positive and the outputs sum to one, so the weights never leave the
// simplex no matter where the solver moves z.
func softmax(w, z []float64) {
	peak := floats.Max(z)
	var sum float64
	for i, v := range z {
		w[i] = math.Exp(v - peak)
		sum += w[i]
	}
	floats.Scale(1/sum, w)
}

// softmaxGrad maps a gradient g taken in weight space to z space:
// dF/dz_j = w_j * (g_j - w.g).
func softmaxGrad(dst, w, g []float64) {
	wg := floats.Dot(w, g)
	for j := range dst {
		dst[j] = w[j] * (g[j] - wg)
	}
}

// uniformWeights returns 1/n for every asset.
func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}
