package formulas

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ShapiroWilkMaxN is the largest sample size the Royston approximation is
// calibrated for. Larger samples are still tested but the p-value is only
// indicative.
const ShapiroWilkMaxN = 5000

var (
	// ErrTooFewObservations is returned for samples with fewer than 3 points.
	ErrTooFewObservations = errors.New("shapiro-wilk requires at least 3 observations")
	// ErrZeroRange is returned when every observation is identical.
	ErrZeroRange = errors.New("shapiro-wilk undefined for constant data")
)

// Royston (1995) polynomial coefficients.
var (
	swC1 = []float64{0.0, 0.221157, -0.147981, -2.071190, 4.434685, -2.706056}
	swC2 = []float64{0.0, 0.042981, -0.293762, -1.752461, 5.682633, -3.582633}
	swC3 = []float64{0.5440, -0.39978, 0.025054, -6.714e-4}
	swC4 = []float64{1.3822, -0.77857, 0.062767, -0.0020322}
	swC5 = []float64{-1.5861, -0.31082, -0.083751, 0.0038915}
	swC6 = []float64{-0.4803, -0.082676, 0.0030302}
	swG  = []float64{-2.273, 0.459}
)

// ShapiroWilk runs the Shapiro-Wilk normality test and returns the W
// statistic and its p-value.
func ShapiroWilk(data []float64) (w float64, pValue float64, err error) {
	n := len(data)
	if n < 3 {
		return 0, 0, ErrTooFewObservations
	}

	sorted := make([]float64, n)
	copy(sorted, data)
	sort.Float64s(sorted)

	if sorted[n-1]-sorted[0] < 1e-19 {
		return 0, 0, ErrZeroRange
	}

	coeffs := shapiroWilkCoefficients(n)
	mean := stat.Mean(sorted, nil)

	var num, ss float64
	for i, v := range sorted {
		num += coeffs[i] * v
		d := v - mean
		ss += d * d
	}

	w = num * num / ss
	if w > 1 {
		w = 1
	}

	return w, shapiroWilkPValue(w, n), nil
}

// shapiroWilkCoefficients returns the antisymmetric weight vector a
// (sum of squares 1) applied to the order statistics.
func shapiroWilkCoefficients(n int) []float64 {
	half := n / 2
	a := make([]float64, half)

	if n == 3 {
		a[0] = math.Sqrt(0.5)
	} else {
		an25 := float64(n) + 0.25
		m := make([]float64, half)
		var summ2 float64
		for i := range m {
			m[i] = distuv.UnitNormal.Quantile((float64(i+1) - 0.375) / an25)
			summ2 += m[i] * m[i]
		}
		summ2 *= 2
		ssumm2 := math.Sqrt(summ2)
		rsn := 1 / math.Sqrt(float64(n))

		a1 := poly(swC1, rsn) - m[0]/ssumm2

		start := 1
		var fac float64
		if n > 5 {
			start = 2
			a2 := -m[1]/ssumm2 + poly(swC2, rsn)
			fac = math.Sqrt((summ2 - 2*m[0]*m[0] - 2*m[1]*m[1]) / (1 - 2*a1*a1 - 2*a2*a2))
			a[1] = a2
		} else {
			fac = math.Sqrt((summ2 - 2*m[0]*m[0]) / (1 - 2*a1*a1))
		}
		a[0] = a1

		for i := start; i < half; i++ {
			a[i] = -m[i] / fac
		}
	}

	full := make([]float64, n)
	for i := 0; i < half; i++ {
		full[i] = -a[i]
		full[n-1-i] = a[i]
	}
	return full
}

func shapiroWilkPValue(w float64, n int) float64 {
	if n == 3 {
		const sixOverPi = 6 / math.Pi
		p := sixOverPi * (math.Asin(math.Sqrt(w)) - math.Pi/3)
		return math.Min(math.Max(p, 0), 1)
	}

	w1 := 1 - w
	if w1 <= 0 {
		return 1
	}

	y := math.Log(w1)
	an := float64(n)

	var mu, sigma float64
	if n <= 11 {
		gamma := poly(swG, an)
		if y >= gamma {
			return 1e-99
		}
		y = -math.Log(gamma - y)
		mu = poly(swC3, an)
		sigma = math.Exp(poly(swC4, an))
	} else {
		xx := math.Log(an)
		mu = poly(swC5, xx)
		sigma = math.Exp(poly(swC6, xx))
	}

	return distuv.Normal{Mu: mu, Sigma: sigma}.Survival(y)
}

// poly evaluates c[0] + c[1]x + c[2]x^2 + ...
func poly(c []float64, x float64) float64 {
	result := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		result = result*x + c[i]
	}
	return result
}
