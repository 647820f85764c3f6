package formulas

import (
	"math"
	"sort"
)

// Percentile returns the p-th percentile (0..100) of data using linear
// interpolation between order statistics at rank (n-1)*p/100.
// Returns NaN for empty input.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}

	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// CalculateVaR returns the historical Value at Risk at the given confidence
// level (e.g. 0.95): the (1-confidence) percentile of the distribution.
func CalculateVaR(data []float64, confidence float64) float64 {
	return Percentile(data, (1-confidence)*100)
}

// CalculateCVaR returns Conditional Value at Risk: the mean of all
// observations at or below the historical VaR. Also returns the VaR it
// used as the cutoff. Both are NaN for empty input.
func CalculateCVaR(data []float64, confidence float64) (cvar float64, valueAtRisk float64) {
	if len(data) == 0 {
		return math.NaN(), math.NaN()
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	valueAtRisk = percentileSorted(sorted, (1-confidence)*100)

	// sorted[0] <= valueAtRisk always holds, so the tail is never empty
	var sum float64
	var count int
	for _, v := range sorted {
		if v > valueAtRisk {
			break
		}
		sum += v
		count++
	}

	return sum / float64(count), valueAtRisk
}
