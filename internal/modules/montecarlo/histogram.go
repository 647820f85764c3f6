package montecarlo

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins is the bin count used for terminal-value histograms.
const DefaultBins = 50

// Histogram is an equal-width binning of a sample.
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []float64 `json:"counts"`
}

// NewHistogram bins values into the given number of equal-width bins
// spanning [min, max]. A constant sample yields a single bin.
func NewHistogram(values []float64, bins int) Histogram {
	if len(values) == 0 || bins < 1 {
		return Histogram{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi == lo {
		return Histogram{
			Edges:  []float64{lo, lo},
			Counts: []float64{float64(len(sorted))},
		}
	}

	edges := make([]float64, bins+1)
	floats.Span(edges, lo, hi)
	// stat.Histogram bins are half-open; nudge the top edge so max is counted.
	edges[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, edges, sorted, nil)
	return Histogram{Edges: edges, Counts: counts}
}
