package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	data := []float64{5, 1, 4, 2, 3}

	tests := []struct {
		name     string
		p        float64
		expected float64
	}{
		{name: "fifth percentile interpolates", p: 5, expected: 1.2},
		{name: "median", p: 50, expected: 3},
		{name: "minimum", p: 0, expected: 1},
		{name: "maximum", p: 100, expected: 5},
		{name: "quartile", p: 25, expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Percentile(data, tt.p), 1e-12)
		})
	}

	assert.True(t, math.IsNaN(Percentile(nil, 5)))
}

func TestPercentile_DoesNotMutateInput(t *testing.T) {
	data := []float64{3, 1, 2}
	Percentile(data, 50)
	assert.Equal(t, []float64{3, 1, 2}, data)
}

func TestCalculateCVaR(t *testing.T) {
	data := make([]float64, 100)
	for i := range data {
		data[i] = float64(i + 1)
	}

	cvar, valueAtRisk := CalculateCVaR(data, 0.95)

	assert.InDelta(t, 5.95, valueAtRisk, 1e-12)
	assert.InDelta(t, 3.0, cvar, 1e-12)
	assert.InDelta(t, valueAtRisk, CalculateVaR(data, 0.95), 1e-12)
}

func TestCalculateCVaR_TailIsAtLeastAsExtremeAsCutoff(t *testing.T) {
	samples := [][]float64{
		{0.01, -0.02, 0.03, -0.05, 0.00, 0.02},
		{-0.1, -0.1, -0.1, 0.2},
		{0.5},
		{0.03, 0.01},
	}

	for _, s := range samples {
		cvar, valueAtRisk := CalculateCVaR(s, 0.95)
		assert.LessOrEqual(t, cvar, valueAtRisk)
	}
}

func TestCalculateCVaR_Empty(t *testing.T) {
	cvar, valueAtRisk := CalculateCVaR(nil, 0.95)
	assert.True(t, math.IsNaN(cvar))
	assert.True(t, math.IsNaN(valueAtRisk))
}
