package metrics

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestCompute_ShortSeriesAllUndefined(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		name    string
		returns []float64
	}{
		{"nil", nil},
		{"empty", []float64{}},
		{"single", []float64{0.05}},
		{"single plus NaN", []float64{0.05, math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := engine.Compute(tt.returns)
			for name, v := range res.Fields() {
				assert.False(t, v.Defined, "%s should be undefined", name)
				assert.Equal(t, 0.0, v.V, "%s should not carry a value", name)
			}
		})
	}
}

func TestCompute_KnownValues(t *testing.T) {
	engine := newTestEngine()
	returns := []float64{0.01, -0.02, 0.015, 0.005, -0.01}

	res := engine.Compute(returns)
	assert.Equal(t, 5, res.Observations)

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= 5
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / 5)

	require.True(t, res.AnnualizedReturn.Defined)
	assert.InDelta(t, mean*252, res.AnnualizedReturn.V, 1e-12)
	assert.InDelta(t, std*math.Sqrt(252), res.AnnualizedVolatility.V, 1e-12)
	assert.InDelta(t, (mean*252)/(std*math.Sqrt(252)), res.SharpeRatio.V, 1e-12)

	cum := (1.01)*(0.98)*(1.015)*(1.005)*(0.99) - 1
	assert.InDelta(t, cum, res.CumulativeReturn.V, 1e-12)

	// sorted: -0.02, -0.01, 0.005, 0.01, 0.015; rank 0.2 -> -0.02 + 0.2*0.01
	assert.InDelta(t, -0.018, res.VaR95.V, 1e-12)
	assert.InDelta(t, -0.02, res.CVaR95.V, 1e-12)

	assert.True(t, res.Skewness.Defined)
	assert.True(t, res.Kurtosis.Defined)
	assert.True(t, res.NormalityPValue.Defined)
	assert.Empty(t, res.Warnings)
}

func TestCompute_CumulativeReturn(t *testing.T) {
	res := newTestEngine().Compute([]float64{0.01, -0.01})
	require.True(t, res.CumulativeReturn.Defined)
	assert.InDelta(t, -0.0001, res.CumulativeReturn.V, 1e-12)

	// Two observations: moments defined, normality test needs three.
	assert.True(t, res.Skewness.Defined)
	assert.False(t, res.NormalityPValue.Defined)
}

func TestCompute_ConstantSeries(t *testing.T) {
	res := newTestEngine().Compute([]float64{0.001, 0.001, 0.001, 0.001})

	assert.True(t, res.AnnualizedReturn.Defined)
	assert.InDelta(t, 0.252, res.AnnualizedReturn.V, 1e-12)
	assert.True(t, res.AnnualizedVolatility.Defined)
	assert.InDelta(t, 0, res.AnnualizedVolatility.V, 1e-15)
	assert.False(t, res.SharpeRatio.Defined)
	assert.False(t, res.Skewness.Defined)
	assert.False(t, res.Kurtosis.Defined)
	assert.False(t, res.NormalityPValue.Defined)
	assert.InDelta(t, 0.001, res.VaR95.V, 1e-15)
	assert.InDelta(t, 0.001, res.CVaR95.V, 1e-15)
}

func TestCompute_CVaRNotAboveVaR(t *testing.T) {
	engine := newTestEngine()
	rng := rand.New(rand.NewPCG(7, 11))

	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.IntN(500)
		returns := make([]float64, n)
		for i := range returns {
			returns[i] = rng.NormFloat64() * 0.02
		}
		res := engine.Compute(returns)
		require.True(t, res.VaR95.Defined)
		require.True(t, res.CVaR95.Defined)
		assert.LessOrEqual(t, res.CVaR95.V, res.VaR95.V)
	}
}

func TestCompute_IgnoresNonFinite(t *testing.T) {
	res := newTestEngine().Compute([]float64{0.01, math.NaN(), -0.01, math.Inf(1)})

	assert.Equal(t, 2, res.Observations)
	assert.InDelta(t, -0.0001, res.CumulativeReturn.V, 1e-12)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "2 non-finite")
}

func TestCompute_LargeSampleWarning(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	returns := make([]float64, 5001)
	for i := range returns {
		returns[i] = rng.NormFloat64() * 0.01
	}

	res := newTestEngine().Compute(returns)
	assert.True(t, res.NormalityPValue.Defined)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "approximate")
}

func TestComputeSeries(t *testing.T) {
	series := domain.ReturnSeries{Ticker: "PORTFOLIO", Values: []float64{0.01, -0.01}}
	res := newTestEngine().ComputeSeries(series)
	assert.InDelta(t, -0.0001, res.CumulativeReturn.V, 1e-12)
}
