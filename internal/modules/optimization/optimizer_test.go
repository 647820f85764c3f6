package optimization

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestOptimizer(cfg Config) *Optimizer {
	return NewOptimizer(cfg, zerolog.New(nil).Level(zerolog.Disabled))
}

func inputs(tickers []string, means []float64, cov []float64) *Inputs {
	n := len(tickers)
	return &Inputs{
		Tickers:     tickers,
		MeanReturns: means,
		Covariance: &domain.CovarianceMatrix{
			Tickers: tickers,
			Matrix:  mat.NewSymDense(n, cov),
		},
	}
}

func assertValidWeights(t *testing.T, res *Result, n int) {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Weights.Weights, n)
	assert.NoError(t, res.Weights.Validate())
	assert.InDelta(t, 1.0, res.Weights.Sum(), 1e-6)
	for _, w := range res.Weights.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
		assert.LessOrEqual(t, w, 1.0)
	}
}

func threeAssets() *Inputs {
	return inputs(
		[]string{"AAA", "BBB", "CCC"},
		[]float64{0.0008, 0.0003, 0.0012},
		[]float64{
			0.0004, 0.00005, 0.0001,
			0.00005, 0.0001, 0.00002,
			0.0001, 0.00002, 0.0009,
		},
	)
}

func TestOptimizer_InsufficientAssets(t *testing.T) {
	opt := newTestOptimizer(DefaultConfig())
	single := inputs([]string{"AAA"}, []float64{0.001}, []float64{0.0004})

	_, err := opt.MaxSharpe(single, 0.02)
	var assetsErr *domain.InsufficientAssetsError
	require.ErrorAs(t, err, &assetsErr)
	assert.Equal(t, 2, assetsErr.Required)
	assert.Equal(t, 1, assetsErr.Got)

	_, err = opt.MinVariance(single)
	assert.ErrorIs(t, err, domain.ErrInsufficientAssets)
}

func TestOptimizer_IdenticalAssets(t *testing.T) {
	opt := newTestOptimizer(DefaultConfig())
	in := inputs(
		[]string{"AAA", "BBB"},
		[]float64{0.0005, 0.0005},
		[]float64{0.0002, 0.0002, 0.0002, 0.0002},
	)

	maxSharpe, err := opt.MaxSharpe(in, 0.02)
	require.NoError(t, err)
	assertValidWeights(t, maxSharpe, 2)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, maxSharpe.Weights.Weights, 1e-6)

	minVar, err := opt.MinVariance(in)
	require.NoError(t, err)
	assertValidWeights(t, minVar, 2)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, minVar.Weights.Weights, 1e-6)
}

func TestOptimizer_MinVarianceUncorrelated(t *testing.T) {
	// For uncorrelated assets the minimum variance weights are proportional
	// to inverse variance.
	opt := newTestOptimizer(DefaultConfig())
	in := inputs(
		[]string{"AAA", "BBB", "CCC"},
		[]float64{0.001, 0.001, 0.001},
		[]float64{
			0.0004, 0, 0,
			0, 0.0001, 0,
			0, 0, 0.0009,
		},
	)

	res, err := opt.MinVariance(in)
	require.NoError(t, err)
	assertValidWeights(t, res, 3)

	inv := []float64{1 / 0.0004, 1 / 0.0001, 1 / 0.0009}
	total := inv[0] + inv[1] + inv[2]
	for i := range inv {
		assert.InDelta(t, inv[i]/total, res.Weights.Weights[i], 1e-6)
	}
}

func TestOptimizer_MinVarianceBeatsUniform(t *testing.T) {
	opt := newTestOptimizer(DefaultConfig())
	in := threeAssets()

	res, err := opt.MinVariance(in)
	require.NoError(t, err)
	assertValidWeights(t, res, 3)

	optimal, err := opt.Performance(in, res.Weights.Weights, 0)
	require.NoError(t, err)
	uniform, err := opt.Performance(in, uniformWeights(3), 0)
	require.NoError(t, err)

	assert.LessOrEqual(t, optimal.ExpectedVolatility, uniform.ExpectedVolatility+1e-12)
}

func TestOptimizer_MaxSharpeTangency(t *testing.T) {
	// Uncorrelated assets with rf = 0: w is proportional to mu_i / var_i.
	opt := newTestOptimizer(DefaultConfig())
	in := inputs(
		[]string{"AAA", "BBB"},
		[]float64{0.001, 0.0005},
		[]float64{0.0004, 0, 0, 0.0001},
	)

	res, err := opt.MaxSharpe(in, 0)
	require.NoError(t, err)
	assertValidWeights(t, res, 2)
	assert.InDeltaSlice(t, []float64{1.0 / 3, 2.0 / 3}, res.Weights.Weights, 1e-5)
}

func TestOptimizer_MaxSharpeBeatsUniform(t *testing.T) {
	opt := newTestOptimizer(DefaultConfig())
	in := threeAssets()

	res, err := opt.MaxSharpe(in, 0.02)
	require.NoError(t, err)
	assertValidWeights(t, res, 3)

	optimal, err := opt.Performance(in, res.Weights.Weights, 0.02)
	require.NoError(t, err)
	uniform, err := opt.Performance(in, uniformWeights(3), 0.02)
	require.NoError(t, err)

	require.True(t, optimal.SharpeRatio.Defined)
	assert.GreaterOrEqual(t, optimal.SharpeRatio.V, uniform.SharpeRatio.V-1e-12)
}

func TestOptimizer_BudgetExhausted(t *testing.T) {
	opt := newTestOptimizer(Config{MaxIterations: 1, Tolerance: 1e-12})

	_, err := opt.MinVariance(threeAssets())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOptimizationDidNotConverge)
	assert.ErrorIs(t, err, domain.ErrResourceLimitExceeded)

	var convErr *domain.OptimizationDidNotConvergeError
	require.ErrorAs(t, err, &convErr)
	assert.True(t, convErr.BudgetExhausted)
	assert.Equal(t, ObjectiveMinVariance, convErr.Objective)
}

func TestOptimizer_ZeroVolatilityMaxSharpe(t *testing.T) {
	opt := newTestOptimizer(DefaultConfig())
	in := inputs(
		[]string{"AAA", "BBB"},
		[]float64{0.001, 0.001},
		[]float64{0, 0, 0, 0},
	)

	_, err := opt.MaxSharpe(in, 0)
	assert.ErrorIs(t, err, domain.ErrOptimizationDidNotConverge)
	assert.NotErrorIs(t, err, domain.ErrResourceLimitExceeded)
}

func TestOptimizer_ConcurrentCalls(t *testing.T) {
	opt := newTestOptimizer(DefaultConfig())
	in := threeAssets()

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], errs[0] = opt.MaxSharpe(in, 0.02)
	}()
	go func() {
		defer wg.Done()
		results[1], errs[1] = opt.MinVariance(in)
	}()
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assertValidWeights(t, results[i], 3)
	}
}

func TestPerformance(t *testing.T) {
	opt := newTestOptimizer(DefaultConfig())
	in := inputs(
		[]string{"AAA", "BBB"},
		[]float64{0.001, 0.0005},
		[]float64{0.0004, 0, 0, 0.0001},
	)

	perf, err := opt.Performance(in, []float64{1, 0}, 0.02)
	require.NoError(t, err)
	assert.InDelta(t, 0.252, perf.ExpectedReturn, 1e-12)
	assert.InDelta(t, math.Sqrt(252*0.0004), perf.ExpectedVolatility, 1e-12)
	assert.InDelta(t, (0.252-0.02)/math.Sqrt(252*0.0004), perf.SharpeRatio.V, 1e-12)

	flat := inputs([]string{"AAA", "BBB"}, []float64{0, 0}, []float64{0, 0, 0, 0})
	perf, err = opt.Performance(flat, []float64{0.5, 0.5}, 0)
	require.NoError(t, err)
	assert.False(t, perf.SharpeRatio.Defined)

	_, err = opt.Performance(in, []float64{1}, 0)
	assert.Error(t, err)
}

func TestSampleCovariance(t *testing.T) {
	table := &domain.ReturnTable{
		Dates:   []time.Time{time.Now(), time.Now(), time.Now()},
		Tickers: []string{"AAA", "BBB"},
		Returns: [][]float64{
			{0.01, 0.02, 0.03},
			{0.03, 0.02, 0.01},
		},
	}

	cov, err := SampleCovariance(table)
	require.NoError(t, err)
	assert.Equal(t, 2, cov.Size())
	assert.InDelta(t, 0.0001, cov.Matrix.At(0, 0), 1e-15)
	assert.InDelta(t, 0.0001, cov.Matrix.At(1, 1), 1e-15)
	assert.InDelta(t, -0.0001, cov.Matrix.At(0, 1), 1e-15)

	in, err := InputsFromTable(table)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.02, 0.02}, in.MeanReturns, 1e-15)
}

func TestSampleCovariance_Errors(t *testing.T) {
	short := &domain.ReturnTable{
		Dates:   []time.Time{time.Now()},
		Tickers: []string{"AAA"},
		Returns: [][]float64{{0.01}},
	}
	_, err := SampleCovariance(short)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	ragged := &domain.ReturnTable{
		Dates:   []time.Time{time.Now(), time.Now()},
		Tickers: []string{"AAA", "BBB"},
		Returns: [][]float64{{0.01, 0.02}, {0.01}},
	}
	_, err = SampleCovariance(ragged)
	assert.ErrorIs(t, err, domain.ErrMisalignedSeries)
}
