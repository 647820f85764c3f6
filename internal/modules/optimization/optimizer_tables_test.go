package optimization

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// factorTable draws daily returns from a one-factor market model:
// r_it = alpha_i + beta_i*m_t + e_it. With duplicate set, the last asset
// repeats the first one exactly.
func factorTable(seed uint64, assets, days int, duplicate bool) *domain.ReturnTable {
	rng := rand.New(rand.NewPCG(seed, 0x5eed))

	market := make([]float64, days)
	for t := range market {
		market[t] = 0.0004 + 0.01*rng.NormFloat64()
	}

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, days)
	for t := range dates {
		dates[t] = start.AddDate(0, 0, t)
	}

	tickers := make([]string, assets)
	returns := make([][]float64, assets)
	for i := range returns {
		tickers[i] = fmt.Sprintf("A%02d", i)
		alpha := 0.0003 * rng.NormFloat64()
		beta := 0.5 + rng.Float64()
		idio := 0.005 + 0.015*rng.Float64()
		returns[i] = make([]float64, days)
		for t := range returns[i] {
			returns[i][t] = alpha + beta*market[t] + idio*rng.NormFloat64()
		}
	}
	if duplicate {
		tickers[assets-1] = "DUP"
		returns[assets-1] = append([]float64(nil), returns[0]...)
	}

	return &domain.ReturnTable{Dates: dates, Tickers: tickers, Returns: returns}
}

func TestOptimizer_RandomTables(t *testing.T) {
	tests := []struct {
		name      string
		assets    int
		days      int
		duplicate bool
		maxSharpe bool
	}{
		{"5 assets one year", 5, 250, false, true},
		{"10 assets one year", 10, 250, false, true},
		{"20 assets one year", 20, 250, false, true},
		{"duplicated asset", 8, 250, true, true},
		// 30 assets over 20 days leave the covariance singular, and a
		// zero-volatility mix makes Sharpe unbounded, so only variance is checked.
		{"more assets than days", 30, 20, false, false},
	}

	const rf = 0.02
	opt := newTestOptimizer(DefaultConfig())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := uint64(1); seed <= 10; seed++ {
				in, err := InputsFromTable(factorTable(seed, tt.assets, tt.days, tt.duplicate))
				require.NoError(t, err)

				uniform, err := opt.Performance(in, uniformWeights(tt.assets), rf)
				require.NoError(t, err)

				minVar, err := opt.MinVariance(in)
				require.NoError(t, err, "seed %d", seed)
				assertValidWeights(t, minVar, tt.assets)
				perf, err := opt.Performance(in, minVar.Weights.Weights, rf)
				require.NoError(t, err)
				assert.LessOrEqual(t, perf.ExpectedVolatility, uniform.ExpectedVolatility+1e-12, "seed %d", seed)

				if !tt.maxSharpe {
					continue
				}

				maxSharpe, err := opt.MaxSharpe(in, rf)
				require.NoError(t, err, "seed %d", seed)
				assertValidWeights(t, maxSharpe, tt.assets)
				perf, err = opt.Performance(in, maxSharpe.Weights.Weights, rf)
				require.NoError(t, err)
				require.True(t, perf.SharpeRatio.Defined)
				assert.GreaterOrEqual(t, perf.SharpeRatio.V, uniform.SharpeRatio.V-1e-9, "seed %d", seed)
			}
		})
	}
}

func TestOptimizer_DuplicatedAssetKeepsOptimum(t *testing.T) {
	opt := newTestOptimizer(DefaultConfig())
	table := factorTable(3, 6, 250, true)
	withTwin, err := InputsFromTable(table)
	require.NoError(t, err)

	table.Tickers = table.Tickers[:5]
	table.Returns = table.Returns[:5]
	without, err := InputsFromTable(table)
	require.NoError(t, err)

	twinRes, err := opt.MinVariance(withTwin)
	require.NoError(t, err)
	assertValidWeights(t, twinRes, 6)
	baseRes, err := opt.MinVariance(without)
	require.NoError(t, err)

	twinPerf, err := opt.Performance(withTwin, twinRes.Weights.Weights, 0)
	require.NoError(t, err)
	basePerf, err := opt.Performance(without, baseRes.Weights.Weights, 0)
	require.NoError(t, err)

	// A copy of an asset adds no diversification.
	assert.InDelta(t, basePerf.ExpectedVolatility, twinPerf.ExpectedVolatility, 1e-7)
}
