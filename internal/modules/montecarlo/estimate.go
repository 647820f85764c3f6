package montecarlo

import (
	"math"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

// Params are the per-step distribution of simulated returns and the path length.
type Params struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
	Steps int     `json:"steps"`
}

// EstimateFromTable derives Params from a multi-asset return table: mu and
// sigma are the cross-sectional mean and population standard deviation of
// each period, averaged over all periods. Steps is the number of periods.
func EstimateFromTable(table *domain.ReturnTable) (Params, error) {
	if table == nil || table.Assets() < 2 {
		got := 0
		if table != nil {
			got = table.Assets()
		}
		return Params{}, &domain.InsufficientAssetsError{Operation: "monte_carlo", Required: 2, Got: got}
	}
	periods := table.Periods()
	if periods < 1 {
		return Params{}, &domain.InsufficientDataError{Operation: "monte_carlo", Required: 1, Got: periods}
	}
	for i, ticker := range table.Tickers {
		if len(table.Returns[i]) != periods {
			return Params{}, &domain.MisalignedSeriesError{Ticker: ticker, Expected: periods, Got: len(table.Returns[i])}
		}
	}

	var muSum, sigmaSum float64
	for p := 0; p < periods; p++ {
		row := table.Row(p)
		muSum += formulas.Mean(row)
		sigmaSum += formulas.PopStdDev(row)
	}

	return checked(Params{
		Mu:    muSum / float64(periods),
		Sigma: sigmaSum / float64(periods),
		Steps: periods,
	})
}

// EstimateFromSeries derives Params from a single return series: the
// time-series mean and population standard deviation.
func EstimateFromSeries(returns []float64) (Params, error) {
	if len(returns) < 2 {
		return Params{}, &domain.InsufficientDataError{Operation: "monte_carlo", Required: 2, Got: len(returns)}
	}
	return checked(Params{
		Mu:    formulas.Mean(returns),
		Sigma: formulas.PopStdDev(returns),
		Steps: len(returns),
	})
}

func checked(p Params) (Params, error) {
	if math.IsNaN(p.Mu) || math.IsInf(p.Mu, 0) || math.IsNaN(p.Sigma) || math.IsInf(p.Sigma, 0) {
		return Params{}, &domain.InsufficientDataError{Operation: "monte_carlo", Required: 2, Got: 0}
	}
	return p, nil
}
