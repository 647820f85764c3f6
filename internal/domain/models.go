// Package domain provides the data model shared by the analytics modules:
// holdings, price and return series, weights, covariance and result records.
package domain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// HoldingsMap maps a ticker to the quantity held.
type HoldingsMap map[string]float64

// Tickers returns the held tickers in a stable (sorted) order.
func (h HoldingsMap) Tickers() []string {
	tickers := make([]string, 0, len(h))
	for t := range h {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// Validate checks that every quantity is a finite, non-negative number.
func (h HoldingsMap) Validate() error {
	for ticker, qty := range h {
		if ticker == "" {
			return fmt.Errorf("holding with empty ticker")
		}
		if qty < 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
			return fmt.Errorf("invalid quantity %v for %s", qty, ticker)
		}
	}
	return nil
}

// PricePoint is a single observation of an asset price.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// PriceSeries is the price history of one asset, ordered by time.
type PriceSeries struct {
	Ticker string       `json:"ticker"`
	Points []PricePoint `json:"points"`
}

// Len returns the number of observations.
func (s PriceSeries) Len() int {
	return len(s.Points)
}

// PriceTable holds several assets on one shared timeline.
// Prices[i][t] is the price of Tickers[i] at Dates[t]; a missing
// observation is NaN.
type PriceTable struct {
	Dates   []time.Time `json:"dates"`
	Tickers []string    `json:"tickers"`
	Prices  [][]float64 `json:"prices"`
}

// Column returns the prices of one ticker, or nil when the ticker is absent.
func (t *PriceTable) Column(ticker string) []float64 {
	for i, tk := range t.Tickers {
		if tk == ticker {
			return t.Prices[i]
		}
	}
	return nil
}

// ReturnSeries is a sequence of periodic simple returns. Dates[t] is the
// end of the period that produced Values[t].
type ReturnSeries struct {
	Ticker string      `json:"ticker,omitempty"`
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

// Len returns the number of periods.
func (r ReturnSeries) Len() int {
	return len(r.Values)
}

// ReturnTable holds aligned per-asset return series.
// Returns[i][t] is the return of Tickers[i] over the period ending Dates[t].
type ReturnTable struct {
	Dates   []time.Time `json:"dates"`
	Tickers []string    `json:"tickers"`
	Returns [][]float64 `json:"returns"`
}

// Periods returns the number of aligned periods.
func (t *ReturnTable) Periods() int {
	return len(t.Dates)
}

// Assets returns the number of assets.
func (t *ReturnTable) Assets() int {
	return len(t.Tickers)
}

// Series extracts the return series of asset i.
func (t *ReturnTable) Series(i int) ReturnSeries {
	return ReturnSeries{
		Ticker: t.Tickers[i],
		Dates:  t.Dates,
		Values: t.Returns[i],
	}
}

// Row returns the cross-section of returns for period p.
func (t *ReturnTable) Row(p int) []float64 {
	row := make([]float64, len(t.Tickers))
	for i := range t.Tickers {
		row[i] = t.Returns[i][p]
	}
	return row
}

// Matrix returns the table as a periods x assets dense matrix.
func (t *ReturnTable) Matrix() *mat.Dense {
	m := mat.NewDense(t.Periods(), t.Assets(), nil)
	for i := range t.Tickers {
		for p, v := range t.Returns[i] {
			m.Set(p, i, v)
		}
	}
	return m
}

// WeightTolerance is the allowed deviation of a weight vector's sum from 1.
const WeightTolerance = 1e-6

// WeightVector assigns a non-negative weight to each ticker; weights sum to 1.
type WeightVector struct {
	Tickers []string  `json:"tickers"`
	Weights []float64 `json:"weights"`
}

// Sum returns the total weight.
func (w WeightVector) Sum() float64 {
	var s float64
	for _, v := range w.Weights {
		s += v
	}
	return s
}

// Validate checks weight bounds and the budget constraint.
func (w WeightVector) Validate() error {
	if len(w.Tickers) != len(w.Weights) {
		return fmt.Errorf("weight vector has %d tickers but %d weights", len(w.Tickers), len(w.Weights))
	}
	for i, v := range w.Weights {
		if v < -WeightTolerance || v > 1+WeightTolerance || math.IsNaN(v) {
			return fmt.Errorf("weight %v for %s outside [0,1]", v, w.Tickers[i])
		}
	}
	if s := w.Sum(); math.Abs(s-1) > WeightTolerance {
		return fmt.Errorf("weights sum to %v, expected 1", s)
	}
	return nil
}

// AsMap returns the weights keyed by ticker.
func (w WeightVector) AsMap() map[string]float64 {
	m := make(map[string]float64, len(w.Tickers))
	for i, t := range w.Tickers {
		m[t] = w.Weights[i]
	}
	return m
}

// CovarianceMatrix is a symmetric covariance matrix over Tickers.
type CovarianceMatrix struct {
	Tickers []string
	Matrix  *mat.SymDense
}

// Size returns the number of assets.
func (c CovarianceMatrix) Size() int {
	return len(c.Tickers)
}

// MetricsResult holds the risk/return statistics of one return series.
// Fields that could not be computed are Undefined, never zero.
type MetricsResult struct {
	AnnualizedReturn     Value    `json:"annualized_return"`
	AnnualizedVolatility Value    `json:"annualized_volatility"`
	SharpeRatio          Value    `json:"sharpe_ratio"`
	Skewness             Value    `json:"skewness"`
	Kurtosis             Value    `json:"kurtosis"`
	NormalityPValue      Value    `json:"normality_p_value"`
	CumulativeReturn     Value    `json:"cumulative_return"`
	VaR95                Value    `json:"var_95"`
	CVaR95               Value    `json:"cvar_95"`
	Observations         int      `json:"observations"`
	Warnings             []string `json:"warnings,omitempty"`
}

// UndefinedMetrics returns a result with every statistic undefined.
func UndefinedMetrics(observations int) MetricsResult {
	return MetricsResult{
		AnnualizedReturn:     Undefined(),
		AnnualizedVolatility: Undefined(),
		SharpeRatio:          Undefined(),
		Skewness:             Undefined(),
		Kurtosis:             Undefined(),
		NormalityPValue:      Undefined(),
		CumulativeReturn:     Undefined(),
		VaR95:                Undefined(),
		CVaR95:               Undefined(),
		Observations:         observations,
	}
}

// Fields returns the nine statistics keyed by name.
func (m MetricsResult) Fields() map[string]Value {
	return map[string]Value{
		"annualized_return":     m.AnnualizedReturn,
		"annualized_volatility": m.AnnualizedVolatility,
		"sharpe_ratio":          m.SharpeRatio,
		"skewness":              m.Skewness,
		"kurtosis":              m.Kurtosis,
		"normality_p_value":     m.NormalityPValue,
		"cumulative_return":     m.CumulativeReturn,
		"var_95":                m.VaR95,
		"cvar_95":               m.CVaR95,
	}
}

// SimulationResult is the outcome of a Monte Carlo run.
type SimulationResult struct {
	VaR95          float64   `json:"simulated_var_95"`
	CVaR95         float64   `json:"simulated_cvar_95"`
	TerminalValues []float64 `json:"terminal_values"`
	Mu             float64   `json:"mu"`
	Sigma          float64   `json:"sigma"`
	Iterations     int       `json:"iterations"`
	Steps          int       `json:"steps"`
}

// PortfolioPerformance describes the expected behaviour of a weight vector.
type PortfolioPerformance struct {
	ExpectedReturn     float64 `json:"expected_return"`
	ExpectedVolatility float64 `json:"expected_volatility"`
	SharpeRatio        Value   `json:"sharpe_ratio"`
}
