// Package portfolio combines per-asset returns into portfolio returns and
// persists user holdings.
package portfolio

import (
	"fmt"
	"math"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Aggregator weights per-asset returns into a single portfolio series.
type Aggregator struct {
	log zerolog.Logger
}

// NewAggregator creates a new portfolio aggregator
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		log: log.With().Str("component", "portfolio_aggregator").Logger(),
	}
}

// AggregateResult carries the portfolio series together with the weights
// actually applied and the holdings that had to be left out.
type AggregateResult struct {
	Returns domain.ReturnSeries
	Weights domain.WeightVector
	Dropped []string
}

// WeightsFromHoldings normalizes quantities into weights (q / sum q) in the
// given ticker order.
func WeightsFromHoldings(holdings domain.HoldingsMap, tickers []string) (domain.WeightVector, error) {
	if err := holdings.Validate(); err != nil {
		return domain.WeightVector{}, fmt.Errorf("invalid holdings: %w", err)
	}

	weights := make([]float64, len(tickers))
	var total float64
	for i, t := range tickers {
		q, ok := holdings[t]
		if !ok {
			return domain.WeightVector{}, fmt.Errorf("ticker %s is not held", t)
		}
		weights[i] = q
		total += q
	}

	if total <= 0 {
		return domain.WeightVector{}, &domain.InsufficientAssetsError{
			Operation: "weights from holdings",
			Required:  1,
			Got:       0,
		}
	}

	for i := range weights {
		weights[i] /= total
	}

	return domain.WeightVector{Tickers: append([]string(nil), tickers...), Weights: weights}, nil
}

// Aggregate computes portfolioReturn[t] = sum_i weight_i * assetReturn_i[t].
// Every weighted ticker must be a column of the table and every column must
// span the table's timeline.
func (a *Aggregator) Aggregate(table *domain.ReturnTable, weights domain.WeightVector) (domain.ReturnSeries, error) {
	if len(weights.Tickers) != len(weights.Weights) {
		return domain.ReturnSeries{}, fmt.Errorf("weight vector has %d tickers but %d weights",
			len(weights.Tickers), len(weights.Weights))
	}
	if len(weights.Tickers) == 0 {
		return domain.ReturnSeries{}, &domain.InsufficientAssetsError{
			Operation: "aggregate",
			Required:  1,
			Got:       0,
		}
	}

	columns := make([][]float64, len(weights.Tickers))
	for i, ticker := range weights.Tickers {
		col, err := column(table, ticker)
		if err != nil {
			return domain.ReturnSeries{}, err
		}
		columns[i] = col
	}

	periods := table.Periods()
	out := domain.ReturnSeries{
		Dates:  append(table.Dates[:0:0], table.Dates...),
		Values: make([]float64, periods),
	}

	// single asset: scalar multiply, no matrix shapes involved
	if len(columns) == 1 {
		w := weights.Weights[0]
		for t, r := range columns[0] {
			out.Values[t] = r * w
		}
		return out, nil
	}

	if periods == 0 {
		return out, nil
	}

	returns := mat.NewDense(periods, len(columns), nil)
	for i, col := range columns {
		returns.SetCol(i, col)
	}
	w := mat.NewVecDense(len(weights.Weights), append([]float64(nil), weights.Weights...))

	var portfolio mat.VecDense
	portfolio.MulVec(returns, w)
	for t := 0; t < periods; t++ {
		out.Values[t] = portfolio.AtVec(t)
	}

	a.log.Debug().
		Int("assets", len(columns)).
		Int("periods", periods).
		Msg("Aggregated portfolio returns")

	return out, nil
}

// AggregateSeries aligns independently built asset series and aggregates
// them. All series must share exactly the same timestamps.
func (a *Aggregator) AggregateSeries(series []domain.ReturnSeries, weights domain.WeightVector) (domain.ReturnSeries, error) {
	if len(series) == 0 {
		return domain.ReturnSeries{}, &domain.InsufficientAssetsError{
			Operation: "aggregate",
			Required:  1,
			Got:       0,
		}
	}

	ref := series[0]
	table := &domain.ReturnTable{
		Dates:   ref.Dates,
		Tickers: make([]string, 0, len(series)),
		Returns: make([][]float64, 0, len(series)),
	}

	for _, s := range series {
		if s.Len() != ref.Len() || len(s.Dates) != len(ref.Dates) {
			return domain.ReturnSeries{}, &domain.MisalignedSeriesError{
				Ticker:   s.Ticker,
				Expected: ref.Len(),
				Got:      s.Len(),
			}
		}
		for t := range s.Dates {
			if !s.Dates[t].Equal(ref.Dates[t]) {
				return domain.ReturnSeries{}, &domain.MisalignedSeriesError{
					Ticker: s.Ticker,
					Reason: fmt.Sprintf("timestamp %s does not match %s at period %d",
						s.Dates[t].Format("2006-01-02"), ref.Dates[t].Format("2006-01-02"), t),
				}
			}
		}
		table.Tickers = append(table.Tickers, s.Ticker)
		table.Returns = append(table.Returns, s.Values)
	}

	return a.Aggregate(table, weights)
}

// AggregateHoldings weights the table by the holdings it can cover. Held
// tickers without a return column are reported in Dropped and the remaining
// weights are renormalized.
func (a *Aggregator) AggregateHoldings(table *domain.ReturnTable, holdings domain.HoldingsMap) (*AggregateResult, error) {
	available := make(map[string]bool, len(table.Tickers))
	for _, t := range table.Tickers {
		available[t] = true
	}

	var kept, dropped []string
	for _, t := range holdings.Tickers() {
		if available[t] && holdings[t] > 0 {
			kept = append(kept, t)
		} else {
			dropped = append(dropped, t)
		}
	}

	if len(kept) == 0 {
		return nil, &domain.InsufficientAssetsError{
			Operation: "aggregate holdings",
			Required:  1,
			Got:       0,
		}
	}

	if len(dropped) > 0 {
		a.log.Warn().
			Strs("dropped", dropped).
			Int("kept", len(kept)).
			Msg("Aggregating portfolio without some holdings")
	}

	weights, err := WeightsFromHoldings(holdings, kept)
	if err != nil {
		return nil, err
	}

	series, err := a.Aggregate(table, weights)
	if err != nil {
		return nil, err
	}

	return &AggregateResult{Returns: series, Weights: weights, Dropped: dropped}, nil
}

func column(table *domain.ReturnTable, ticker string) ([]float64, error) {
	for i, t := range table.Tickers {
		if t != ticker {
			continue
		}
		col := table.Returns[i]
		if len(col) != table.Periods() {
			return nil, &domain.MisalignedSeriesError{
				Ticker:   ticker,
				Expected: table.Periods(),
				Got:      len(col),
			}
		}
		for p, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &domain.MisalignedSeriesError{
					Ticker: ticker,
					Reason: fmt.Sprintf("undefined return at period %d", p),
				}
			}
		}
		return col, nil
	}
	return nil, &domain.MisalignedSeriesError{
		Ticker: ticker,
		Reason: "no return series for weighted ticker",
	}
}
