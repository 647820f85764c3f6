// Package returns converts price history into periodic simple returns.
package returns

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/rs/zerolog"
)

// Builder turns price series and price tables into return series.
type Builder struct {
	log zerolog.Logger
}

// NewBuilder creates a new return series builder
func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{
		log: log.With().Str("component", "returns_builder").Logger(),
	}
}

// TableResult is the outcome of building returns for a price table.
type TableResult struct {
	Returns        *domain.ReturnTable
	DroppedTickers []string // assets with fewer than two usable prices
	DroppedPeriods int      // periods removed because some asset's return was undefined
}

// FromSeries computes (P[t]-P[t-1])/P[t-1] for each consecutive pair.
// Periods whose boundary price is missing, zero or negative are dropped.
func (b *Builder) FromSeries(series domain.PriceSeries) (domain.ReturnSeries, error) {
	if series.Len() < 2 {
		return domain.ReturnSeries{}, &domain.InsufficientDataError{
			Operation: "returns for " + series.Ticker,
			Required:  2,
			Got:       series.Len(),
		}
	}

	for i := 1; i < len(series.Points); i++ {
		if !series.Points[i].Time.After(series.Points[i-1].Time) {
			return domain.ReturnSeries{}, &domain.MisalignedSeriesError{
				Ticker: series.Ticker,
				Reason: fmt.Sprintf("timestamps not strictly increasing at index %d", i),
			}
		}
	}

	out := domain.ReturnSeries{
		Ticker: series.Ticker,
		Dates:  make([]time.Time, 0, series.Len()-1),
		Values: make([]float64, 0, series.Len()-1),
	}

	dropped := 0
	for i := 1; i < len(series.Points); i++ {
		r, ok := simpleReturn(series.Points[i-1].Price, series.Points[i].Price)
		if !ok {
			dropped++
			continue
		}
		out.Dates = append(out.Dates, series.Points[i].Time)
		out.Values = append(out.Values, r)
	}

	if dropped > 0 {
		b.log.Debug().
			Str("ticker", series.Ticker).
			Int("dropped_periods", dropped).
			Msg("Dropped undefined return periods")
	}

	return out, nil
}

// FromTable computes aligned returns for every asset of the table. An asset
// with fewer than two usable prices is removed and reported; any period in
// which a remaining asset has an undefined return is dropped for all assets.
func (b *Builder) FromTable(table *domain.PriceTable) (*TableResult, error) {
	if len(table.Dates) < 2 {
		return nil, &domain.InsufficientDataError{
			Operation: "returns for price table",
			Required:  2,
			Got:       len(table.Dates),
		}
	}

	result := &TableResult{}

	keptTickers := make([]string, 0, len(table.Tickers))
	keptPrices := make([][]float64, 0, len(table.Tickers))
	for i, ticker := range table.Tickers {
		prices := table.Prices[i]
		if len(prices) != len(table.Dates) {
			return nil, &domain.MisalignedSeriesError{
				Ticker:   ticker,
				Expected: len(table.Dates),
				Got:      len(prices),
			}
		}
		if countUsable(prices) < 2 {
			result.DroppedTickers = append(result.DroppedTickers, ticker)
			continue
		}
		keptTickers = append(keptTickers, ticker)
		keptPrices = append(keptPrices, prices)
	}

	if len(keptTickers) == 0 {
		return nil, &domain.InsufficientDataError{
			Operation: "returns for price table",
			Required:  2,
			Got:       0,
		}
	}

	rt := &domain.ReturnTable{
		Tickers: keptTickers,
		Returns: make([][]float64, len(keptTickers)),
	}
	for i := range rt.Returns {
		rt.Returns[i] = make([]float64, 0, len(table.Dates)-1)
	}

	row := make([]float64, len(keptTickers))
	for t := 1; t < len(table.Dates); t++ {
		defined := true
		for i, prices := range keptPrices {
			r, ok := simpleReturn(prices[t-1], prices[t])
			if !ok {
				defined = false
				break
			}
			row[i] = r
		}
		if !defined {
			result.DroppedPeriods++
			continue
		}
		rt.Dates = append(rt.Dates, table.Dates[t])
		for i := range keptTickers {
			rt.Returns[i] = append(rt.Returns[i], row[i])
		}
	}

	if rt.Periods() == 0 {
		return nil, &domain.InsufficientDataError{
			Operation: "returns for price table",
			Required:  1,
			Got:       0,
		}
	}

	if result.DroppedPeriods > 0 || len(result.DroppedTickers) > 0 {
		b.log.Info().
			Int("dropped_periods", result.DroppedPeriods).
			Strs("dropped_tickers", result.DroppedTickers).
			Int("periods", rt.Periods()).
			Msg("Removed undefined returns")
	}

	result.Returns = rt
	return result, nil
}

// AlignTable merges per-asset price series onto the union of their
// timestamps (truncated to the UTC day). Missing observations are
// forward-filled; leading gaps stay NaN so the corresponding returns are
// dropped.
func AlignTable(series []domain.PriceSeries) *domain.PriceTable {
	dateSet := make(map[time.Time]struct{})
	for _, s := range series {
		for _, p := range s.Points {
			dateSet[dayOf(p.Time)] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	table := &domain.PriceTable{
		Dates:   dates,
		Tickers: make([]string, 0, len(series)),
		Prices:  make([][]float64, 0, len(series)),
	}

	for _, s := range series {
		prices := make([]float64, len(dates))
		for i := range prices {
			prices[i] = math.NaN()
		}
		for _, p := range s.Points {
			prices[index[dayOf(p.Time)]] = p.Price
		}
		forwardFill(prices)

		table.Tickers = append(table.Tickers, s.Ticker)
		table.Prices = append(table.Prices, prices)
	}

	return table
}

func forwardFill(prices []float64) {
	last := math.NaN()
	for i, p := range prices {
		if !math.IsNaN(p) {
			last = p
			continue
		}
		prices[i] = last
	}
}

func simpleReturn(prev, cur float64) (float64, bool) {
	if !isUsablePrice(prev) || !isUsablePrice(cur) {
		return 0, false
	}
	return (cur - prev) / prev, true
}

func isUsablePrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func countUsable(prices []float64) int {
	n := 0
	for _, p := range prices {
		if isUsablePrice(p) {
			n++
		}
	}
	return n
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
