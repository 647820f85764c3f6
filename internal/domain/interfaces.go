package domain

import (
	"context"
	"time"
)

// PriceSource retrieves historical prices for a set of tickers.
// A ticker that cannot be served is reported in PriceFetchResult.Failed;
// an error is returned only when nothing could be fetched.
type PriceSource interface {
	Fetch(ctx context.Context, tickers []string, start, end time.Time) (*PriceFetchResult, error)
}

// PriceRefresher re-downloads historical prices from upstream, ignoring any
// cached copy, and stores the result for later Fetch calls. Failures follow
// the PriceSource contract.
type PriceRefresher interface {
	Refresh(ctx context.Context, tickers []string, start, end time.Time) (*PriceFetchResult, error)
}

// QuoteSource returns the latest known price of a ticker.
type QuoteSource interface {
	LatestPrice(ctx context.Context, ticker string) (float64, error)
}

// PriceFetchResult carries the fetched series and the per-ticker failures.
type PriceFetchResult struct {
	Series []PriceSeries
	Failed []*DataUnavailableError
}

// FailedTickers lists the tickers that could not be fetched.
func (r *PriceFetchResult) FailedTickers() []string {
	tickers := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		tickers = append(tickers, f.Ticker)
	}
	return tickers
}

// HoldingsStore persists a user's holdings.
type HoldingsStore interface {
	Load(ctx context.Context, userID string) (HoldingsMap, error)
	Save(ctx context.Context, userID string, holdings HoldingsMap) error
}
