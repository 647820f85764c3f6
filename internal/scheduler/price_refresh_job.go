package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/internal/scheduler/base"
	"github.com/rs/zerolog"
)

// TickerLister lists every ticker held by any user.
type TickerLister interface {
	AllTickers(ctx context.Context) ([]string, error)
}

// PriceRefreshJob re-downloads the lookback window for all held tickers so
// analytics requests are served from an up-to-date price cache.
type PriceRefreshJob struct {
	base.JobBase
	tickers  TickerLister
	prices   domain.PriceRefresher
	lookback int
	timeout  time.Duration
	log      zerolog.Logger
}

// NewPriceRefreshJob creates a new price refresh job
func NewPriceRefreshJob(tickers TickerLister, prices domain.PriceRefresher, lookbackDays int, log zerolog.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		tickers:  tickers,
		prices:   prices,
		lookback: lookbackDays,
		timeout:  5 * time.Minute,
		log:      log.With().Str("job", "price_refresh").Logger(),
	}
}

// Name returns the job name
func (j *PriceRefreshJob) Name() string {
	return "price_refresh"
}

// Run fetches prices for every held ticker. Individual ticker failures are
// logged; the job fails only if nothing could be fetched.
func (j *PriceRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	tickers, err := j.tickers.AllTickers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tickers: %w", err)
	}
	if len(tickers) == 0 {
		j.log.Debug().Msg("No holdings, nothing to refresh")
		return nil
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -j.lookback)

	result, err := j.prices.Refresh(ctx, tickers, start, end)
	if err != nil {
		return fmt.Errorf("failed to refresh prices: %w", err)
	}

	for _, f := range result.Failed {
		j.log.Warn().Err(f).Str("ticker", f.Ticker).Msg("Price refresh failed for ticker")
	}

	j.log.Info().
		Int("requested", len(tickers)).
		Int("refreshed", len(result.Series)).
		Int("failed", len(result.Failed)).
		Msg("Price refresh completed")

	return nil
}
