// Package analytics runs the portfolio analyses on a user's stored holdings.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/internal/modules/metrics"
	"github.com/aristath/portfolio-analytics/internal/modules/montecarlo"
	"github.com/aristath/portfolio-analytics/internal/modules/optimization"
	"github.com/aristath/portfolio-analytics/internal/modules/portfolio"
	"github.com/aristath/portfolio-analytics/internal/modules/returns"
	"github.com/aristath/portfolio-analytics/internal/utils"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds the analysis defaults.
type Config struct {
	RiskFreeRate  float64
	LookbackDays  int
	Iterations    int
	MaxIterations int
	Optimizer     optimization.Config
	RollingWindow int
	HistogramBins int
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		RiskFreeRate:  0.02,
		LookbackDays:  365,
		Iterations:    10000,
		MaxIterations: montecarlo.DefaultMaxIterations,
		Optimizer:     optimization.DefaultConfig(),
		RollingWindow: 21,
		HistogramBins: montecarlo.DefaultBins,
	}
}

// NewConfig maps the environment configuration onto the service settings.
func NewConfig(c config.AnalyticsConfig) Config {
	return Config{
		RiskFreeRate:  c.RiskFreeRate,
		LookbackDays:  c.LookbackDays,
		Iterations:    c.MonteCarloRuns,
		MaxIterations: c.MonteCarloMaxRuns,
		Optimizer: optimization.Config{
			MaxIterations: c.OptimizerMaxIters,
			Tolerance:     c.OptimizerTolerance,
		},
		RollingWindow: c.ChartRollingWindow,
		HistogramBins: c.HistogramBins,
	}
}

// PriceProvider serves both price history and latest quotes.
type PriceProvider interface {
	domain.PriceSource
	domain.QuoteSource
}

// Service loads holdings and prices and runs the numerical core on them.
type Service struct {
	holdings domain.HoldingsStore
	prices   PriceProvider

	builder    *returns.Builder
	aggregator *portfolio.Aggregator
	engine     *metrics.Engine
	optimizer  *optimization.Optimizer
	simulator  *montecarlo.Simulator

	cfg Config
	now func() time.Time
	log zerolog.Logger
}

// NewService creates a new analytics service
func NewService(holdings domain.HoldingsStore, prices PriceProvider, cfg Config, log zerolog.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.LookbackDays < 2 {
		cfg.LookbackDays = defaults.LookbackDays
	}
	if cfg.Iterations < 1 {
		cfg.Iterations = defaults.Iterations
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.RollingWindow < 2 {
		cfg.RollingWindow = defaults.RollingWindow
	}
	if cfg.HistogramBins < 1 {
		cfg.HistogramBins = defaults.HistogramBins
	}

	return &Service{
		holdings:   holdings,
		prices:     prices,
		builder:    returns.NewBuilder(log),
		aggregator: portfolio.NewAggregator(log),
		engine:     metrics.NewEngine(log),
		optimizer:  optimization.NewOptimizer(cfg.Optimizer, log),
		simulator:  montecarlo.NewSimulator(cfg.MaxIterations, log),
		cfg:        cfg,
		now:        time.Now,
		log:        log.With().Str("service", "analytics").Logger(),
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// dataset is a user's holdings joined with their aligned returns.
type dataset struct {
	runID     string
	log       zerolog.Logger
	holdings  domain.HoldingsMap
	assets    *domain.ReturnTable
	portfolio *portfolio.AggregateResult
	window    Window
}

// load fetches prices for every held ticker and aggregates what could be
// fetched. Tickers that fail are reported, not fatal, unless none survive.
func (s *Service) load(ctx context.Context, userID string, operation string) (*dataset, error) {
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Str("user_id", userID).Str("operation", operation).Logger()

	holdings, err := s.holdings.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	var tickers []string
	for _, t := range holdings.Tickers() {
		if holdings[t] > 0 {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		return nil, &domain.InsufficientAssetsError{Operation: operation, Required: 1, Got: 0}
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -s.cfg.LookbackDays)

	fetched, err := s.prices.Fetch(ctx, tickers, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	if len(fetched.Series) == 0 {
		return nil, &domain.DataUnavailableError{Ticker: "*", Reason: "no ticker could be fetched"}
	}
	for _, f := range fetched.Failed {
		log.Warn().Err(f).Str("ticker", f.Ticker).Msg("Skipping ticker without price data")
	}

	built, err := s.builder.FromTable(returns.AlignTable(fetched.Series))
	if err != nil {
		return nil, fmt.Errorf("failed to build returns: %w", err)
	}

	aggregated, err := s.aggregator.AggregateHoldings(built.Returns, holdings)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate portfolio: %w", err)
	}

	log.Debug().
		Int("assets", built.Returns.Assets()).
		Int("periods", built.Returns.Periods()).
		Strs("dropped", aggregated.Dropped).
		Msg("Loaded portfolio data")

	return &dataset{
		runID:     runID,
		log:       log,
		holdings:  holdings,
		assets:    built.Returns,
		portfolio: aggregated,
		window:    Window{Start: start, End: end, Periods: built.Returns.Periods()},
	}, nil
}

// Metrics computes the statistics of the user's portfolio returns.
func (s *Service) Metrics(ctx context.Context, userID string) (*MetricsReport, error) {
	data, err := s.load(ctx, userID, "metrics")
	if err != nil {
		return nil, err
	}
	defer utils.NewTimer("metrics", data.log).With("periods", data.window.Periods).Stop()

	return &MetricsReport{
		RunID:   data.runID,
		Metrics: s.engine.ComputeSeries(data.portfolio.Returns),
		Weights: data.portfolio.Weights.AsMap(),
		Window:  data.window,
		Dropped: data.portfolio.Dropped,
	}, nil
}

// MetricsForReturns computes statistics of a caller-supplied return series.
func (s *Service) MetricsForReturns(returns []float64) domain.MetricsResult {
	return s.engine.Compute(returns)
}

// Overview values every holding at its latest price and adds the portfolio
// metrics and returns chart.
func (s *Service) Overview(ctx context.Context, userID string) (*Overview, error) {
	data, err := s.load(ctx, userID, "overview")
	if err != nil {
		return nil, err
	}
	defer utils.NewTimer("overview", data.log).Stop()

	allocation, total := s.allocation(ctx, data)

	return &Overview{
		RunID:      data.runID,
		Allocation: allocation,
		TotalValue: total,
		Metrics:    s.engine.ComputeSeries(data.portfolio.Returns),
		Chart:      s.chart(data.portfolio.Returns),
		Window:     data.window,
		Dropped:    data.portfolio.Dropped,
	}, nil
}

func (s *Service) allocation(ctx context.Context, data *dataset) ([]AllocationEntry, float64) {
	tickers := data.holdings.Tickers()
	entries := make([]AllocationEntry, 0, len(tickers))
	var total float64

	for _, ticker := range tickers {
		qty := data.holdings[ticker]
		entry := AllocationEntry{
			Ticker:      ticker,
			Quantity:    qty,
			Price:       domain.Undefined(),
			MarketValue: domain.Undefined(),
		}

		price, err := s.prices.LatestPrice(ctx, ticker)
		if err != nil {
			data.log.Warn().Err(err).Str("ticker", ticker).Msg("No latest price")
		} else {
			entry.Price = domain.NewValue(price)
			entry.MarketValue = domain.NewValue(price * qty)
			if v, ok := entry.MarketValue.Get(); ok {
				total += v
			}
		}
		entries = append(entries, entry)
	}

	if total > 0 {
		for i := range entries {
			if v, ok := entries[i].MarketValue.Get(); ok {
				entries[i].Percentage = v / total * 100
			}
		}
	}

	return entries, total
}

func (s *Service) chart(series domain.ReturnSeries) ReturnsChart {
	window := s.cfg.RollingWindow
	return ReturnsChart{
		Dates:             series.Dates,
		Returns:           series.Values,
		CumulativeReturns: formulas.CumulativeSum(series.Values),
		RollingVolatility: values(formulas.RollingVolatility(series.Values, window)),
		RollingMean:       values(formulas.RollingMean(series.Values, window)),
		Window:            window,
	}
}

// Optimize computes the maximum-Sharpe and minimum-variance allocations of
// the held assets concurrently. A nil riskFreeRate uses the configured one.
func (s *Service) Optimize(ctx context.Context, userID string, riskFreeRate *float64) (*OptimizationReport, error) {
	rf := s.cfg.RiskFreeRate
	if riskFreeRate != nil {
		rf = *riskFreeRate
	}
	if math.IsNaN(rf) || math.IsInf(rf, 0) {
		return nil, fmt.Errorf("invalid risk-free rate %v", rf)
	}

	data, err := s.load(ctx, userID, "optimize")
	if err != nil {
		return nil, err
	}
	defer utils.NewTimer("optimize", data.log).With("assets", data.assets.Assets()).Stop()

	in, err := optimization.InputsFromTable(data.assets)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate optimizer inputs: %w", err)
	}

	var (
		wg                   sync.WaitGroup
		sharpe, minVar       *optimization.Result
		sharpeErr, minVarErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sharpe, sharpeErr = s.optimizer.MaxSharpe(in, rf)
	}()
	go func() {
		defer wg.Done()
		minVar, minVarErr = s.optimizer.MinVariance(in)
	}()
	wg.Wait()

	if err := errors.Join(sharpeErr, minVarErr); err != nil {
		return nil, err
	}

	current := make([]float64, len(in.Tickers))
	held := data.portfolio.Weights.AsMap()
	for i, t := range in.Tickers {
		current[i] = held[t]
	}

	report := &OptimizationReport{
		RunID:        data.runID,
		RiskFreeRate: rf,
		Tickers:      in.Tickers,
		Window:       data.window,
		Dropped:      data.portfolio.Dropped,
	}

	if report.Current, err = s.describe(in, current, rf, 0); err != nil {
		return nil, err
	}
	if report.MaxSharpe, err = s.describe(in, sharpe.Weights.Weights, rf, sharpe.Iterations); err != nil {
		return nil, err
	}
	if report.MinVariance, err = s.describe(in, minVar.Weights.Weights, rf, minVar.Iterations); err != nil {
		return nil, err
	}

	return report, nil
}

func (s *Service) describe(in *optimization.Inputs, weights []float64, rf float64, iterations int) (OptimizedPortfolio, error) {
	perf, err := s.optimizer.Performance(in, weights, rf)
	if err != nil {
		return OptimizedPortfolio{}, fmt.Errorf("failed to evaluate portfolio: %w", err)
	}
	wv := domain.WeightVector{Tickers: in.Tickers, Weights: weights}
	return OptimizedPortfolio{
		Weights:     wv.AsMap(),
		Performance: perf,
		Iterations:  iterations,
	}, nil
}

// Simulate runs a Monte Carlo simulation calibrated on the held assets.
// iterations <= 0 uses the configured default; a nil seed draws a fresh
// random source.
func (s *Service) Simulate(ctx context.Context, userID string, iterations int, seed *uint64) (*SimulationReport, error) {
	if iterations <= 0 {
		iterations = s.cfg.Iterations
	}

	data, err := s.load(ctx, userID, "simulate")
	if err != nil {
		return nil, err
	}
	defer utils.NewTimer("simulate", data.log).With("iterations", iterations).Stop()

	params, err := montecarlo.EstimateFromTable(data.assets)
	if err != nil {
		return nil, err
	}

	result, err := s.simulator.Run(params, montecarlo.Options{Iterations: iterations, Seed: seed})
	if err != nil {
		return nil, err
	}

	return &SimulationReport{
		RunID:      data.runID,
		Result:     result,
		Histogram:  montecarlo.NewHistogram(result.TerminalValues, s.cfg.HistogramBins),
		SamplePath: s.simulator.Path(params, seed),
		Window:     data.window,
		Dropped:    data.portfolio.Dropped,
	}, nil
}

func values(series []float64) []domain.Value {
	out := make([]domain.Value, len(series))
	for i, v := range series {
		out[i] = domain.NewValue(v)
	}
	return out
}
