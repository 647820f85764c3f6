package analytics

import (
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/internal/modules/montecarlo"
)

// Window is the date range and number of return periods an analysis used.
type Window struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Periods int       `json:"periods"`
}

// MetricsReport holds the statistics of a user's portfolio return series.
type MetricsReport struct {
	RunID   string               `json:"run_id"`
	Metrics domain.MetricsResult `json:"metrics"`
	Weights map[string]float64   `json:"weights"`
	Window  Window               `json:"window"`
	Dropped []string             `json:"dropped_tickers,omitempty"`
}

// AllocationEntry is one holding valued at its latest price.
// Price and MarketValue are undefined when no quote is available.
type AllocationEntry struct {
	Ticker      string       `json:"ticker"`
	Quantity    float64      `json:"quantity"`
	Price       domain.Value `json:"price"`
	MarketValue domain.Value `json:"market_value"`
	Percentage  float64      `json:"percentage"`
}

// ReturnsChart is the per-date portfolio return series prepared for display.
type ReturnsChart struct {
	Dates             []time.Time    `json:"dates"`
	Returns           []float64      `json:"returns"`
	CumulativeReturns []float64      `json:"cumulative_returns"`
	RollingVolatility []domain.Value `json:"rolling_volatility"`
	RollingMean       []domain.Value `json:"rolling_mean"`
	Window            int            `json:"rolling_window"`
}

// Overview combines allocation, metrics and the returns chart.
type Overview struct {
	RunID      string               `json:"run_id"`
	Allocation []AllocationEntry    `json:"allocation"`
	TotalValue float64              `json:"total_value"`
	Metrics    domain.MetricsResult `json:"metrics"`
	Chart      ReturnsChart         `json:"chart"`
	Window     Window               `json:"window"`
	Dropped    []string             `json:"dropped_tickers,omitempty"`
}

// OptimizedPortfolio is a weight vector with its expected performance.
type OptimizedPortfolio struct {
	Weights     map[string]float64          `json:"weights"`
	Performance domain.PortfolioPerformance `json:"performance"`
	Iterations  int                         `json:"iterations,omitempty"`
}

// OptimizationReport compares the current allocation with both optima.
type OptimizationReport struct {
	RunID        string             `json:"run_id"`
	RiskFreeRate float64            `json:"risk_free_rate"`
	Tickers      []string           `json:"tickers"`
	Current      OptimizedPortfolio `json:"current"`
	MaxSharpe    OptimizedPortfolio `json:"max_sharpe"`
	MinVariance  OptimizedPortfolio `json:"min_variance"`
	Window       Window             `json:"window"`
	Dropped      []string           `json:"dropped_tickers,omitempty"`
}

// SimulationReport is a Monte Carlo run with its terminal-value histogram
// and one sample value path, starting from a value of 1.
type SimulationReport struct {
	RunID      string                   `json:"run_id"`
	Result     *domain.SimulationResult `json:"result"`
	Histogram  montecarlo.Histogram     `json:"histogram"`
	SamplePath []float64                `json:"sample_path"`
	Window     Window                   `json:"window"`
	Dropped    []string                 `json:"dropped_tickers,omitempty"`
}
