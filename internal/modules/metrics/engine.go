// Package metrics computes risk and return statistics of a daily return series.
package metrics

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
	"github.com/rs/zerolog"
)

// Confidence is the level used for VaR and CVaR.
const Confidence = 0.95

// Engine computes MetricsResult values. It is stateless.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a new metrics engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("component", "metrics_engine").Logger(),
	}
}

// Compute returns the statistics of a daily return series. It never fails:
// a series with fewer than two usable observations yields every field
// undefined, and statistics that cannot be computed on a longer series
// (Sharpe at zero volatility, moments of a constant series) are undefined
// individually.
func (e *Engine) Compute(returns []float64) domain.MetricsResult {
	values, skipped := finite(returns)
	if len(values) < 2 {
		res := domain.UndefinedMetrics(len(values))
		if skipped > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%d non-finite returns ignored", skipped))
		}
		return res
	}

	res := domain.MetricsResult{Observations: len(values)}
	if skipped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d non-finite returns ignored", skipped))
	}

	annReturn := formulas.AnnualizedReturn(values)
	annVol := formulas.AnnualizedVolatility(values)
	res.AnnualizedReturn = domain.NewValue(annReturn)
	res.AnnualizedVolatility = domain.NewValue(annVol)

	res.SharpeRatio = domain.Undefined()
	if annVol > 0 {
		res.SharpeRatio = domain.NewValue(annReturn / annVol)
	}

	res.Skewness = optional(formulas.Skewness(values))
	res.Kurtosis = optional(formulas.ExcessKurtosis(values))

	res.NormalityPValue = domain.Undefined()
	_, p, err := formulas.ShapiroWilk(values)
	switch {
	case err == nil:
		res.NormalityPValue = domain.NewValue(p)
		if len(values) > formulas.ShapiroWilkMaxN {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"normality p-value is approximate above %d observations", formulas.ShapiroWilkMaxN))
			e.log.Warn().
				Int("observations", len(values)).
				Msg("Shapiro-Wilk sample larger than calibrated range")
		}
	case errors.Is(err, formulas.ErrTooFewObservations), errors.Is(err, formulas.ErrZeroRange):
	default:
		e.log.Error().Err(err).Msg("Normality test failed")
	}

	res.CumulativeReturn = domain.NewValue(formulas.CumulativeReturn(values))

	cvar, valueAtRisk := formulas.CalculateCVaR(values, Confidence)
	res.VaR95 = domain.NewValue(valueAtRisk)
	res.CVaR95 = domain.NewValue(cvar)

	return res
}

// ComputeSeries is Compute over a ReturnSeries.
func (e *Engine) ComputeSeries(series domain.ReturnSeries) domain.MetricsResult {
	return e.Compute(series.Values)
}

func optional(v float64, ok bool) domain.Value {
	if !ok {
		return domain.Undefined()
	}
	return domain.NewValue(v)
}

func finite(returns []float64) ([]float64, int) {
	out := make([]float64, 0, len(returns))
	for _, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, r)
	}
	return out, len(returns) - len(out)
}
