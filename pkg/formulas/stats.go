// Package formulas holds the numerical building blocks shared by the
// analytics modules: moments, tail-risk measures and the normality test.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization factor for daily series.
const TradingDaysPerYear = 252.0

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// PopStdDev calculates the population standard deviation (divides by n).
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.PopStdDev(data, nil)
}

// AnnualizedReturn calculates annualized return from daily returns
// Formula: mean(daily returns) * 252
func AnnualizedReturn(dailyReturns []float64) float64 {
	return Mean(dailyReturns) * TradingDaysPerYear
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: population std dev of daily returns * sqrt(252)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	return PopStdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// Skewness returns the population skewness (third standardized moment).
// ok is false when the data has fewer than two points or zero dispersion.
func Skewness(data []float64) (float64, bool) {
	return standardizedMoment(data, 3)
}

// ExcessKurtosis returns the population fourth standardized moment minus 3,
// so that a normal distribution scores 0.
func ExcessKurtosis(data []float64) (float64, bool) {
	m, ok := standardizedMoment(data, 4)
	if !ok {
		return 0, false
	}
	return m - 3, true
}

func standardizedMoment(data []float64, order int) (float64, bool) {
	if len(data) < 2 {
		return 0, false
	}
	mean, std := stat.PopMeanStdDev(data, nil)
	if std == 0 || math.IsNaN(std) {
		return 0, false
	}

	var sum float64
	for _, v := range data {
		z := (v - mean) / std
		term := z
		for k := 1; k < order; k++ {
			term *= z
		}
		sum += term
	}
	return sum / float64(len(data)), true
}

// CumulativeReturn compounds a return series: prod(1+r) - 1.
func CumulativeReturn(returns []float64) float64 {
	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}
	return cumulative - 1
}
