package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/floats"
)

// RollingVolatility returns the annualized rolling population standard
// deviation over the given window. Entries before the first full window
// are NaN.
func RollingVolatility(returns []float64, window int) []float64 {
	out := make([]float64, len(returns))
	if window < 2 || len(returns) < window {
		fillNaN(out)
		return out
	}

	std := talib.StdDev(returns, window, 1.0)
	scale := math.Sqrt(TradingDaysPerYear)
	for i := range out {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = std[i] * scale
	}
	return out
}

// RollingMean returns the simple moving average of returns over the window.
// Entries before the first full window are NaN.
func RollingMean(returns []float64, window int) []float64 {
	out := make([]float64, len(returns))
	if window < 2 || len(returns) < window {
		fillNaN(out)
		return out
	}

	sma := talib.Sma(returns, window)
	for i := range out {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sma[i]
	}
	return out
}

// CumulativeSum returns the running sum of returns.
func CumulativeSum(returns []float64) []float64 {
	if len(returns) == 0 {
		return []float64{}
	}
	return floats.CumSum(make([]float64, len(returns)), returns)
}

func fillNaN(s []float64) {
	for i := range s {
		s[i] = math.NaN()
	}
}
