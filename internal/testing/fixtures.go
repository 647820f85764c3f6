package testing

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// FixtureStart is the first date of generated price fixtures.
var FixtureStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// NewPriceSeries builds a daily series starting at FixtureStart.
func NewPriceSeries(ticker string, prices ...float64) domain.PriceSeries {
	points := make([]domain.PricePoint, len(prices))
	for i, p := range prices {
		points[i] = domain.PricePoint{Time: FixtureStart.AddDate(0, 0, i), Price: p}
	}
	return domain.PriceSeries{Ticker: ticker, Points: points}
}

// NewRandomWalk builds a deterministic geometric random walk of n daily prices
// starting at 100.
func NewRandomWalk(ticker string, n int, drift, vol float64, seed uint64) domain.PriceSeries {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	prices := make([]float64, n)
	price := 100.0
	for i := range prices {
		prices[i] = price
		price *= math.Exp(drift + vol*rng.NormFloat64())
	}
	return NewPriceSeries(ticker, prices...)
}
