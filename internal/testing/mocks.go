package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// MockPriceSource is an in-memory PriceSource. Tickers without a series are
// reported as failed.
type MockPriceSource struct {
	mu     sync.RWMutex
	series map[string]domain.PriceSeries
	quotes map[string]float64
	err       error
	calls     int
	refreshes int
}

// NewMockPriceSource creates a new mock price source
func NewMockPriceSource(series ...domain.PriceSeries) *MockPriceSource {
	m := &MockPriceSource{
		series: make(map[string]domain.PriceSeries),
		quotes: make(map[string]float64),
	}
	for _, s := range series {
		m.series[s.Ticker] = s
		if n := len(s.Points); n > 0 {
			m.quotes[s.Ticker] = s.Points[n-1].Price
		}
	}
	return m
}

// SetError makes every Fetch fail with err.
func (m *MockPriceSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Fetch was called.
func (m *MockPriceSource) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Refreshes returns how many times Refresh was called.
func (m *MockPriceSource) Refreshes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshes
}

// Refresh behaves like Fetch; the mock has no cache to bypass.
func (m *MockPriceSource) Refresh(ctx context.Context, tickers []string, start, end time.Time) (*domain.PriceFetchResult, error) {
	m.mu.Lock()
	m.refreshes++
	m.mu.Unlock()
	return m.Fetch(ctx, tickers, start, end)
}

// Fetch returns the stored series trimmed to [start, end].
func (m *MockPriceSource) Fetch(ctx context.Context, tickers []string, start, end time.Time) (*domain.PriceFetchResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	result := &domain.PriceFetchResult{}
	for _, ticker := range tickers {
		s, ok := m.series[ticker]
		if !ok {
			result.Failed = append(result.Failed, &domain.DataUnavailableError{Ticker: ticker, Reason: "unknown ticker"})
			continue
		}
		trimmed := domain.PriceSeries{Ticker: ticker}
		for _, p := range s.Points {
			if p.Time.Before(start) || p.Time.After(end) {
				continue
			}
			trimmed.Points = append(trimmed.Points, p)
		}
		result.Series = append(result.Series, trimmed)
	}
	return result, nil
}

// LatestPrice returns the last price of the stored series.
func (m *MockPriceSource) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.quotes[ticker]
	if !ok {
		return 0, &domain.DataUnavailableError{Ticker: ticker, Reason: "no quote"}
	}
	return p, nil
}

// MemoryHoldingsStore is an in-memory HoldingsStore.
type MemoryHoldingsStore struct {
	mu       sync.RWMutex
	holdings map[string]domain.HoldingsMap
	err      error
}

// NewMemoryHoldingsStore creates an empty store
func NewMemoryHoldingsStore() *MemoryHoldingsStore {
	return &MemoryHoldingsStore{holdings: make(map[string]domain.HoldingsMap)}
}

// SetError makes every call fail with err.
func (m *MemoryHoldingsStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Load returns a copy of the user's holdings.
func (m *MemoryHoldingsStore) Load(ctx context.Context, userID string) (domain.HoldingsMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(domain.HoldingsMap, len(m.holdings[userID]))
	for k, v := range m.holdings[userID] {
		out[k] = v
	}
	return out, nil
}

// Save replaces the user's holdings.
func (m *MemoryHoldingsStore) Save(ctx context.Context, userID string, holdings domain.HoldingsMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if err := holdings.Validate(); err != nil {
		return fmt.Errorf("invalid holdings: %w", err)
	}
	copied := make(domain.HoldingsMap, len(holdings))
	for k, v := range holdings {
		copied[k] = v
	}
	m.holdings[userID] = copied
	return nil
}
