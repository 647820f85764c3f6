// Package yahoo fetches daily price history from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/portfolio-analytics/internal/clientdata"
	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public Yahoo Finance query host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Client is a Yahoo Finance chart API client. It implements
// domain.PriceSource, domain.PriceRefresher and domain.QuoteSource.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new Yahoo Finance client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log:       log.With().Str("client", "yahoo").Logger(),
		cacheRepo: cacheRepo,
	}
}

// chartResponse is the subset of the v8 chart payload we read.
// Yahoo encodes missing bars as null, which decodes to 0.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// cachedSeries is the structure stored in the cache
type cachedSeries struct {
	Times  []int64   `msgpack:"t"`
	Prices []float64 `msgpack:"p"`
}

type cachedQuote struct {
	Price float64 `msgpack:"p"`
}

// Fetch retrieves adjusted daily closes for each ticker between start and end.
// Tickers that fail are reported in the result; an error is returned only
// when no ticker could be fetched.
func (c *Client) Fetch(ctx context.Context, tickers []string, start, end time.Time) (*domain.PriceFetchResult, error) {
	return c.fetch(ctx, tickers, start, end, false)
}

// Refresh is Fetch without the fresh-cache shortcut: every ticker is
// requested upstream and the response replaces the cached entry. Stale
// cache entries are still served when the API fails.
func (c *Client) Refresh(ctx context.Context, tickers []string, start, end time.Time) (*domain.PriceFetchResult, error) {
	return c.fetch(ctx, tickers, start, end, true)
}

func (c *Client) fetch(ctx context.Context, tickers []string, start, end time.Time, refresh bool) (*domain.PriceFetchResult, error) {
	result := &domain.PriceFetchResult{}

	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		points, err := c.history(ctx, ticker, start, end, refresh)
		if err != nil {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("Price history unavailable")
			result.Failed = append(result.Failed, asUnavailable(ticker, err))
			continue
		}
		result.Series = append(result.Series, domain.PriceSeries{Ticker: ticker, Points: points})
	}

	if len(tickers) > 0 && len(result.Series) == 0 {
		return result, &domain.DataUnavailableError{
			Ticker: strings.Join(tickers, ","),
			Reason: "no ticker could be fetched",
		}
	}

	return result, nil
}

// history returns cached or freshly fetched points. With refresh set the
// fresh cache is skipped.
// If the API fails, stale cached data is used when available (stale data > no data).
func (c *Client) history(ctx context.Context, ticker string, start, end time.Time, refresh bool) ([]domain.PricePoint, error) {
	cacheKey := fmt.Sprintf("%s:%s:%s", ticker, start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))

	if c.cacheRepo != nil && !refresh {
		var cached cachedSeries
		if ok, err := c.cacheRepo.GetIfFresh(clientdata.TablePriceHistory, cacheKey, &cached); err == nil && ok {
			c.log.Debug().Str("ticker", ticker).Msg("Cache hit")
			return cached.points(), nil
		}
	}

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "div,split")

	chart, err := c.chart(ctx, ticker, params)
	if err == nil {
		var points []domain.PricePoint
		points, err = chart.points()
		if err == nil {
			c.store(clientdata.TablePriceHistory, cacheKey, newCachedSeries(points), clientdata.TTLPriceHistory)
			c.log.Info().
				Str("ticker", ticker).
				Int("count", len(points)).
				Msg("Fetched historical prices")
			return points, nil
		}
	}

	if c.cacheRepo != nil {
		var stale cachedSeries
		if ok, cacheErr := c.cacheRepo.Get(clientdata.TablePriceHistory, cacheKey, &stale); cacheErr == nil && ok {
			c.log.Warn().
				Err(err).
				Str("ticker", ticker).
				Msg("API failed, using stale cached prices")
			return stale.points(), nil
		}
	}

	return nil, err
}

// LatestPrice returns the regular market price of ticker.
func (c *Client) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	if c.cacheRepo != nil {
		var cached cachedQuote
		if ok, err := c.cacheRepo.GetIfFresh(clientdata.TableCurrentPrices, ticker, &cached); err == nil && ok {
			return cached.Price, nil
		}
	}

	params := url.Values{}
	params.Set("range", "5d")
	params.Set("interval", "1d")

	price, err := c.latest(ctx, ticker, params)
	if err == nil {
		c.store(clientdata.TableCurrentPrices, ticker, cachedQuote{Price: price}, clientdata.TTLCurrentPrice)
		return price, nil
	}

	if c.cacheRepo != nil {
		var stale cachedQuote
		if ok, cacheErr := c.cacheRepo.Get(clientdata.TableCurrentPrices, ticker, &stale); cacheErr == nil && ok {
			c.log.Warn().Err(err).Str("ticker", ticker).Msg("API failed, using stale cached quote")
			return stale.Price, nil
		}
	}

	return 0, asUnavailable(ticker, err)
}

func (c *Client) latest(ctx context.Context, ticker string, params url.Values) (float64, error) {
	chart, err := c.chart(ctx, ticker, params)
	if err != nil {
		return 0, err
	}
	if p := chart.Chart.Result[0].Meta.RegularMarketPrice; p > 0 {
		return p, nil
	}
	points, err := chart.points()
	if err != nil {
		return 0, err
	}
	return points[len(points)-1].Price, nil
}

func (c *Client) chart(ctx context.Context, ticker string, params url.Values) (*chartResponse, error) {
	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(ticker) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &domain.DataUnavailableError{Ticker: ticker, Reason: "unknown ticker"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.DataUnavailableError{Ticker: ticker, Reason: "rate limited"}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Chart.Error != nil {
		return nil, &domain.DataUnavailableError{Ticker: ticker, Reason: result.Chart.Error.Description}
	}
	if len(result.Chart.Result) == 0 {
		return nil, &domain.DataUnavailableError{Ticker: ticker, Reason: "empty chart result"}
	}

	return &result, nil
}

// points extracts (time, price) pairs, preferring adjusted closes and
// skipping null bars.
func (r *chartResponse) points() ([]domain.PricePoint, error) {
	data := r.Chart.Result[0]
	if len(data.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no quote data in response")
	}

	closes := data.Indicators.Quote[0].Close
	var adj []float64
	if len(data.Indicators.AdjClose) > 0 {
		adj = data.Indicators.AdjClose[0].AdjClose
	}

	points := make([]domain.PricePoint, 0, len(data.Timestamp))
	for i, ts := range data.Timestamp {
		price := 0.0
		if i < len(adj) {
			price = adj[i]
		}
		if price == 0 && i < len(closes) {
			price = closes[i]
		}
		if price <= 0 {
			continue
		}
		points = append(points, domain.PricePoint{Time: time.Unix(ts, 0).UTC(), Price: price})
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("no valid price points")
	}
	return points, nil
}

func (c *Client) store(table, key string, v interface{}, ttl time.Duration) {
	if c.cacheRepo == nil {
		return
	}
	if err := c.cacheRepo.Store(table, key, v, ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
	}
}

func newCachedSeries(points []domain.PricePoint) cachedSeries {
	s := cachedSeries{
		Times:  make([]int64, len(points)),
		Prices: make([]float64, len(points)),
	}
	for i, p := range points {
		s.Times[i] = p.Time.Unix()
		s.Prices[i] = p.Price
	}
	return s
}

func (s cachedSeries) points() []domain.PricePoint {
	points := make([]domain.PricePoint, 0, len(s.Times))
	for i := range s.Times {
		if i >= len(s.Prices) {
			break
		}
		points = append(points, domain.PricePoint{Time: time.Unix(s.Times[i], 0).UTC(), Price: s.Prices[i]})
	}
	return points
}

func asUnavailable(ticker string, err error) *domain.DataUnavailableError {
	var du *domain.DataUnavailableError
	if errors.As(err, &du) {
		return du
	}
	return &domain.DataUnavailableError{Ticker: ticker, Err: err}
}
