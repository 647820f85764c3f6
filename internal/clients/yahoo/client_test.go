package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/portfolio-analytics/internal/clientdata"
	"github.com/aristath/portfolio-analytics/internal/domain"
	testingutil "github.com/aristath/portfolio-analytics/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chartAAPL = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "AAPL", "regularMarketPrice": 190.5},
      "timestamp": [1704153600, 1704240000, 1704326400, 1704412800],
      "indicators": {
        "quote": [{"close": [185.0, null, 182.0, 181.0]}],
        "adjclose": [{"adjclose": [184.0, null, 181.5, null]}]
      }
    }],
    "error": null
  }
}`

const chartNotFound = `{"chart": {"result": null, "error": {"code": "Not Found", "description": "No data found, symbol may be delisted"}}}`

func newTestServer(t *testing.T, hits *int32, fail *atomic.Bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if fail != nil && fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/AAPL"):
			assert.Equal(t, "1d", r.URL.Query().Get("interval"))
			_, _ = w.Write([]byte(chartAAPL))
		case strings.HasSuffix(r.URL.Path, "/LIMIT"):
			w.WriteHeader(http.StatusTooManyRequests)
		case strings.HasSuffix(r.URL.Path, "/DELISTED"):
			_, _ = w.Write([]byte(chartNotFound))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newCache(t *testing.T) (*clientdata.Repository, func()) {
	db, cleanup := testingutil.NewTestDB(t, "cache")
	return clientdata.NewRepository(db.Conn()), cleanup
}

func TestFetch_ParsesChart(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits, nil)
	defer srv.Close()

	client := NewClient(srv.URL, nil, zerolog.Nop())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	res, err := client.Fetch(context.Background(), []string{"AAPL"}, start, start.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	assert.Empty(t, res.Failed)

	points := res.Series[0].Points
	require.Len(t, points, 3, "null bar is skipped")
	assert.Equal(t, 184.0, points[0].Price, "adjusted close preferred")
	assert.Equal(t, 181.5, points[1].Price)
	assert.Equal(t, 181.0, points[2].Price, "close used when adjclose is null")
	assert.Equal(t, time.Unix(1704153600, 0).UTC(), points[0].Time)
}

func TestFetch_PartialFailure(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits, nil)
	defer srv.Close()

	client := NewClient(srv.URL, nil, zerolog.Nop())
	now := time.Now()

	res, err := client.Fetch(context.Background(), []string{"AAPL", "UNKNOWN", "LIMIT", "DELISTED"}, now.AddDate(0, -1, 0), now)
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	assert.Equal(t, []string{"UNKNOWN", "LIMIT", "DELISTED"}, res.FailedTickers())

	for _, f := range res.Failed {
		assert.ErrorIs(t, f, domain.ErrDataUnavailable)
	}
	assert.Equal(t, "rate limited", res.Failed[1].Reason)
	assert.Contains(t, res.Failed[2].Reason, "delisted")
}

func TestFetch_AllFailed(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits, nil)
	defer srv.Close()

	client := NewClient(srv.URL, nil, zerolog.Nop())
	now := time.Now()

	res, err := client.Fetch(context.Background(), []string{"UNKNOWN"}, now.AddDate(0, -1, 0), now)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	require.NotNil(t, res)
	assert.Len(t, res.Failed, 1)
}

func TestFetch_CacheAndStaleFallback(t *testing.T) {
	var hits int32
	var fail atomic.Bool
	srv := newTestServer(t, &hits, &fail)
	defer srv.Close()

	cache, cleanup := newCache(t)
	defer cleanup()

	client := NewClient(srv.URL, cache, zerolog.Nop())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 10)

	_, err := client.Fetch(context.Background(), []string{"AAPL"}, start, end)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// Fresh cache hit: no request
	res, err := client.Fetch(context.Background(), []string{"AAPL"}, start, end)
	require.NoError(t, err)
	assert.Len(t, res.Series[0].Points, 3)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// Expire the entry, then fail upstream: stale data is served
	key := "AAPL:2024-01-01:2024-01-11"
	var stale cachedSeries
	found, err := cache.Get(clientdata.TablePriceHistory, key, &stale)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, cache.Store(clientdata.TablePriceHistory, key, stale, -time.Hour))

	fail.Store(true)
	res, err = client.Fetch(context.Background(), []string{"AAPL"}, start, end)
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	assert.Len(t, res.Series[0].Points, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRefresh_BypassesFreshCache(t *testing.T) {
	var hits int32
	var fail atomic.Bool
	srv := newTestServer(t, &hits, &fail)
	defer srv.Close()

	cache, cleanup := newCache(t)
	defer cleanup()

	client := NewClient(srv.URL, cache, zerolog.Nop())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 10)

	_, err := client.Fetch(context.Background(), []string{"AAPL"}, start, end)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	res, err := client.Refresh(context.Background(), []string{"AAPL"}, start, end)
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	// Upstream down: the cached copy still answers
	fail.Store(true)
	res, err = client.Refresh(context.Background(), []string{"AAPL"}, start, end)
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	assert.Len(t, res.Series[0].Points, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetch_CancelledContext(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, []string{"AAPL"}, time.Now(), time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLatestPrice(t *testing.T) {
	var hits int32
	srv := newTestServer(t, &hits, nil)
	defer srv.Close()

	cache, cleanup := newCache(t)
	defer cleanup()

	client := NewClient(srv.URL, cache, zerolog.Nop())

	price, err := client.LatestPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.5, price)

	price, err = client.LatestPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.5, price)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second call served from cache")

	_, err = client.LatestPrice(context.Background(), "UNKNOWN")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}
