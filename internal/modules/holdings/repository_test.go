package holdings

import (
	"context"
	"database/sql"
	"testing"

	"github.com/aristath/portfolio-analytics/internal/domain"
	testingutil "github.com/aristath/portfolio-analytics/internal/testing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHoldingsDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE holdings (
			user_id TEXT NOT NULL,
			ticker TEXT NOT NULL,
			quantity TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, ticker)
		);
	`)
	require.NoError(t, err)

	return db
}

func newTestRepo(t *testing.T) (*Repository, func()) {
	db := setupHoldingsDB(t)
	return NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled)), func() { db.Close() }
}

func TestRepository_LoadEmpty(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	holdings, err := repo.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, holdings)
	assert.NotNil(t, holdings)
}

func TestRepository_SaveAndLoad(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "alice", domain.HoldingsMap{"AAPL": 10, "msft": 2.5}))
	require.NoError(t, repo.Save(ctx, "bob", domain.HoldingsMap{"GOOG": 1}))

	holdings, err := repo.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldingsMap{"AAPL": 10, "MSFT": 2.5}, holdings)

	// Save replaces rather than merges
	require.NoError(t, repo.Save(ctx, "alice", domain.HoldingsMap{"TSLA": 3}))
	holdings, err = repo.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldingsMap{"TSLA": 3}, holdings)

	tickers, err := repo.AllTickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GOOG", "TSLA"}, tickers)
}

func TestRepository_SaveRejectsNegative(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()

	err := repo.Save(context.Background(), "alice", domain.HoldingsMap{"AAPL": -1})
	assert.Error(t, err)
}

func TestRepository_SaveMergesCaseVariants(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "alice", domain.HoldingsMap{"aapl": 1, "AAPL": 2, " Msft ": 0.1, "MSFT": 0.2}))

	holdings, err := repo.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldingsMap{"AAPL": 3, "MSFT": 0.3}, holdings)

	err = repo.Save(ctx, "alice", domain.HoldingsMap{"   ": 1})
	assert.ErrorIs(t, err, ErrInvalidHolding)
}

func TestRepository_AddIncrements(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	total, err := repo.Add(ctx, "alice", " aapl ", decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.Equal(t, "5", total.String())

	total, err = repo.Add(ctx, "alice", "AAPL", decimal.RequireFromString("0.1"))
	require.NoError(t, err)
	assert.Equal(t, "5.1", total.String())

	total, err = repo.Add(ctx, "alice", "AAPL", decimal.RequireFromString("0.2"))
	require.NoError(t, err)
	assert.Equal(t, "5.3", total.String())

	holdings, err := repo.Load(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 5.3, holdings["AAPL"], 1e-12)
}

func TestRepository_AddValidation(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.Add(ctx, "alice", "AAPL", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidHolding)

	_, err = repo.Add(ctx, "alice", "   ", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInvalidHolding)
}

func TestRepository_Remove(t *testing.T) {
	repo, cleanup := newTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "alice", domain.HoldingsMap{"AAPL": 1, "MSFT": 1}))
	require.NoError(t, repo.Remove(ctx, "alice", "aapl"))

	holdings, err := repo.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldingsMap{"MSFT": 1}, holdings)

	err = repo.Remove(ctx, "alice", "AAPL")
	assert.ErrorIs(t, err, ErrHoldingNotFound)
}

func TestRepository_WithMigratedSchema(t *testing.T) {
	db, cleanup := testingutil.NewTestDB(t, "holdings")
	defer cleanup()

	repo := NewRepository(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
	ctx := context.Background()

	_, err := repo.Add(ctx, "alice", "AAPL", decimal.NewFromInt(2))
	require.NoError(t, err)

	holdings, err := repo.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldingsMap{"AAPL": 2}, holdings)
}
