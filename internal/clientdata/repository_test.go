package clientdata

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// testSchema creates all tables needed for testing
const testSchema = `
CREATE TABLE price_history (key TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE current_prices (key TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
`

type cachedQuote struct {
	Ticker string  `msgpack:"ticker"`
	Price  float64 `msgpack:"price"`
}

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

func insertRaw(t *testing.T, db *sql.DB, table, key string, v interface{}, expiresAt int64) {
	t.Helper()
	blob, err := msgpack.Marshal(v)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO "+table+" (key, data, expires_at) VALUES (?, ?, ?)", key, blob, expiresAt)
	require.NoError(t, err)
}

func TestStore(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	err := repo.Store(TableCurrentPrices, "AAPL", cachedQuote{Ticker: "AAPL", Price: 123.45}, 7*24*time.Hour)
	require.NoError(t, err)

	var blob []byte
	var expiresAt int64
	err = db.QueryRow("SELECT data, expires_at FROM current_prices WHERE key = ?", "AAPL").Scan(&blob, &expiresAt)
	require.NoError(t, err)

	var parsed cachedQuote
	require.NoError(t, msgpack.Unmarshal(blob, &parsed))
	assert.Equal(t, "AAPL", parsed.Ticker)
	assert.Equal(t, 123.45, parsed.Price)

	expectedExpires := time.Now().Add(7 * 24 * time.Hour).Unix()
	assert.InDelta(t, expectedExpires, expiresAt, 5)
}

func TestStoreUpsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	require.NoError(t, repo.Store(TableCurrentPrices, "AAPL", cachedQuote{Price: 1}, time.Hour))
	require.NoError(t, repo.Store(TableCurrentPrices, "AAPL", cachedQuote{Price: 2}, time.Hour))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM current_prices WHERE key = ?", "AAPL").Scan(&count))
	assert.Equal(t, 1, count)

	var got cachedQuote
	found, err := repo.GetIfFresh(TableCurrentPrices, "AAPL", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2.0, got.Price)
}

func TestGetIfFresh_Expired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	insertRaw(t, db, TablePriceHistory, "AAPL", cachedQuote{Price: 9}, time.Now().Add(-time.Hour).Unix())

	var got cachedQuote
	found, err := repo.GetIfFresh(TablePriceHistory, "AAPL", &got)
	require.NoError(t, err)
	assert.False(t, found, "expired data should not be returned")

	// Get returns stale data for use when the upstream fails
	found, err = repo.Get(TablePriceHistory, "AAPL", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 9.0, got.Price)
}

func TestGet_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	var got cachedQuote
	found, err := repo.Get(TablePriceHistory, "NONEXISTENT", &got)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = repo.GetIfFresh(TablePriceHistory, "NONEXISTENT", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGet_CorruptBlob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	_, err := db.Exec("INSERT INTO current_prices (key, data, expires_at) VALUES (?, ?, ?)",
		"BAD", []byte{0xc1}, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)

	var got cachedQuote
	_, err = repo.Get(TableCurrentPrices, "BAD", &got)
	assert.Error(t, err)
}

func TestInvalidTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	var got cachedQuote

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Store", func() error { return repo.Store("holdings; DROP TABLE x", "k", 1, time.Hour) }},
		{"Get", func() error { _, err := repo.Get("nope", "k", &got); return err }},
		{"GetIfFresh", func() error { _, err := repo.GetIfFresh("nope", "k", &got); return err }},
		{"Delete", func() error { return repo.Delete("nope", "k") }},
		{"DeleteExpired", func() error { _, err := repo.DeleteExpired("nope"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid table name")
		})
	}
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Store(TablePriceHistory, "AAPL", cachedQuote{Price: 1}, time.Hour))
	require.NoError(t, repo.Delete(TablePriceHistory, "AAPL"))

	var got cachedQuote
	found, err := repo.Get(TablePriceHistory, "AAPL", &got)
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting a missing key is not an error
	assert.NoError(t, repo.Delete(TablePriceHistory, "AAPL"))
}

func TestDeleteAllExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	past := time.Now().Add(-time.Hour).Unix()
	future := time.Now().Add(time.Hour).Unix()

	insertRaw(t, db, TablePriceHistory, "OLD1", cachedQuote{}, past)
	insertRaw(t, db, TablePriceHistory, "NEW1", cachedQuote{}, future)
	insertRaw(t, db, TableCurrentPrices, "OLD2", cachedQuote{}, past)

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results[TablePriceHistory])
	assert.Equal(t, int64(1), results[TableCurrentPrices])

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM price_history").Scan(&count))
	assert.Equal(t, 1, count)
}
