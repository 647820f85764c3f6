// Package holdings persists user portfolios in SQLite.
package holdings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrHoldingNotFound is returned when removing a ticker the user does not hold.
	ErrHoldingNotFound = errors.New("holding not found")
	// ErrInvalidHolding marks rejected input (empty ticker, bad quantity).
	ErrInvalidHolding = errors.New("invalid holding")
)

// Repository stores user holdings in the holdings database.
// Quantities are kept as decimal text so repeated additions stay exact.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new holdings repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "holdings").Logger(),
	}
}

// NormalizeTicker trims and upper-cases a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Load returns the holdings of a user. A user without holdings gets an
// empty map, not an error.
func (r *Repository) Load(ctx context.Context, userID string) (domain.HoldingsMap, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT ticker, quantity FROM holdings WHERE user_id = ? ORDER BY ticker", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	holdings := make(domain.HoldingsMap)
	for rows.Next() {
		var ticker, qtyText string
		if err := rows.Scan(&ticker, &qtyText); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		qty, err := decimal.NewFromString(qtyText)
		if err != nil {
			return nil, fmt.Errorf("invalid stored quantity %q for %s: %w", qtyText, ticker, err)
		}
		holdings[ticker] = qty.InexactFloat64()
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// Save replaces all holdings of a user in one transaction. Tickers that
// normalize to the same symbol ("aapl" and "AAPL") are merged by summing
// their quantities.
func (r *Repository) Save(ctx context.Context, userID string, holdings domain.HoldingsMap) error {
	if err := holdings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHolding, err)
	}

	merged := make(map[string]decimal.Decimal, len(holdings))
	for ticker, qty := range holdings {
		symbol := NormalizeTicker(ticker)
		if symbol == "" {
			return fmt.Errorf("%w: ticker is required", ErrInvalidHolding)
		}
		merged[symbol] = merged[symbol].Add(decimal.NewFromFloat(qty))
	}
	symbols := make([]string, 0, len(merged))
	for symbol := range merged {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	now := time.Now().Unix()
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM holdings WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("failed to clear holdings: %w", err)
		}
		for _, symbol := range symbols {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO holdings (user_id, ticker, quantity, updated_at) VALUES (?, ?, ?, ?)",
				userID, symbol, merged[symbol].String(), now,
			); err != nil {
				return fmt.Errorf("failed to insert holding %s: %w", symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Str("user_id", userID).
		Int("positions", len(symbols)).
		Msg("Saved holdings")

	return nil
}

// Add increments the quantity held of ticker, creating the position when
// it does not exist yet. Returns the new total.
func (r *Repository) Add(ctx context.Context, userID, ticker string, quantity decimal.Decimal) (decimal.Decimal, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return decimal.Zero, fmt.Errorf("%w: ticker is required", ErrInvalidHolding)
	}
	if !quantity.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidHolding, quantity)
	}

	var total decimal.Decimal
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		current := decimal.Zero

		var qtyText string
		err := tx.QueryRowContext(ctx,
			"SELECT quantity FROM holdings WHERE user_id = ? AND ticker = ?", userID, ticker,
		).Scan(&qtyText)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to read holding: %w", err)
		default:
			current, err = decimal.NewFromString(qtyText)
			if err != nil {
				return fmt.Errorf("invalid stored quantity %q: %w", qtyText, err)
			}
		}

		total = current.Add(quantity)
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO holdings (user_id, ticker, quantity, updated_at) VALUES (?, ?, ?, ?)`,
			userID, ticker, total.String(), time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert holding: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	r.log.Info().
		Str("user_id", userID).
		Str("ticker", ticker).
		Str("added", quantity.String()).
		Str("total", total.String()).
		Msg("Added to holding")

	return total, nil
}

// Remove deletes a position.
func (r *Repository) Remove(ctx context.Context, userID, ticker string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM holdings WHERE user_id = ? AND ticker = ?", userID, NormalizeTicker(ticker))
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrHoldingNotFound, NormalizeTicker(ticker))
	}

	return nil
}

// AllTickers returns every ticker held by any user.
func (r *Repository) AllTickers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT ticker FROM holdings ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}

	return tickers, nil
}
