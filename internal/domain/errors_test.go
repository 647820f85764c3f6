package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"insufficient data", &InsufficientDataError{Operation: "returns", Required: 2, Got: 1}, ErrInsufficientData},
		{"insufficient assets", &InsufficientAssetsError{Operation: "max_sharpe", Required: 2, Got: 1}, ErrInsufficientAssets},
		{"not converged", &OptimizationDidNotConvergeError{Objective: "min_variance"}, ErrOptimizationDidNotConverge},
		{"misaligned", &MisalignedSeriesError{Ticker: "AAPL", Expected: 10, Got: 9}, ErrMisalignedSeries},
		{"unavailable", &DataUnavailableError{Ticker: "XXXX", Reason: "unknown ticker"}, ErrDataUnavailable},
		{"resource", &ResourceLimitExceededError{Resource: "iterations", Limit: 10, Requested: 11}, ErrResourceLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("failed to run analysis: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestOptimizationBudgetExhaustedMatchesResourceLimit(t *testing.T) {
	err := error(&OptimizationDidNotConvergeError{Objective: "max_sharpe", Iterations: 100, BudgetExhausted: true})

	assert.ErrorIs(t, err, ErrOptimizationDidNotConverge)
	assert.ErrorIs(t, err, ErrResourceLimitExceeded)

	plain := error(&OptimizationDidNotConvergeError{Objective: "max_sharpe", Reason: "non-finite objective"})
	assert.False(t, errors.Is(plain, ErrResourceLimitExceeded))
}

func TestDataUnavailableErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("status 429")
	err := &DataUnavailableError{Ticker: "MSFT", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrDataUnavailable)

	var target *DataUnavailableError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &target))
	assert.Equal(t, "MSFT", target.Ticker)
}
