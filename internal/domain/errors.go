package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification with errors.Is.
var (
	ErrInsufficientData           = errors.New("insufficient data")
	ErrInsufficientAssets         = errors.New("insufficient assets")
	ErrOptimizationDidNotConverge = errors.New("optimization did not converge")
	ErrMisalignedSeries           = errors.New("misaligned series")
	ErrDataUnavailable            = errors.New("data unavailable")
	ErrResourceLimitExceeded      = errors.New("resource limit exceeded")
)

// InsufficientDataError reports an input with too few observations.
type InsufficientDataError struct {
	Operation string
	Required  int
	Got       int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: %s: need at least %d observations, got %d",
		ErrInsufficientData, e.Operation, e.Required, e.Got)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// InsufficientAssetsError reports a computation that needs more assets.
type InsufficientAssetsError struct {
	Operation string
	Required  int
	Got       int
}

func (e *InsufficientAssetsError) Error() string {
	return fmt.Sprintf("%s: %s requires at least %d assets, got %d",
		ErrInsufficientAssets, e.Operation, e.Required, e.Got)
}

func (e *InsufficientAssetsError) Unwrap() error {
	return ErrInsufficientAssets
}

// OptimizationDidNotConvergeError is returned instead of an unchecked weight
// vector. BudgetExhausted marks a run stopped by its iteration cap; such an
// error also matches ErrResourceLimitExceeded.
type OptimizationDidNotConvergeError struct {
	Objective       string
	Iterations      int
	Residual        float64
	BudgetExhausted bool
	Reason          string
}

func (e *OptimizationDidNotConvergeError) Error() string {
	msg := fmt.Sprintf("%s: %s after %d iterations (residual %.3g)",
		ErrOptimizationDidNotConverge, e.Objective, e.Iterations, e.Residual)
	if e.BudgetExhausted {
		msg += ": iteration budget exhausted"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *OptimizationDidNotConvergeError) Unwrap() []error {
	if e.BudgetExhausted {
		return []error{ErrOptimizationDidNotConverge, ErrResourceLimitExceeded}
	}
	return []error{ErrOptimizationDidNotConverge}
}

// MisalignedSeriesError reports asset series that do not share a timeline.
type MisalignedSeriesError struct {
	Ticker   string
	Expected int
	Got      int
	Reason   string
}

func (e *MisalignedSeriesError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s: %s", ErrMisalignedSeries, e.Ticker, e.Reason)
	}
	return fmt.Sprintf("%s: %s has %d periods, expected %d",
		ErrMisalignedSeries, e.Ticker, e.Got, e.Expected)
}

func (e *MisalignedSeriesError) Unwrap() error {
	return ErrMisalignedSeries
}

// DataUnavailableError reports a ticker the price source could not deliver.
type DataUnavailableError struct {
	Ticker string
	Reason string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrDataUnavailable, e.Ticker)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataUnavailableError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDataUnavailable, e.Err}
	}
	return []error{ErrDataUnavailable}
}

// ResourceLimitExceededError reports a request above a configured cap.
type ResourceLimitExceededError struct {
	Resource  string
	Limit     int
	Requested int
}

func (e *ResourceLimitExceededError) Error() string {
	return fmt.Sprintf("%s: %s requested %d, limit %d",
		ErrResourceLimitExceeded, e.Resource, e.Requested, e.Limit)
}

func (e *ResourceLimitExceededError) Unwrap() error {
	return ErrResourceLimitExceeded
}
