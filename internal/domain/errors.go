package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable means the gateway is disconnected or returned
	// nothing usable. The affected symbol is skipped, never traded blind.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInsufficientHistory means fewer candles than the analysis lookback.
	ErrInsufficientHistory = errors.New("insufficient candle history")

	// ErrAdvisoryUnavailable means the advisory service is down or has no
	// model loaded. Treated as an advisor rejection, never bypassed.
	ErrAdvisoryUnavailable = errors.New("advisory service unavailable")
)

// ValidationRejectedError terminates one symbol's cycle at a named stage.
type ValidationRejectedError struct {
	Stage  string
	Reason string
}

func (e *ValidationRejectedError) Error() string {
	return fmt.Sprintf("validation rejected at %s: %s", e.Stage, e.Reason)
}

// ExecutionRejectedError means the gateway declined an order. No position is
// created.
type ExecutionRejectedError struct {
	OrderID string
	Reason  string
}

func (e *ExecutionRejectedError) Error() string {
	return fmt.Sprintf("order %s rejected: %s", e.OrderID, e.Reason)
}

// SizingInvalidError means the computed quantity was zero or negative.
// Execution is aborted before any order is placed.
type SizingInvalidError struct {
	Lot float64
}

func (e *SizingInvalidError) Error() string {
	return fmt.Sprintf("invalid lot size %.4f", e.Lot)
}
