package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicatePosition is returned when opening a position for a
	// (mint, wallet) pair that already has one open.
	ErrDuplicatePosition = errors.New("position already open for mint and wallet")
	// ErrPositionNotFound is returned for lookups of unknown positions.
	ErrPositionNotFound = errors.New("position not found")
	// ErrFeedUnavailable marks a transient price feed failure. The tick is
	// skipped; the error never stands in for a price.
	ErrFeedUnavailable = errors.New("price feed unavailable")
	// ErrResolutionUnknown marks a transient venue resolution failure.
	// Execution is deferred to the next tick.
	ErrResolutionUnknown = errors.New("venue resolution unknown")
	// ErrInvariantViolation marks structural corruption (oversell attempt,
	// quantity underflow). Fatal to the owning position only; the position
	// is frozen for manual review.
	ErrInvariantViolation = errors.New("position invariant violation")
	// ErrEngineStopped is returned for operations on a stopped engine.
	ErrEngineStopped = errors.New("engine stopped")
)

// ExecErrorKind classifies trade execution failures.
type ExecErrorKind string

const (
	ExecErrorTimeout               ExecErrorKind = "timeout"
	ExecErrorSlippageExceeded      ExecErrorKind = "slippage_exceeded"
	ExecErrorInsufficientLiquidity ExecErrorKind = "insufficient_liquidity"
	ExecErrorRejected              ExecErrorKind = "rejected"
)

// ExecutionError is a classified trade execution failure. Timeouts are
// transient and may be retried; on-chain rejects are final for the attempt
// and surface to the engine, which re-evaluates on the next tick.
type ExecutionError struct {
	Kind    ExecErrorKind
	Message string
}

func (e *ExecutionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("execution failed: %s", e.Kind)
	}
	return fmt.Sprintf("execution failed: %s: %s", e.Kind, e.Message)
}

// Transient reports whether the failure may be retried by the executor.
func (e *ExecutionError) Transient() bool {
	return e.Kind == ExecErrorTimeout
}

// AsExecutionError unwraps err into an *ExecutionError if it is one.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr, true
	}
	return nil, false
}
