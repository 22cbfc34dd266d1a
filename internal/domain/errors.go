package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidInput     = errors.New("invalid input")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRateLimited      = errors.New("rate limited")
	ErrLockHeld         = errors.New("lock already held")
)

// LimitError is a structured risk-gate rejection. Check names the gate check
// that failed; Reason is the human-readable explanation surfaced on the
// rejection event.
type LimitError struct {
	Check  string
	Reason string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("risk limit (%s): %s", e.Check, e.Reason)
}

// NewLimitError builds a LimitError with a formatted reason.
func NewLimitError(check, format string, args ...any) *LimitError {
	return &LimitError{Check: check, Reason: fmt.Sprintf(format, args...)}
}

// ExecutionError wraps a failed trade placement. The proposal is discarded;
// no position is opened and the core does not retry.
type ExecutionError struct {
	Venue string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed on %s: %v", e.Venue, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
