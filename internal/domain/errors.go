package domain

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError indicates the caller's input is wrong. Never retryable.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ProcessingError indicates a gateway or infrastructure failure. The
// Retryable flag distinguishes transient failures from permanent ones.
type ProcessingError struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// EscrowError indicates a state-machine violation, e.g. capturing an escrow
// that is not held.
type EscrowError struct {
	IntentID string
	Status   EscrowStatus
	Message  string
}

func (e *EscrowError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("escrow %s (status %s): %s", e.IntentID, e.Status, e.Message)
	}
	return fmt.Sprintf("escrow %s: %s", e.IntentID, e.Message)
}

// CircuitOpenError is returned without contacting a dependency that is
// presumed down. The caller may retry after RetryAt.
type CircuitOpenError struct {
	Dependency string
	RetryAt    time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s unavailable: circuit open until %s", e.Dependency, e.RetryAt.Format(time.RFC3339))
}

// IsRetryable reports whether the error represents a transient condition
// that a retry could resolve. Validation and escrow state errors are never
// retryable; an open circuit is, once the cooldown elapses.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	var ce *CircuitOpenError
	if errors.As(err, &ce) {
		return true
	}
	return false
}

// ErrorCode maps an error to its audit/code representation.
func ErrorCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "validation_error"
	}
	var ee *EscrowError
	if errors.As(err, &ee) {
		return "escrow_error"
	}
	var ce *CircuitOpenError
	if errors.As(err, &ce) {
		return "circuit_open"
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return "internal_error"
}
