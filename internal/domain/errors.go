package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers classify failures with errors.Is.
var (
	// ErrValidation marks a request rejected at intake. Nothing is persisted.
	ErrValidation = errors.New("validation error")

	// ErrPriceUnavailable marks a missing quote. Transient.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrExecutionRejected marks an executor refusal. The order fails.
	ErrExecutionRejected = errors.New("execution rejected")

	// ErrNotCancellable marks an order that is terminal or already claimed.
	ErrNotCancellable = errors.New("order not cancellable")

	// ErrNotFound marks an unknown order id.
	ErrNotFound = errors.New("order not found")

	// ErrConflict marks a lost compare-and-set in the order store.
	ErrConflict = errors.New("order state conflict")
)

// Invalidf returns an error wrapping ErrValidation.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Rejectedf returns an error wrapping ErrExecutionRejected.
func Rejectedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExecutionRejected, fmt.Sprintf(format, args...))
}
