package store

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrConstraint is returned when a required field is missing or a
	// referenced row does not exist.
	ErrConstraint = errors.New("constraint violation")

	// ErrNotFound is returned when an update or delete targets a row
	// that does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable is returned when the backing engine fails at the
	// I/O level. The failure is retryable; retry policy belongs to the
	// caller.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// Error wraps errors with operation context.
type Error struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("store: %v", e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Wrap adds operation context to an error. Backends use it so every
// failure carries the operation it happened in.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Unavailable marks an engine-level failure as retryable unless it is
// already part of the taxonomy.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConstraint) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrStoreClosed) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
