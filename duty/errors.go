/*
errors.go - Error types for the duty core

PURPOSE:
  Every error the services hand back is one of:
  1. A conflict (person already clocked in)
  2. A validation failure (empty ids, month out of range)
  3. A wrapped store failure

  Expected absence (not clocked in, no rollup yet) is NOT an error.
  Services return nil, false or zero values for it.

USAGE:
  if duty.IsConflict(err) {
      // tell the person they are already on duty
  }

SEE ALSO:
  - store.go: Implementations return ErrAlreadyActive on duplicate insert
  - api/handlers.go: Maps these to HTTP status codes
*/
package duty

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyActive is returned when a person clocks in twice.
	// Stores return it when the active_sessions key is violated.
	ErrAlreadyActive = errors.New("already clocked in")

	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStoreFailure marks errors that came out of the persistence layer.
	ErrStoreFailure = errors.New("store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AlreadyActiveError names the person whose clock-in was rejected.
type AlreadyActiveError struct {
	PersonID string
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("person %s is already clocked in", e.PersonID)
}

func (e *AlreadyActiveError) Unwrap() error {
	return ErrAlreadyActive
}

// ValidationError describes a rejected argument.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// StoreError wraps a persistence failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStoreFailure) match any StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreFailure
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func required(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "must not be empty"}
	}
	return nil
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict returns true if the error is a duplicate clock-in.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyActive)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}
