package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// TransientError wraps a failure that is expected to clear on its own
// (network timeouts, connection resets, lock contention). The retry
// package recognizes it through the IsRetryable method.
type TransientError struct {
	Op  string
	Err error
}

// Transient wraps err as a retryable failure of operation op.
func Transient(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) IsRetryable() bool { return true }

// ValidationError reports a source record with a missing or malformed
// required field. The record is skipped, never zero-filled.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: field %q %s", e.Field, e.Reason)
}

func (e *ValidationError) IsRetryable() bool { return false }

// ConflictError reports an ambiguous dimension attribute state that
// needs operator attention, e.g. an incoming snapshot missing a tracked
// attribute so equality with the current version cannot be determined.
type ConflictError struct {
	DimensionType string
	NaturalKey    string
	Reason        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("dimension conflict for %s/%s: %s", e.DimensionType, e.NaturalKey, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func (e *ConflictError) IsRetryable() bool { return false }

// IntegrityError reports a referential gap in the warehouse, e.g. a
// time bucket that should have been pre-generated but is absent. It is
// fatal for the affected record only.
type IntegrityError struct {
	Entity string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on %s: %s", e.Entity, e.Reason)
}

func (e *IntegrityError) IsRetryable() bool { return false }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflictError reports whether err is (or wraps) a ConflictError.
func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsIntegrity reports whether err is (or wraps) an IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
