package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransientError_WrapsAndRetries(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := Transient("pull orders", cause)

	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
	if !err.IsRetryable() {
		t.Error("transient errors must be retryable")
	}
	if !IsTransient(fmt.Errorf("outer: %w", err)) {
		t.Error("IsTransient must see through wrapping")
	}
}

func TestPermanentErrorsAreNotRetryable(t *testing.T) {
	permanent := []interface{ IsRetryable() bool }{
		&ValidationError{Field: "Total", Reason: "is missing"},
		&ConflictError{DimensionType: "customer", NaturalKey: "42", Reason: "ambiguous"},
		&IntegrityError{Entity: "dim_time_bucket", Reason: "no bucket"},
	}
	for _, err := range permanent {
		if err.IsRetryable() {
			t.Errorf("%T must not be retryable", err)
		}
	}
}

func TestConflictError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("resolve customer:42: %w", &ConflictError{
		DimensionType: "customer",
		NaturalKey:    "42",
		Reason:        "missing tracked attribute",
	})

	if !errors.Is(err, ErrConflict) {
		t.Error("ConflictError must match ErrConflict sentinel through wrapping")
	}
	if !IsConflictError(err) {
		t.Error("IsConflictError must see through wrapping")
	}
}

func TestClassifierHelpers(t *testing.T) {
	validation := fmt.Errorf("transform: %w", &ValidationError{Field: "ID", Reason: "is missing"})
	integrity := fmt.Errorf("load: %w", &IntegrityError{Entity: "dim_time_bucket", Reason: "gap"})

	if !IsValidation(validation) || IsValidation(integrity) {
		t.Error("IsValidation misclassified")
	}
	if !IsIntegrity(integrity) || IsIntegrity(validation) {
		t.Error("IsIntegrity misclassified")
	}
	if IsTransient(validation) || IsConflictError(integrity) {
		t.Error("classifiers must not cross-match")
	}
}
