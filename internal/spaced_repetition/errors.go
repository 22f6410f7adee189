package spaced_repetition

import (
	"errors"
	"fmt"
)

// Precondition failures. All of them wrap ErrPrecondition so a caller can
// treat them as "already handled" with a single errors.Is check.
var (
	ErrPrecondition     = errors.New("precondition failed")
	ErrScheduleNotFound = fmt.Errorf("%w: schedule not found", ErrPrecondition)
	ErrAlreadyCompleted = fmt.Errorf("%w: schedule already completed", ErrPrecondition)
	ErrOwnerMismatch    = fmt.Errorf("%w: schedule belongs to another user", ErrPrecondition)
	ErrAlreadyScheduled = fmt.Errorf("%w: item already has an open schedule", ErrPrecondition)
	ErrItemNotFound     = fmt.Errorf("%w: knowledge item not found", ErrPrecondition)
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrStorage         = errors.New("storage failure")
	ErrStageOutOfRange = errors.New("stage index out of range")
)

// ValidationError describes an input rejected before any store mutation
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// storageError wraps a store failure so callers can match ErrStorage
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// classify leaves engine errors untouched and marks anything else as a storage failure
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPrecondition) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrStorage) || errors.Is(err, ErrStageOutOfRange) {
		return err
	}
	return storageError(op, err)
}
