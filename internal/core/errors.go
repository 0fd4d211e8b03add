package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input. Match with errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when an update references an unknown expense.
	ErrNotFound = errors.New("expense not found")
	// ErrPersistence wraps failures of the underlying key-value store.
	ErrPersistence = errors.New("persistence failure")
	// ErrClosed is returned by a store used after Close.
	ErrClosed = errors.New("store closed")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("already exists")
)

// ValidationError describes which field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
