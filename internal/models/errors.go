package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for notification persistence.
// Callers use errors.Is so HTTP handlers can pick status codes without knowing the store.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidationFailed   = errors.New("validation failed")
	ErrDeletionRestricted = errors.New("deletion restricted")
)

// DeletionRestrictedError is returned when deleting a record would leave dependents behind.
type DeletionRestrictedError struct {
	Message string
}

func (e *DeletionRestrictedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDeletionRestricted, e.Message)
}

func (e *DeletionRestrictedError) Is(target error) bool {
	return target == ErrDeletionRestricted
}

// NewDeletionRestrictedError builds a DeletionRestrictedError from a format string.
func NewDeletionRestrictedError(format string, args ...any) error {
	return &DeletionRestrictedError{Message: fmt.Sprintf(format, args...)}
}

// ValidationError carries the field errors reported by the validator.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrValidationFailed, e.Err)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
