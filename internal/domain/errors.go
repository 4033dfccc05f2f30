package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrModerationFailed signals an authoritative moderation rejection.
	ErrModerationFailed = errors.New("message rejected by moderation")

	// ErrNotFound signals a pulse id that does not exist.
	ErrNotFound = errors.New("pulse not found")

	// ErrNotOwner signals a delete attempted by someone other than the
	// pulse's owner.
	ErrNotOwner = errors.New("pulse can only be deleted by its owner")

	// ErrUnauthorized signals a missing or invalid identity on an operation
	// that requires one.
	ErrUnauthorized = errors.New("sign-in required")
)

// ValidationError aggregates field-level failures. These are recovered
// locally and never reach the store.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}
