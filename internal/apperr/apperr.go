package apperr

import (
	"errors"
	"fmt"
)

// Core error taxonomy. Services return these wrapped with context; handlers
// match with errors.Is to pick the HTTP status.
var (
	ErrUnauthorized = errors.New("no authenticated actor")
	ErrForbidden    = errors.New("permission denied")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("invalid input")
	ErrDependency   = errors.New("backing service failure")
)

// NotFound wraps ErrNotFound with the entity and id that was missing.
func NotFound(entity string, id int) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

// Validation wraps ErrValidation with a caller-facing reason.
func Validation(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrValidation)
}

// Forbidden wraps ErrForbidden with a caller-facing reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrForbidden)
}

// Dependency wraps a backing-store failure.
func Dependency(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrDependency)
}
