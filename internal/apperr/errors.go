// Package apperr holds the sentinel errors shared across packages and the
// AppError wrapper that carries a human-readable message.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrInvalidFormat = errors.New("invalid format")
	ErrNotLoaded     = errors.New("notes not loaded")
)

// AppError attaches a message (and optionally the offending field) to a sentinel.
type AppError struct {
	Err     error
	Message string
	Field   string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// ValidationFailed reports bad input on field.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation.
func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// InvalidFormat reports a document that could not be parsed or failed its schema.
func InvalidFormat(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidFormat,
		Message: message,
	}
}
