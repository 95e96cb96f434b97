package model

import (
	"errors"
	"net/http"
)

// ErrorKind classifies a failure so it can be reported with the right status.
type ErrorKind int

// Error kinds surfaced by the services.
const (
	ErrorKindInternal ErrorKind = iota
	ErrorKindValidation
	ErrorKindUnauthorized
	ErrorKindForbidden
	ErrorKindNotFound
	ErrorKindConflict
)

// StatusCode returns the HTTP status for the kind.
func (kind ErrorKind) StatusCode() int {
	switch kind {
	case ErrorKindValidation:
		return http.StatusBadRequest
	case ErrorKindUnauthorized:
		return http.StatusUnauthorized
	case ErrorKindForbidden:
		return http.StatusForbidden
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (kind ErrorKind) String() string {
	switch kind {
	case ErrorKindValidation:
		return "validation"
	case ErrorKindUnauthorized:
		return "unauthorized"
	case ErrorKindForbidden:
		return "forbidden"
	case ErrorKindNotFound:
		return "not found"
	case ErrorKindConflict:
		return "conflict"
	}
	return "internal"
}

// Error is a failure that is safe to report to clients. Message is shown
// as-is; Err, if present, is only ever logged.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for the error.
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// ErrValidation creates a validation error.
func ErrValidation(message string) *Error {
	return NewError(ErrorKindValidation, message)
}

// ErrUnauthorized creates an unauthorized error.
func ErrUnauthorized(message string) *Error {
	return NewError(ErrorKindUnauthorized, message)
}

// ErrForbidden creates a forbidden error.
func ErrForbidden(message string) *Error {
	return NewError(ErrorKindForbidden, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *Error {
	return NewError(ErrorKindNotFound, message)
}

// ErrConflict creates a conflict error.
func ErrConflict(message string) *Error {
	return NewError(ErrorKindConflict, message)
}

// ErrInternal wraps an unexpected failure. The cause is never shown to clients.
func ErrInternal(err error) *Error {
	return &Error{Kind: ErrorKindInternal, Message: "internal server error", Err: err}
}

// KindOf returns the kind of err, or ErrorKindInternal if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindInternal
}

// StatusCode returns the HTTP status for any error.
func StatusCode(err error) int {
	return KindOf(err).StatusCode()
}
