package domain

import (
	"errors"
	"fmt"
)

// Error kind sentinels. Every application error wraps exactly one of these so
// transport layers can map kinds to HTTP statuses with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation error")
	ErrExternalService        = errors.New("external service error")
	ErrExternalServiceTimeout = errors.New("external service timeout")
	ErrDatabaseUnavailable    = errors.New("database unavailable")
	ErrDatabaseInternal       = errors.New("database internal error")
	ErrUnexpected             = errors.New("unexpected error")
)

// Error is an application error carrying a stable error_code slug for the API
// envelope and logs, plus optional context for debug responses.
type Error struct {
	Kind    error
	Code    string
	Message string
	Context map[string]any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// Is reports kind membership so errors.Is(err, domain.ErrNotFound) works.
func (e *Error) Is(target error) bool { return target == e.Kind }

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// WithContext attaches structured context and returns the error.
func (e *Error) WithContext(ctx map[string]any) *Error {
	e.Context = ctx
	return e
}

// WithCause records the originating error and returns the error.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// E constructs an application error of the given kind.
func E(kind error, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError builds a not-found error with a stable code.
func NotFoundError(code, format string, args ...any) *Error {
	return E(ErrNotFound, code, format, args...)
}

// ValidationError builds a validation error with a stable code.
func ValidationError(code, format string, args ...any) *Error {
	return E(ErrValidation, code, format, args...)
}

// ExternalError builds a provider/upstream error with a stable code.
func ExternalError(code, format string, args ...any) *Error {
	return E(ErrExternalService, code, format, args...)
}

// ExternalTimeoutError builds a provider timeout error with a stable code.
func ExternalTimeoutError(code, format string, args ...any) *Error {
	return E(ErrExternalServiceTimeout, code, format, args...)
}

// ErrorCode returns the stable error code slug for any error.
func ErrorCode(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrExternalService):
		return "external_service_error"
	case errors.Is(err, ErrExternalServiceTimeout):
		return "external_service_timeout"
	case errors.Is(err, ErrDatabaseUnavailable):
		return "database_unavailable"
	case errors.Is(err, ErrDatabaseInternal):
		return "database_internal"
	}
	return "internal_error"
}

// ErrorName returns the class name exposed in the API envelope.
func ErrorName(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrExternalService):
		return "ExternalServiceError"
	case errors.Is(err, ErrExternalServiceTimeout):
		return "ExternalServiceTimeout"
	case errors.Is(err, ErrDatabaseUnavailable):
		return "DatabaseUnavailable"
	case errors.Is(err, ErrDatabaseInternal):
		return "DatabaseInternal"
	}
	return "InternalServerError"
}

// ErrorContext returns attached context for debug envelopes, or nil.
func ErrorContext(err error) map[string]any {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Context
	}
	return nil
}
