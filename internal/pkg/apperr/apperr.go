// Package apperr provides the structured error types shared by the storage,
// service, and form layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure scenarios.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("service unavailable")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrValidation       = errors.New("validation failed")
	ErrExhausted        = errors.New("operation failed after several attempts")
)

// Error is a structured application error with an HTTP status and a
// machine-readable code.
type Error struct {
	// Code is a machine-readable error code (e.g. "PERMISSION_DENIED").
	Code string `json:"code"`

	// Message is a short human-readable message.
	Message string `json:"message"`

	// HTTPStatus is the corresponding HTTP status code.
	HTTPStatus int `json:"-"`

	// FieldErrors carries field-level validation details for form binding.
	FieldErrors []FieldError `json:"field_errors,omitempty"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// FieldError describes a field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithFieldErrors attaches field-level errors.
func (e *Error) WithFieldErrors(fieldErrors []FieldError) *Error {
	if e == nil || len(fieldErrors) == 0 {
		return e
	}
	e.FieldErrors = fieldErrors
	return e
}

// New creates a new Error.
func New(code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error into an Error.
func Wrap(err error, code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Error codes for the remote-store and service taxonomy.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeExhausted        = "OPERATION_EXHAUSTED"
)

// Common constructors.

// Unauthenticated creates a 401 error wrapping ErrUnauthenticated.
func Unauthenticated(message string) *Error {
	return Wrap(ErrUnauthenticated, CodeUnauthenticated, message, http.StatusUnauthorized)
}

// PermissionDenied creates a 403 error wrapping ErrPermissionDenied.
func PermissionDenied(message string) *Error {
	return Wrap(ErrPermissionDenied, CodePermissionDenied, message, http.StatusForbidden)
}

// Unavailable creates a 503 error wrapping ErrUnavailable.
func Unavailable(message string) *Error {
	return Wrap(ErrUnavailable, CodeUnavailable, message, http.StatusServiceUnavailable)
}

// NotFound creates a 404 error wrapping ErrNotFound.
func NotFound(message string) *Error {
	return Wrap(ErrNotFound, CodeNotFound, message, http.StatusNotFound)
}

// AlreadyExists creates a 409 error wrapping ErrAlreadyExists.
func AlreadyExists(message string) *Error {
	return Wrap(ErrAlreadyExists, CodeAlreadyExists, message, http.StatusConflict)
}

// Validation creates a 400 error wrapping ErrValidation.
func Validation(message string) *Error {
	return Wrap(ErrValidation, CodeValidationFailed, message, http.StatusBadRequest)
}

// Exhausted creates a 503 error wrapping ErrExhausted.
func Exhausted(message string) *Error {
	return Wrap(ErrExhausted, CodeExhausted, message, http.StatusServiceUnavailable)
}

// Internal creates a 500 error.
func Internal(message string, err error) *Error {
	return Wrap(err, CodeInternal, message, http.StatusInternalServerError)
}

// AsError checks if err is an *Error and returns it.
func AsError(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsTransient reports whether err is a transient remote-store failure that a
// reconnect is expected to resolve.
func IsTransient(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if appErr, ok := AsError(err); ok {
		return appErr.Code == CodeUnavailable || appErr.Code == CodeInternal
	}
	return false
}
