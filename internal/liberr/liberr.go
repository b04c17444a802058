// Package liberr defines the typed error taxonomy shared by the store and
// API layers. Handlers match errors with errors.As/Is and map codes to HTTP
// statuses without re-querying the store.
package liberr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeDuplicateTitle      Code = "DUPLICATE_TITLE"
	CodeDuplicatePending    Code = "DUPLICATE_PENDING"
	CodeAlreadyBorrowed     Code = "ALREADY_BORROWED"
	CodeUnavailable         Code = "UNAVAILABLE"
	CodeInvalidAvailability Code = "INVALID_AVAILABILITY"
	CodeHasActiveLoans      Code = "HAS_ACTIVE_LOANS"
	CodeNoOpenLoan          Code = "NO_OPEN_LOAN"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeValidation          Code = "VALIDATION"
	CodeStorageUnavailable  Code = "STORAGE_UNAVAILABLE"
)

// HTTPStatus returns the HTTP status for a code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound, CodeNoOpenLoan:
		return http.StatusNotFound
	case CodeDuplicateTitle, CodeDuplicatePending, CodeAlreadyBorrowed,
		CodeUnavailable, CodeInvalidAvailability, CodeHasActiveLoans:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, a human-readable message, and the
// offending entity id (0 when not applicable).
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"error"`
	ID      int64  `json:"id,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, &liberr.Error{Code: liberr.CodeUnavailable}).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status for this error.
func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// New creates an error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithID returns a copy of the error carrying the offending entity id.
func (e *Error) WithID(id int64) *Error {
	return &Error{Code: e.Code, Message: e.Message, ID: id, cause: e.cause}
}

// NotFound reports a missing entity.
func NotFound(entity string, id int64) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", entity), ID: id}
}

// Validation reports malformed input.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, format, args...)
}

// Storage wraps a persistence-layer failure. The cause is preserved for
// logging but the caller only sees the code.
func Storage(op string, cause error) *Error {
	return &Error{Code: CodeStorageUnavailable, Message: op, cause: cause}
}

// CodeOf extracts the code from an error chain, or "" if it carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
