// Package errs defines the error taxonomy shared by the context manager,
// the instruction servers, and the server pool.
package errs

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a failure.
type Code string

const (
	CodeConfiguration Code = "CONFIGURATION"
	CodeValidation    Code = "VALIDATION"
	CodePersistence   Code = "PERSISTENCE"
	CodeBind          Code = "BIND"
	CodeNotFound      Code = "NOT_FOUND"
	CodeInternal      Code = "INTERNAL"
)

var defaultMessages = map[Code]string{
	CodeConfiguration: "port is not configured",
	CodeValidation:    "invalid instruction context",
	CodePersistence:   "context store failure",
	CodeBind:          "port unavailable",
	CodeNotFound:      "not found",
	CodeInternal:      "internal error",
}

// Error is the typed error carried across package boundaries.
type Error struct {
	code    Code
	message string
	cause   error
}

// New creates an Error. An empty message falls back to the code's default.
func New(code Code, message string) *Error {
	if message == "" {
		message = defaultMessages[code]
	}
	return &Error{code: code, message: message}
}

// Newf is New with fmt formatting.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates an Error that carries cause.
func Wrap(code Code, cause error, message string) *Error {
	e := New(code, message)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, errs.New(errs.CodeValidation, "")) matches any
// validation failure.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code returns the error code.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

// Message returns the human-readable message without the cause.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// From extracts an *Error from err's chain.
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stderrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns err's code, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeInternal
}

// Has reports whether err carries the given code.
func Has(err error, code Code) bool {
	e, ok := From(err)
	return ok && e.code == code
}

// HTTPStatus maps a code to the status an HTTP handler reports.
func HTTPStatus(code Code) int {
	switch code {
	case CodeConfiguration, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBind:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
