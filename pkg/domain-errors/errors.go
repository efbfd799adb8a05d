// Package domainerrors carries coded errors across service boundaries.
//
// Services return these so transports can map them to responses without
// inspecting error strings. Infrastructure failures are wrapped with a code
// at the service layer; stores return sentinel errors instead.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for callers and transports.
type Code string

const (
	CodeBadRequest     Code = "bad_request"
	CodeValidation     Code = "validation_error"
	CodeInvalidInput   Code = "invalid_input"
	CodeNotFound       Code = "not_found"
	CodeConflict       Code = "conflict"
	CodeInvalidState   Code = "invalid_state"
	CodeUnauthorized   Code = "unauthorized"
	CodeTimeout        Code = "timeout"
	CodeUnavailable    Code = "unavailable"
	CodeReviewRequired Code = "review_required"
	CodeExpired        Code = "expired"
	CodeInternal       Code = "internal_error"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
// A nil err yields a plain coded error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost coded error in the chain,
// or CodeInternal when none is present.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost coded error in err carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is delegates to errors.Is so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Message returns the client-safe message for err. Internal errors never
// expose their cause.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
