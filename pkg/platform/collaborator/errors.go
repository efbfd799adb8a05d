// Package collaborator normalizes failures of remote services (document
// analysis, OTP delivery, visual analyzer, certificate service) into one
// taxonomy so callers can pick a degraded path without inspecting transports.
package collaborator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCategory is the normalized failure class.
type ErrorCategory string

const (
	// ErrorTimeout indicates the collaborator took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates an invalid or malformed response
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorOutage indicates the collaborator is unavailable
	ErrorOutage ErrorCategory = "outage"

	// ErrorRejected indicates the collaborator refused the request (4xx other than auth)
	ErrorRejected ErrorCategory = "rejected"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorInternal indicates an unexpected local error
	ErrorInternal ErrorCategory = "internal"
)

// Error wraps a collaborator failure with its category.
type Error struct {
	Category     ErrorCategory
	Collaborator string
	Message      string
	Underlying   error
	Retryable    bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Collaborator, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Collaborator, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError builds a categorized error. Timeouts, outages and rate limits are retryable.
func NewError(category ErrorCategory, collaborator, message string, underlying error) *Error {
	return &Error{
		Category:     category,
		Collaborator: collaborator,
		Message:      message,
		Underlying:   underlying,
		Retryable:    category == ErrorTimeout || category == ErrorOutage || category == ErrorRateLimited,
	}
}

// FromStatus categorizes a non-2xx HTTP status.
func FromStatus(collaborator string, status int) *Error {
	msg := fmt.Sprintf("unexpected status %d", status)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(ErrorAuthentication, collaborator, msg, nil)
	case status == http.StatusTooManyRequests:
		return NewError(ErrorRateLimited, collaborator, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewError(ErrorTimeout, collaborator, msg, nil)
	case status >= 500:
		return NewError(ErrorOutage, collaborator, msg, nil)
	default:
		return NewError(ErrorRejected, collaborator, msg, nil)
	}
}

// FromTransport categorizes an error returned before any response was read.
func FromTransport(collaborator string, err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return NewError(ErrorTimeout, collaborator, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return NewError(ErrorInternal, collaborator, "request cancelled", err)
	default:
		return NewError(ErrorOutage, collaborator, "request failed", err)
	}
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the category, defaulting to ErrorInternal.
func GetCategory(err error) ErrorCategory {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ErrorInternal
}
