package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCategory normalizes issuer failures across adapters.
type ErrorCategory string

const (
	// ErrorTimeout indicates the issuer took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the issuer returned invalid or malformed data
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorIssuerOutage indicates the issuer is unavailable
	ErrorIssuerOutage ErrorCategory = "issuer_outage"

	// ErrorNotFound indicates the issuer does not know the record
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// AdapterError wraps issuer failures with a normalized category.
type AdapterError struct {
	Category   ErrorCategory
	Issuer     string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *AdapterError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("issuer %s [%s]: %s: %v", e.Issuer, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("issuer %s [%s]: %s", e.Issuer, e.Category, e.Message)
}

func (e *AdapterError) Unwrap() error {
	return e.Underlying
}

// NewAdapterError creates a categorized adapter error.
func NewAdapterError(category ErrorCategory, issuer, message string, underlying error) *AdapterError {
	retryable := category == ErrorTimeout ||
		category == ErrorIssuerOutage ||
		category == ErrorRateLimited

	return &AdapterError{
		Category:   category,
		Issuer:     issuer,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error
func GetCategory(err error) ErrorCategory {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorInternal
}

// Classify wraps a transport-level failure from an adapter call. Errors that
// are already categorized pass through untouched.
func Classify(issuer, message string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AdapterError
	if errors.As(err, &ae) {
		return err
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewAdapterError(ErrorTimeout, issuer, message, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewAdapterError(ErrorTimeout, issuer, message, err)
	case errors.As(err, &netErr):
		return NewAdapterError(ErrorIssuerOutage, issuer, message, err)
	}
	return NewAdapterError(ErrorInternal, issuer, message, err)
}

// Sentinel errors for common cases
var (
	ErrAdapterNotFound = errors.New("adapter not found")
	ErrDuplicateIssuer = errors.New("adapter already registered")
)
