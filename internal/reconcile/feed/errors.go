package feed

import (
	"errors"
	"fmt"

	"credsync/pkg/platform/sentinel"
)

// FailureKind classifies why a fetch could not be trusted.
type FailureKind string

const (
	FailureTransport  FailureKind = "transport"
	FailureStatus     FailureKind = "status"
	FailureMalformed  FailureKind = "malformed"
	FailureUnsuccess  FailureKind = "unsuccessful"
	FailureShape      FailureKind = "shape"
	FailureAuthSigner FailureKind = "signer"
)

// FetchError is a hard fetch failure. The cycle that receives one must stop
// before it mutates anything or moves the checkpoint.
type FetchError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
	Underlying error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("feed fetch failed [%s]: %s", e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Underlying != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Underlying)
	}
	return msg
}

// Unwrap exposes both the cause and sentinel.ErrUnavailable.
func (e *FetchError) Unwrap() []error {
	if e.Underlying == nil {
		return []error{sentinel.ErrUnavailable}
	}
	return []error{sentinel.ErrUnavailable, e.Underlying}
}

func newFetchError(kind FailureKind, message string, underlying error) *FetchError {
	return &FetchError{Kind: kind, Message: message, Underlying: underlying}
}

// IsFetchError reports whether err is (or wraps) a hard fetch failure.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
