package service

import "errors"

var (
	// ErrMissingIssuer marks a record that names no issuing platform.
	ErrMissingIssuer = errors.New("record has no issuer")

	// ErrVerification marks an adapter that could not answer a verify call.
	// The record is still persisted, unverified.
	ErrVerification = errors.New("verification failed")

	// ErrPersistence marks a failed write of the reconciled record.
	ErrPersistence = errors.New("persistence failed")

	// ErrPanic marks a record whose processing panicked.
	ErrPanic = errors.New("panic")
)
