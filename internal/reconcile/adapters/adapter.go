// Package adapters defines the contract every issuing-platform integration
// implements and the registry that resolves one by issuer name.
package adapters

import (
	"context"

	credential "credsync/internal/credential/models"
)

// Payload is the opaque credential document returned by an issuer.
type Payload []byte

// VerifyResult is the issuer's answer to an authenticity check.
type VerifyResult struct {
	Success bool
	Message string
}

// Adapter talks to a single issuing platform.
//
//go:generate mockgen -source=adapter.go -destination=mocks/mocks.go -package=mocks Adapter
type Adapter interface {
	// Issuer returns the name records carry in issuer_name.
	Issuer() string

	// FetchAuthoritativeData returns the issuer's current copy of a credential.
	FetchAuthoritativeData(ctx context.Context, recordID credential.RecordID) (Payload, error)

	// Verify checks a payload's authenticity. A negative answer is a result,
	// not an error.
	Verify(ctx context.Context, payload Payload) (VerifyResult, error)
}
