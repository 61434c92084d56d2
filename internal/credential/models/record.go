package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentID is the local primary key of a stored credential document.
type DocumentID uuid.UUID

func (id DocumentID) String() string { return uuid.UUID(id).String() }

// RecordID is the opaque identifier the issuing platform assigns to a
// credential. It is empty until the document has been linked to a credential.
type RecordID string

func (id RecordID) String() string { return string(id) }

// IsZero reports whether the document has not been linked yet.
func (id RecordID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// OwnerID identifies the user that owns the document.
type OwnerID uuid.UUID

func (id OwnerID) String() string { return uuid.UUID(id).String() }

func (id OwnerID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Status is the lifecycle state of a credential document.
type Status string

const (
	StatusUnpublished Status = "unpublished"
	StatusIssued      Status = "issued"
	StatusRevoked     Status = "revoked"
	StatusDeleted     Status = "deleted"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusUnpublished, StatusIssued, StatusRevoked, StatusDeleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions may leave this status.
func (s Status) IsTerminal() bool { return s == StatusDeleted }

// VerificationState is the tri-state outcome of the last authenticity check.
type VerificationState string

const (
	VerificationUnknown VerificationState = "unknown"
	VerificationPassed  VerificationState = "verified"
	VerificationFailed  VerificationState = "unverified"
)

// ErrInvariantViolation is returned when a record would leave a valid state.
var ErrInvariantViolation = errors.New("credential record invariant violation")

// CredentialRecord is a locally stored document mirrored from an issuing
// platform. Payload is plaintext here; the repository seals it at rest.
type CredentialRecord struct {
	ID              DocumentID
	RecordID        RecordID
	OwnerID         OwnerID
	IssuerName      string
	Payload         []byte
	Verified        VerificationState
	VerifiedAt      *time.Time
	Status          Status
	StatusUpdatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewCredentialRecord builds an unpublished document for an owner.
func NewCredentialRecord(id DocumentID, owner OwnerID, issuerName string, recordID RecordID, now time.Time) (*CredentialRecord, error) {
	if uuid.UUID(id) == uuid.Nil {
		return nil, fmt.Errorf("%w: document id is required", ErrInvariantViolation)
	}
	if owner.IsNil() {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvariantViolation)
	}
	return &CredentialRecord{
		ID:         id,
		RecordID:   RecordID(strings.TrimSpace(string(recordID))),
		OwnerID:    owner,
		IssuerName: strings.TrimSpace(issuerName),
		Verified:   VerificationUnknown,
		Status:     StatusUnpublished,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ApplyAuthoritative overwrites the payload with issuer data and moves the
// document to status. Verification is reset until Verify results arrive.
func (r *CredentialRecord) ApplyAuthoritative(status Status, payload []byte, now time.Time) error {
	if status != StatusIssued && status != StatusRevoked {
		return fmt.Errorf("%w: %s does not carry issuer data", ErrInvariantViolation, status)
	}
	r.Payload = append([]byte(nil), payload...)
	r.setStatus(status, now)
	return nil
}

// RecordVerification stores the authenticity check result.
func (r *CredentialRecord) RecordVerification(passed bool, now time.Time) {
	if passed {
		r.Verified = VerificationPassed
	} else {
		r.Verified = VerificationFailed
	}
	t := now
	r.VerifiedAt = &t
	r.UpdatedAt = now
}

// Erase moves the document to the terminal deleted state and drops every
// piece of issuer data.
func (r *CredentialRecord) Erase(now time.Time) {
	r.Payload = nil
	r.Verified = VerificationUnknown
	r.VerifiedAt = nil
	r.setStatus(StatusDeleted, now)
}

func (r *CredentialRecord) setStatus(status Status, now time.Time) {
	r.Status = status
	t := now
	r.StatusUpdatedAt = &t
	r.UpdatedAt = now
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *CredentialRecord) Clone() *CredentialRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Payload != nil {
		c.Payload = append([]byte(nil), r.Payload...)
	}
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		c.VerifiedAt = &t
	}
	if r.StatusUpdatedAt != nil {
		t := *r.StatusUpdatedAt
		c.StatusUpdatedAt = &t
	}
	return &c
}
