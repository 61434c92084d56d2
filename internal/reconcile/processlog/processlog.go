// Package processlog is the append-only audit trail of per-record outcomes.
// It doubles as the idempotency guard: a record that already succeeded in a
// batch window is not processed again for that window.
package processlog

import (
	"strings"
	"time"

	"github.com/google/uuid"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/models"
)

// Outcome is the result of processing one record in one batch window.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// maxErrorMessage bounds what ends up in the error_message column.
const maxErrorMessage = 2000

// Entry is one row of the processing log. Entries are never updated.
type Entry struct {
	ID           uuid.UUID
	RecordID     credential.RecordID
	EventType    string
	Outcome      Outcome
	ErrorMessage string
	ProcessedAt  time.Time
	BatchFrom    time.Time
	BatchTo      time.Time
}

// Success builds a success entry for window.
func Success(recordID credential.RecordID, eventType string, window models.Window, now time.Time) Entry {
	return newEntry(recordID, eventType, OutcomeSuccess, nil, window, now)
}

// Failure builds a failed entry carrying err's message.
func Failure(recordID credential.RecordID, eventType string, err error, window models.Window, now time.Time) Entry {
	return newEntry(recordID, eventType, OutcomeFailed, err, window, now)
}

func newEntry(recordID credential.RecordID, eventType string, outcome Outcome, err error, window models.Window, now time.Time) Entry {
	entry := Entry{
		ID:          uuid.New(),
		RecordID:    recordID,
		EventType:   eventType,
		Outcome:     outcome,
		ProcessedAt: now,
		BatchFrom:   window.From,
		BatchTo:     window.To,
	}
	if err != nil {
		entry.ErrorMessage = truncate(strings.TrimSpace(err.Error()), maxErrorMessage)
	}
	return entry
}

// Window returns the batch window the entry was written for.
func (e Entry) Window() models.Window {
	return models.Window{From: e.BatchFrom, To: e.BatchTo}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
