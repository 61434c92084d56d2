// Package status maps upstream lifecycle events to internal credential
// statuses and guards which transitions a record may take.
package status

import (
	"context"
	"log/slog"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/models"
)

// Upstream event types understood by the mapper.
const (
	EventRecordAnchored = "record_anchored"
	EventRecordUpdated  = "record_updated"
	EventRecordRevoked  = "record_revoked"
	EventRecordDeleted  = "record_deleted"
)

var eventStatus = map[string]credential.Status{
	EventRecordAnchored: credential.StatusIssued,
	EventRecordUpdated:  credential.StatusIssued,
	EventRecordRevoked:  credential.StatusRevoked,
	EventRecordDeleted:  credential.StatusDeleted,
}

// Lookup returns the internal status for an upstream event type.
func Lookup(eventType string) (credential.Status, bool) {
	s, ok := eventStatus[eventType]
	return s, ok
}

// Mapper turns lifecycle events into transitions. Unknown types are dropped
// with a warning.
type Mapper struct {
	logger *slog.Logger
}

func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{logger: logger}
}

// Map preserves input order. The second return value counts dropped events.
func (m *Mapper) Map(ctx context.Context, events []models.LifecycleEvent) ([]models.Transition, int) {
	out := make([]models.Transition, 0, len(events))
	dropped := 0
	for _, ev := range events {
		target, ok := Lookup(ev.EventType)
		if !ok {
			dropped++
			m.logger.WarnContext(ctx, "dropping event with unknown type",
				"event_type", ev.EventType,
				"record_id", ev.RecordID.String(),
			)
			continue
		}
		out = append(out, models.Transition{
			EventType: ev.EventType,
			RecordID:  ev.RecordID,
			Target:    target,
		})
	}
	return out, dropped
}

// Coalesce keeps one transition per record: the last one in feed order,
// placed where that record first appeared. Feed order is chronological, so
// the record ends in its latest upstream status. This intentionally departs
// from first-success-wins, which per-window idempotency alone would give:
// revoking a credential anchored in the same window must leave it revoked.
func Coalesce(transitions []models.Transition) []models.Transition {
	index := make(map[credential.RecordID]int, len(transitions))
	out := make([]models.Transition, 0, len(transitions))
	for _, t := range transitions {
		if i, seen := index[t.RecordID]; seen {
			out[i] = t
			continue
		}
		index[t.RecordID] = len(out)
		out = append(out, t)
	}
	return out
}
