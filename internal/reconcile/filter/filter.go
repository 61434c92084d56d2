// Package filter narrows a feed batch to the events that concern records
// this service actually stores.
package filter

import (
	"context"
	"fmt"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/models"
)

// RecordFinder loads local records by upstream record id. Ids with no local
// record are simply absent from the result.
type RecordFinder interface {
	FindManyByRecordID(ctx context.Context, recordIDs []credential.RecordID) (map[credential.RecordID]*credential.CredentialRecord, error)
}

// Result is the filtered batch. Records holds the loaded record for every
// surviving event.
type Result struct {
	Events     []models.LifecycleEvent
	Records    map[credential.RecordID]*credential.CredentialRecord
	Unknown    int
	Duplicates int
}

type Filter struct {
	records RecordFinder
}

func New(records RecordFinder) *Filter {
	return &Filter{records: records}
}

// Apply drops events for records that are not stored locally and removes
// exact (record, event type) duplicates, keeping feed order. A lookup error
// is returned as is; the caller must not proceed with a partial view.
func (f *Filter) Apply(ctx context.Context, events []models.LifecycleEvent) (Result, error) {
	result := Result{Records: map[credential.RecordID]*credential.CredentialRecord{}}
	if len(events) == 0 {
		return result, nil
	}

	ids := make([]credential.RecordID, 0, len(events))
	seenID := make(map[credential.RecordID]struct{}, len(events))
	for _, ev := range events {
		if _, ok := seenID[ev.RecordID]; ok {
			continue
		}
		seenID[ev.RecordID] = struct{}{}
		ids = append(ids, ev.RecordID)
	}

	found, err := f.records.FindManyByRecordID(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("load local records: %w", err)
	}

	type pair struct {
		recordID  credential.RecordID
		eventType string
	}
	seen := make(map[pair]struct{}, len(events))
	for _, ev := range events {
		record, ok := found[ev.RecordID]
		if !ok || record == nil {
			result.Unknown++
			continue
		}
		key := pair{recordID: ev.RecordID, eventType: ev.EventType}
		if _, dup := seen[key]; dup {
			result.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		result.Events = append(result.Events, ev)
		result.Records[ev.RecordID] = record
	}
	return result, nil
}
