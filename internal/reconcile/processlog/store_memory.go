package processlog

import (
	"context"
	"sort"
	"sync"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/models"
)

// InMemoryStore keeps the processing log in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) HasSuccess(_ context.Context, recordID credential.RecordID, window models.Window) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.RecordID == recordID && e.Outcome == OutcomeSuccess && sameWindow(e, window) {
			return true, nil
		}
	}
	return false, nil
}

// ListFailed returns failed entries whose batch window lies inside window,
// newest first.
func (s *InMemoryStore) ListFailed(_ context.Context, window models.Window) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Entry
	for _, e := range s.entries {
		if e.Outcome != OutcomeFailed {
			continue
		}
		if e.BatchFrom.Before(window.From) || e.BatchTo.After(window.To) {
			continue
		}
		result = append(result, e)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ProcessedAt.After(result[j].ProcessedAt) })
	return result, nil
}

// ListByRecord returns every entry for recordID in append order.
func (s *InMemoryStore) ListByRecord(_ context.Context, recordID credential.RecordID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Entry
	for _, e := range s.entries {
		if e.RecordID == recordID {
			result = append(result, e)
		}
	}
	return result, nil
}

// All returns a snapshot of every entry in append order.
func (s *InMemoryStore) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

func sameWindow(e Entry, window models.Window) bool {
	return e.BatchFrom.Equal(window.From) && e.BatchTo.Equal(window.To)
}
