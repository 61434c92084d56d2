package store

import (
	"context"
	"sync"

	"credsync/internal/credential/models"
)

// InMemoryStore keeps documents in process memory. Records are cloned on the
// way in and out, so callers can mutate what they get back freely.
type InMemoryStore struct {
	mu         sync.RWMutex
	documents  map[models.DocumentID]*models.CredentialRecord
	byRecordID map[models.RecordID]models.DocumentID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		documents:  make(map[models.DocumentID]*models.CredentialRecord),
		byRecordID: make(map[models.RecordID]models.DocumentID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[record.ID]; exists {
		return ErrConflict
	}
	if !record.RecordID.IsZero() {
		if _, linked := s.byRecordID[record.RecordID]; linked {
			return ErrConflict
		}
		s.byRecordID[record.RecordID] = record.ID
	}
	s.documents[record.ID] = record.Clone()
	return nil
}

func (s *InMemoryStore) FindByRecordID(_ context.Context, recordID models.RecordID) (*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docID, ok := s.byRecordID[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.documents[docID].Clone(), nil
}

func (s *InMemoryStore) FindManyByRecordID(_ context.Context, recordIDs []models.RecordID) (map[models.RecordID]*models.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[models.RecordID]*models.CredentialRecord, len(recordIDs))
	for _, recordID := range recordIDs {
		if docID, ok := s.byRecordID[recordID]; ok {
			found[recordID] = s.documents[docID].Clone()
		}
	}
	return found, nil
}

func (s *InMemoryStore) Save(_ context.Context, record *models.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.documents[record.ID]
	if !ok {
		return ErrNotFound
	}
	if current.RecordID != record.RecordID {
		if !record.RecordID.IsZero() {
			if other, linked := s.byRecordID[record.RecordID]; linked && other != record.ID {
				return ErrConflict
			}
			s.byRecordID[record.RecordID] = record.ID
		}
		delete(s.byRecordID, current.RecordID)
	}
	s.documents[record.ID] = record.Clone()
	return nil
}
