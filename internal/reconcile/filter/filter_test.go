package filter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credential "credsync/internal/credential/models"
	"credsync/internal/credential/store"
	"credsync/internal/reconcile/models"
)

type failingFinder struct{ err error }

func (f failingFinder) FindManyByRecordID(context.Context, []credential.RecordID) (map[credential.RecordID]*credential.CredentialRecord, error) {
	return nil, f.err
}

func seed(t *testing.T, s *store.InMemoryStore, recordIDs ...credential.RecordID) {
	t.Helper()
	for _, id := range recordIDs {
		rec, err := credential.NewCredentialRecord(
			credential.DocumentID(uuid.New()),
			credential.OwnerID(uuid.New()),
			"acme", id, time.Now(),
		)
		require.NoError(t, err)
		require.NoError(t, s.Create(context.Background(), rec))
	}
}

func TestApply(t *testing.T) {
	records := store.NewInMemoryStore()
	seed(t, records, "R1", "R2")
	f := New(records)

	t.Run("drops unknown records and duplicates in feed order", func(t *testing.T) {
		res, err := f.Apply(context.Background(), []models.LifecycleEvent{
			{EventType: "record_anchored", RecordID: "R2"},
			{EventType: "record_anchored", RecordID: "R3"},
			{EventType: "record_anchored", RecordID: "R1"},
			{EventType: "record_anchored", RecordID: "R2"},
			{EventType: "record_revoked", RecordID: "R2"},
		})
		require.NoError(t, err)
		assert.Equal(t, []models.LifecycleEvent{
			{EventType: "record_anchored", RecordID: "R2"},
			{EventType: "record_anchored", RecordID: "R1"},
			{EventType: "record_revoked", RecordID: "R2"},
		}, res.Events)
		assert.Equal(t, 1, res.Unknown)
		assert.Equal(t, 1, res.Duplicates)
		assert.Len(t, res.Records, 2)
		assert.Equal(t, credential.RecordID("R1"), res.Records["R1"].RecordID)
	})

	t.Run("empty input", func(t *testing.T) {
		res, err := f.Apply(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, res.Events)
	})

	t.Run("lookup error aborts", func(t *testing.T) {
		boom := errors.New("connection reset")
		_, err := New(failingFinder{err: boom}).Apply(context.Background(), []models.LifecycleEvent{
			{EventType: "record_anchored", RecordID: "R1"},
		})
		assert.ErrorIs(t, err, boom)
	})
}
