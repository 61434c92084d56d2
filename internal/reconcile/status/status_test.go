package status

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/models"
)

func TestMap(t *testing.T) {
	events := []models.LifecycleEvent{
		{EventType: "record_anchored", RecordID: "R1"},
		{EventType: "bogus", RecordID: "R2"},
		{EventType: "record_updated", RecordID: "R3"},
		{EventType: "record_revoked", RecordID: "R4"},
		{EventType: "record_deleted", RecordID: "R5"},
		{EventType: "", RecordID: "R6"},
	}

	got, dropped := NewMapper(nil).Map(context.Background(), events)

	assert.Equal(t, 2, dropped)
	assert.Equal(t, []models.Transition{
		{EventType: "record_anchored", RecordID: "R1", Target: credential.StatusIssued},
		{EventType: "record_updated", RecordID: "R3", Target: credential.StatusIssued},
		{EventType: "record_revoked", RecordID: "R4", Target: credential.StatusRevoked},
		{EventType: "record_deleted", RecordID: "R5", Target: credential.StatusDeleted},
	}, got)
}

func TestCoalesce(t *testing.T) {
	in := []models.Transition{
		{EventType: "record_anchored", RecordID: "R1", Target: credential.StatusIssued},
		{EventType: "record_anchored", RecordID: "R2", Target: credential.StatusIssued},
		{EventType: "record_revoked", RecordID: "R1", Target: credential.StatusRevoked},
		{EventType: "record_deleted", RecordID: "R1", Target: credential.StatusDeleted},
	}

	got := Coalesce(in)

	require.Len(t, got, 2)
	assert.Equal(t, credential.RecordID("R1"), got[0].RecordID)
	assert.Equal(t, credential.StatusDeleted, got[0].Target)
	assert.Equal(t, credential.RecordID("R2"), got[1].RecordID)
	assert.Empty(t, Coalesce(nil))
}

func TestCoalesceLatestStatusWins(t *testing.T) {
	got := Coalesce([]models.Transition{
		{EventType: "record_anchored", RecordID: "R1", Target: credential.StatusIssued},
		{EventType: "record_revoked", RecordID: "R1", Target: credential.StatusRevoked},
	})

	require.Len(t, got, 1)
	assert.Equal(t, "record_revoked", got[0].EventType)
	assert.Equal(t, credential.StatusRevoked, got[0].Target)
}

func TestGuard(t *testing.T) {
	strict := NewGuard(true)
	lenient := NewGuard(false)

	tests := []struct {
		from, to credential.Status
		allowed  bool
	}{
		{credential.StatusUnpublished, credential.StatusIssued, true},
		{credential.StatusUnpublished, credential.StatusRevoked, true},
		{credential.StatusUnpublished, credential.StatusDeleted, true},
		{credential.StatusIssued, credential.StatusIssued, true},
		{credential.StatusIssued, credential.StatusRevoked, true},
		{credential.StatusIssued, credential.StatusDeleted, true},
		{credential.StatusRevoked, credential.StatusRevoked, true},
		{credential.StatusRevoked, credential.StatusDeleted, true},
		{credential.StatusRevoked, credential.StatusIssued, false},
		{credential.StatusDeleted, credential.StatusDeleted, true},
		{credential.StatusDeleted, credential.StatusIssued, false},
		{credential.StatusDeleted, credential.StatusRevoked, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := strict.Check(tt.from, tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
			}
			assert.NoError(t, lenient.Check(tt.from, tt.to))
		})
	}

	t.Run("unknown target is rejected in both modes", func(t *testing.T) {
		assert.ErrorIs(t, strict.Check(credential.StatusIssued, "archived"), ErrInvalidTransition)
		assert.ErrorIs(t, lenient.Check(credential.StatusIssued, "archived"), ErrInvalidTransition)
	})

	assert.True(t, IsNoop(credential.StatusDeleted, credential.StatusDeleted))
	assert.False(t, IsNoop(credential.StatusIssued, credential.StatusDeleted))
}
