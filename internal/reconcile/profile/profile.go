// Package profile tells the user-profile projection that a credential owned
// by a user changed. Delivery is best effort.
package profile

import (
	"context"
	"time"

	credential "credsync/internal/credential/models"
)

// Refresh is one "owner changed" notification.
type Refresh struct {
	OwnerID    credential.OwnerID
	RecordID   credential.RecordID
	Status     credential.Status
	OccurredAt time.Time
}

// Notifier delivers refresh requests.
//
//go:generate mockgen -source=profile.go -destination=mocks/mocks.go -package=mocks Notifier
type Notifier interface {
	Notify(ctx context.Context, refresh Refresh) error
}

// Noop discards every refresh. Used when no downstream is configured.
type Noop struct{}

func (Noop) Notify(context.Context, Refresh) error { return nil }
