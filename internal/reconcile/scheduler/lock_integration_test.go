//go:build integration

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credsync/pkg/testutil/containers"
)

func TestRedisLockerExcludesSecondReplica(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	first := NewRedisLocker(rc.Client)
	second := NewRedisLocker(rc.Client)
	key := LockKey("credential-status-sync")

	lease, err := first.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Refresh(ctx, time.Minute))

	_, err = second.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lease.Release(ctx))
	assert.ErrorIs(t, lease.Refresh(ctx, time.Minute), ErrLockLost)

	lease, err = second.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	assert.NoError(t, lease.Release(ctx), "releasing an expired or released lock is not an error")
}
