package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLeaseManager(t *testing.T, ttl time.Duration) (*LeaseManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewLeaseManager(rdb, ttl), mr
}

func TestLeaseAcquireConflict(t *testing.T) {
	m, _ := newTestLeaseManager(t, time.Minute)
	ctx := context.Background()
	assetID := uuid.New()

	lease, err := m.Acquire(ctx, assetID)
	require.NoError(t, err)
	require.NotNil(t, lease)

	_, err = m.Acquire(ctx, assetID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	// A different asset is claimable concurrently.
	other, err := m.Acquire(ctx, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, other)
}

func TestLeaseReleaseAllowsReacquire(t *testing.T) {
	m, _ := newTestLeaseManager(t, time.Minute)
	ctx := context.Background()
	assetID := uuid.New()

	lease, err := m.Acquire(ctx, assetID)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))

	_, err = m.Acquire(ctx, assetID)
	assert.NoError(t, err)
}

func TestLeaseExpiryAllowsReacquire(t *testing.T) {
	m, mr := newTestLeaseManager(t, 50*time.Millisecond)
	ctx := context.Background()
	assetID := uuid.New()

	_, err := m.Acquire(ctx, assetID)
	require.NoError(t, err)

	mr.FastForward(time.Second)

	_, err = m.Acquire(ctx, assetID)
	assert.NoError(t, err)
}

func TestLeaseReleaseDoesNotTouchStolenLease(t *testing.T) {
	m, mr := newTestLeaseManager(t, 50*time.Millisecond)
	ctx := context.Background()
	assetID := uuid.New()

	stale, err := m.Acquire(ctx, assetID)
	require.NoError(t, err)

	// Expire the first lease; another worker claims it.
	mr.FastForward(time.Second)
	_, err = m.Acquire(ctx, assetID)
	require.NoError(t, err)

	// The original holder releasing must not delete the new owner's lease.
	require.NoError(t, stale.Release(ctx))
	_, err = m.Acquire(ctx, assetID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestLeaseExtend(t *testing.T) {
	m, mr := newTestLeaseManager(t, time.Minute)
	ctx := context.Background()
	assetID := uuid.New()

	lease, err := m.Acquire(ctx, assetID)
	require.NoError(t, err)

	ok, err := lease.Extend(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Once expired, extend reports the loss instead of resurrecting.
	mr.FastForward(2 * time.Minute)
	ok, err = lease.Extend(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
