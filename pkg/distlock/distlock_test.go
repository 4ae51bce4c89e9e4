package distlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventbus/pkg/distlock"
)

func newLocker(t *testing.T) (*miniredis.Miniredis, *distlock.Locker) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, distlock.New(client)
}

func TestLocker_MutualExclusion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, locker := newLocker(t)

	lease, err := locker.Lock(ctx, "consumer:orders", time.Minute)
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "consumer:orders", time.Minute)
	assert.ErrorIs(t, err, distlock.ErrNotAcquired)

	// A different key is independent.
	other, err := locker.Lock(ctx, "consumer:payments", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))

	// Released locks can be re-acquired.
	lease2, err := locker.Lock(ctx, "consumer:orders", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease2.Release(ctx))
}

func TestLease_ReleaseAfterExpiryIsLost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, locker := newLocker(t)

	lease, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	assert.ErrorIs(t, lease.Release(ctx), distlock.ErrLockLost)
}

func TestLease_ReleaseDoesNotStealNewHolder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, locker := newLocker(t)

	stale, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Lock(ctx, "k", time.Minute)
	require.NoError(t, err)

	// The stale lease cannot release the fresh holder's lock.
	assert.ErrorIs(t, stale.Release(ctx), distlock.ErrLockLost)
	assert.NoError(t, fresh.Release(ctx))
}

func TestLease_Extend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, locker := newLocker(t)

	lease, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)

	require.NoError(t, lease.Extend(ctx, time.Minute))
	assert.Greater(t, mr.TTL("k"), 30*time.Second)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, lease.Extend(ctx, time.Minute), distlock.ErrLockLost)
}
