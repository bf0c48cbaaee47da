package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestTryLock_Exclusive(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	a := NewDistributedLock(client, "k", "a", time.Minute)
	b := NewDistributedLock(client, "k", "b", time.Minute)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnlock_OnlyOwner(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	a := NewDistributedLock(client, "k", "a", time.Minute)
	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	other := NewDistributedLock(client, "k", "b", time.Minute)
	released, err := other.Unlock(ctx)
	require.NoError(t, err)
	assert.False(t, released)
	assert.True(t, mr.Exists("k"))

	released, err = a.Unlock(ctx)
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("k"))
}

func TestLock_ExpiresAfterTTL(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	crashed := NewDistributedLock(client, "k", "", 10*time.Second)
	ok, err := crashed.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	next := NewDistributedLock(client, "k", "", 10*time.Second)
	ok, err = next.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_GivesUpAfterRetries(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	holder := NewDistributedLock(client, "k", "", time.Minute)
	_, err := holder.TryLock(ctx)
	require.NoError(t, err)

	waiter := NewDistributedLock(client, "k", "", time.Minute)
	err = waiter.Lock(ctx, time.Millisecond, 3)
	assert.ErrorIs(t, err, ErrLockFailed)
}

func TestRunExclusive_SkipsWhenHeld(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	held := NewJobLock(client, "reconciliation", time.Minute)
	_, err := held.TryLock(ctx)
	require.NoError(t, err)

	called := false
	err = RunExclusive(ctx, client, "reconciliation", time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockContention)
	assert.False(t, called)

	_, err = held.Unlock(ctx)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = RunExclusive(ctx, client, "reconciliation", time.Minute, func(context.Context) error {
		called = true
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, called)
	assert.False(t, mr.Exists("job:lock:reconciliation"), "lock must be released after the run")
}
