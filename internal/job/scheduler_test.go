package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"rewardledger/internal/infrastructure/lock"
	"rewardledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunExclusive(t *testing.T) {
	_, redisClient := testutil.NewRedis(t)
	s := NewScheduler(redisClient)
	ctx := context.Background()

	runs := 0
	task := func(ctx context.Context) error {
		runs++
		return nil
	}

	require.NoError(t, s.RunExclusive(ctx, JobReconciliation, time.Minute, task))
	assert.Equal(t, 1, runs)

	// 另一个实例持有锁时跳过
	held := lock.NewJobLock(redisClient, JobReconciliation, time.Minute)
	ok, err := held.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	err = s.RunExclusive(ctx, JobReconciliation, time.Minute, task)
	assert.ErrorIs(t, err, lock.ErrLockContention)
	assert.Equal(t, 1, runs)

	// 其它任务不受影响
	require.NoError(t, s.RunExclusive(ctx, JobExpiry, time.Minute, task))
	assert.Equal(t, 2, runs)

	_, err = held.Unlock(ctx)
	require.NoError(t, err)
	require.NoError(t, s.RunExclusive(ctx, JobReconciliation, time.Minute, task))
	assert.Equal(t, 3, runs)
}

func TestScheduler_RunExclusiveReleasesLockOnError(t *testing.T) {
	mr, redisClient := testutil.NewRedis(t)
	s := NewScheduler(redisClient)
	boom := errors.New("boom")

	err := s.RunExclusive(context.Background(), JobExpiry, time.Minute, func(ctx context.Context) error {
		assert.True(t, mr.Exists("job:lock:"+JobExpiry))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("job:lock:"+JobExpiry))
}

func TestScheduler_Register(t *testing.T) {
	_, redisClient := testutil.NewRedis(t)
	s := NewScheduler(redisClient)
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, s.Register(JobLeaderboard, "*/10 * * * *", time.Minute, noop))
	assert.Error(t, s.Register(JobLeaderboard, "*/5 * * * *", time.Minute, noop))
	assert.Error(t, s.Register("broken", "not a schedule", time.Minute, noop))
}

func TestRegisterScheduledJobs(t *testing.T) {
	_, redisClient := testutil.NewRedis(t)
	cfg := testutil.NewConfig()
	s := NewScheduler(redisClient)

	require.NoError(t, RegisterScheduledJobs(s, &cfg.Jobs, ScheduledServices{}))
	assert.Len(t, s.entries, 3)
}
