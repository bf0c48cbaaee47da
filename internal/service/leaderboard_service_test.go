package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderboard_RanksRecentEarners(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	earn(t, env, "old", 1000)
	env.clock.Advance(40 * day)
	earn(t, env, "u1", 30)
	earn(t, env, "u2", 80)
	earn(t, env, "u1", 10)
	spend(t, env, "u2", 50)

	board, err := env.svc.Leaderboard.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, LeaderboardEntry{Rank: 1, AccountID: "u2", Coins: 80}, board.Entries[0])
	assert.Equal(t, LeaderboardEntry{Rank: 2, AccountID: "u1", Coins: 40}, board.Entries[1])

	// 缓存命中时不重新计算
	earn(t, env, "u3", 500)
	cached, err := env.svc.Leaderboard.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, cached.Entries, 2)

	env.mr.FastForward(2 * leaderboardTTL)
	fresh, err := env.svc.Leaderboard.Get(ctx)
	require.NoError(t, err)
	require.Len(t, fresh.Entries, 3)
	assert.Equal(t, "u3", fresh.Entries[0].AccountID)
}
