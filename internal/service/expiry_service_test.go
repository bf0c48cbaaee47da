package service

import (
	"context"
	"testing"
	"time"

	"rewardledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func earn(t *testing.T, env *testEnv, account string, amount int64) *model.LedgerEntry {
	t.Helper()
	entry, err := env.svc.Ledger.AppendEntry(context.Background(), account, model.EntryKindEarned, amount, model.SourceEngagement, "", model.EntryMetadata{}, "")
	require.NoError(t, err)
	return entry
}

func spend(t *testing.T, env *testEnv, account string, amount int64) {
	t.Helper()
	_, err := env.svc.Ledger.AppendEntry(context.Background(), account, model.EntryKindSpent, amount, model.SourceOrder, "", model.EntryMetadata{}, "")
	require.NoError(t, err)
}

func TestProcessExpiredEntries_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	earn(t, env, "u1", 100)
	env.clock.Advance(10 * day)
	earn(t, env, "u1", 50)
	spend(t, env, "u1", 30)

	env.clock.Advance(356 * day)
	stats, err := env.svc.Expiry.ProcessExpiredEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AccountsProcessed)
	assert.Equal(t, 1, stats.EntriesExpired)
	assert.Equal(t, int64(100), stats.CoinsExpired)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, int64(20), balanceOf(t, env, "u1"))

	again, err := env.svc.Expiry.ProcessExpiredEntries(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.AccountsProcessed)
	assert.Zero(t, again.CoinsExpired)
	assert.Equal(t, int64(20), balanceOf(t, env, "u1"))

	view, err := env.svc.Ledger.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), view.Wallet.TotalExpired)
}

func TestProcessExpiredEntries_AggregatesAndCaps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := earn(t, env, "u1", 60)
	second := earn(t, env, "u1", 40)
	spend(t, env, "u1", 80)
	earn(t, env, "u2", 15)

	env.clock.Advance(366 * day)
	stats, err := env.svc.Expiry.ProcessExpiredEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.AccountsProcessed)
	assert.Equal(t, 3, stats.EntriesExpired)
	assert.Equal(t, int64(35), stats.CoinsExpired)

	entries, _, err := env.svc.Ledger.ListEntries(ctx, "u1", 1, 20)
	require.NoError(t, err)
	var expired []*model.LedgerEntry
	for _, e := range entries {
		if e.Kind == model.EntryKindExpired {
			expired = append(expired, e)
		}
	}
	require.Len(t, expired, 1)
	assert.Equal(t, int64(20), expired[0].Amount)
	assert.Equal(t, int64(0), expired[0].ResultingBalance)
	assert.Equal(t, int64(100), expired[0].Metadata.DueAmount)
	assert.ElementsMatch(t, []int64{first.ID, second.ID}, expired[0].Metadata.ExpiredEntryIDs)
	assert.Equal(t, []string{model.SourceEngagement}, expired[0].Metadata.ExpiredSources)
}

func TestProcessExpiredEntries_AccountFailureDoesNotAbortBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	earn(t, env, "u1", 20)
	earn(t, env, "u2", 15)
	earn(t, env, "u3", 5)
	env.clock.Advance(366 * day)

	// u2 的账户锁被占用，写流水拿不到锁
	require.NoError(t, env.mr.Set("ledger:lock:account:u2", "other-instance"))
	env.svc.Ledger.lockRetryInterval = time.Millisecond
	env.svc.Ledger.lockRetries = 2

	stats, err := env.svc.Expiry.ProcessExpiredEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.AccountsProcessed)
	assert.Equal(t, int64(25), stats.CoinsExpired)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "u2", stats.Errors[0].AccountID)
	assert.Contains(t, stats.Errors[0].Error, ErrAccountBusy.Error())

	assert.Zero(t, balanceOf(t, env, "u1"))
	assert.Zero(t, balanceOf(t, env, "u3"))
	assert.Equal(t, int64(15), balanceOf(t, env, "u2"))

	// 锁释放后下一轮补上，已处理的账户不会重复过期
	env.mr.Del("ledger:lock:account:u2")
	stats, err = env.svc.Expiry.ProcessExpiredEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 1, stats.AccountsProcessed)
	assert.Equal(t, int64(15), stats.CoinsExpired)
	assert.Zero(t, balanceOf(t, env, "u2"))
}

func TestSendPreExpiryWarnings_OncePerEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	earn(t, env, "u1", 10)
	earn(t, env, "u1", 20)
	earn(t, env, "u2", 5)

	env.clock.Advance(364 * day)
	sent, err := env.svc.Expiry.SendPreExpiryWarnings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	sent, err = env.svc.Expiry.SendPreExpiryWarnings(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestPreviewUpcomingExpirations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	earn(t, env, "u1", 100)
	env.clock.Advance(30 * day)
	earn(t, env, "u1", 50)

	env.clock.Advance(330 * day)
	preview, err := env.svc.Expiry.PreviewUpcomingExpirations(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, preview.DaysAhead)
	assert.Equal(t, int64(100), preview.TotalCoins)
	assert.Equal(t, 1, preview.EntryCount)
	require.Len(t, preview.Accounts, 1)
	assert.Equal(t, "u1", preview.Accounts[0].AccountID)

	// 预览不改动数据
	assert.Equal(t, int64(150), balanceOf(t, env, "u1"))
}

func TestExpiryRun_WarnsThenExpires(t *testing.T) {
	env := newTestEnv(t)

	earn(t, env, "u1", 10)
	env.clock.Advance(365 * day)

	stats, err := env.svc.Expiry.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.CoinsExpired)
	assert.Zero(t, balanceOf(t, env, "u1"))
}
