package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"rewardledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAppend_EarnThenSpend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ledger := env.svc.Ledger

	earned, err := ledger.AppendEntry(ctx, "u1", model.EntryKindEarned, 100, model.SourceEngagement, "签到", model.EntryMetadata{}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), earned.Sequence)
	assert.Equal(t, int64(100), earned.ResultingBalance)

	spent, err := ledger.AppendEntry(ctx, "u1", model.EntryKindSpent, 30, model.SourceOrder, "抵扣", model.EntryMetadata{}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), spent.Sequence)
	assert.Equal(t, int64(70), spent.ResultingBalance)

	balance, err := ledger.GetBalance(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)

	view, err := ledger.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), view.Wallet.Total)
	assert.Equal(t, int64(70), view.Wallet.Available)
	assert.Equal(t, int64(100), view.Wallet.TotalEarned)
	assert.Equal(t, int64(30), view.Wallet.TotalSpent)
}

func TestAppend_EarnedGetsDefaultExpiry(t *testing.T) {
	env := newTestEnv(t)

	entry, err := env.svc.Ledger.AppendEntry(context.Background(), "u1", model.EntryKindEarned, 10, model.SourceEngagement, "", model.EntryMetadata{}, "")
	require.NoError(t, err)
	require.NotNil(t, entry.ExpiresAt)
	assert.Equal(t, env.clock.Now().AddDate(0, 0, 365), *entry.ExpiresAt)

	bonus, err := env.svc.Ledger.AppendEntry(context.Background(), "u1", model.EntryKindBonus, 10, model.SourceAdmin, "", model.EntryMetadata{}, "")
	require.NoError(t, err)
	assert.Nil(t, bonus.ExpiresAt)
}

func TestAppend_Overdraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Ledger.AppendEntry(ctx, "u1", model.EntryKindEarned, 20, model.SourceEngagement, "", model.EntryMetadata{}, "")
	require.NoError(t, err)

	_, err = env.svc.Ledger.AppendEntry(ctx, "u1", model.EntryKindSpent, 50, model.SourceOrder, "", model.EntryMetadata{}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))

	var insufficient *InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "20", insufficient.Available)
	assert.Equal(t, "50", insufficient.Requested)

	entries, total, err := env.svc.Ledger.ListEntries(ctx, "u1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, entries, 1)
}

func TestAppend_RejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Ledger.AppendEntry(ctx, "u1", "gift", 10, model.SourceAdmin, "", model.EntryMetadata{}, "")
	assert.ErrorIs(t, err, ErrInvalidEntryKind)

	_, err = env.svc.Ledger.AppendEntry(ctx, "u1", model.EntryKindEarned, -1, model.SourceAdmin, "", model.EntryMetadata{}, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAppend_CapAtBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Ledger.AppendEntry(ctx, "u1", model.EntryKindEarned, 40, model.SourceEngagement, "", model.EntryMetadata{}, "")
	require.NoError(t, err)

	entry, err := env.svc.Ledger.Append(ctx, &AppendRequest{
		AccountID:    "u1",
		Kind:         model.EntryKindExpired,
		Amount:       100,
		Source:       model.SourceExpiry,
		CapAtBalance: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), entry.Amount)
	assert.Equal(t, int64(0), entry.ResultingBalance)
}

func TestAppend_WithinErrorRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := env.svc.Ledger.Append(ctx, &AppendRequest{
		AccountID: "u1",
		Kind:      model.EntryKindEarned,
		Amount:    10,
		Source:    model.SourceEngagement,
		Within: func(tx *gorm.DB, entry *model.LedgerEntry) error {
			return boom
		},
	})
	require.ErrorIs(t, err, boom)

	balance, err := env.svc.Ledger.GetBalance(ctx, "u1", "")
	require.NoError(t, err)
	assert.Zero(t, balance)

	view, err := env.svc.Ledger.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, view.Wallet.Total)
	assert.Zero(t, view.Wallet.ID)
}

func TestAppend_ConcurrentWritesSerialized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Ledger.AppendEntry(ctx, "u1", model.EntryKindEarned, 10, model.SourceEngagement, fmt.Sprintf("#%d", i), model.EntryMetadata{}, "")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	entries, total, err := env.svc.Ledger.ListEntries(ctx, "u1", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), total)

	seen := make(map[int64]bool)
	for _, e := range entries {
		assert.False(t, seen[e.Sequence])
		seen[e.Sequence] = true
		assert.Equal(t, e.Sequence*10, e.ResultingBalance)
	}

	balance, err := env.svc.Ledger.GetBalance(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestGetBalance_ByCategory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Ledger.AppendEntry(ctx, "u1", model.EntryKindEarned, 40, model.SourceEngagement, "", model.EntryMetadata{}, "food")
	require.NoError(t, err)
	_, err = env.svc.Ledger.AppendEntry(ctx, "u1", model.EntryKindEarned, 25, model.SourceEngagement, "", model.EntryMetadata{}, "")
	require.NoError(t, err)
	_, err = env.svc.Ledger.AppendEntry(ctx, "u1", model.EntryKindSpent, 10, model.SourceOrder, "", model.EntryMetadata{}, "food")
	require.NoError(t, err)

	food, err := env.svc.Ledger.GetBalance(ctx, "u1", "food")
	require.NoError(t, err)
	assert.Equal(t, int64(30), food)

	global, err := env.svc.Ledger.GetBalance(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(55), global)

	view, err := env.svc.Ledger.GetWallet(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, view.Buckets, 1)
	assert.Equal(t, int64(30), view.Buckets[0].Amount)
}
