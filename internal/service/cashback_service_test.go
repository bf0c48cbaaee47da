package service

import (
	"context"
	"testing"

	"rewardledger/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCashbackFor(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, int64(100), env.svc.Cashback.CashbackFor(decimal.NewFromInt(50)))
	assert.Equal(t, int64(1), env.svc.Cashback.CashbackFor(decimal.RequireFromString("0.99")))
	assert.Zero(t, env.svc.Cashback.CashbackFor(decimal.RequireFromString("0.49")))
}

func TestIssueForOrder_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := &model.Order{OrderNo: "ORD-1", AccountID: "u1", TotalAmount: decimal.NewFromInt(50)}

	record, err := env.svc.Cashback.IssueForOrder(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, model.CashbackStatusCredited, record.Status)
	require.NotNil(t, record.LedgerEntryID)

	again, err := env.svc.Cashback.IssueForOrder(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, record.ID, again.ID)
	assert.Equal(t, int64(100), balanceOf(t, env, "u1"))

	view, err := env.svc.Ledger.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), view.Wallet.TotalCashback)
}

func TestCreditPending_RecoversStrandedRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.db.Create(&model.CashbackRecord{
		AccountID: "u1",
		OrderNo:   "ORD-1",
		Amount:    40,
		Status:    model.CashbackStatusPending,
		CreatedAt: env.clock.Now(),
	}).Error)

	credited, err := env.svc.Cashback.CreditPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, credited)
	assert.Equal(t, int64(40), balanceOf(t, env, "u1"))

	credited, err = env.svc.Cashback.CreditPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, credited)
}

func TestCredit_AlreadyCreditedRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := &model.Order{OrderNo: "ORD-1", AccountID: "u1", TotalAmount: decimal.NewFromInt(50)}

	record, err := env.svc.Cashback.IssueForOrder(ctx, order)
	require.NoError(t, err)

	stale := *record
	stale.Status = model.CashbackStatusPending
	latest, err := env.svc.Cashback.Credit(ctx, &stale)
	require.NoError(t, err)
	assert.Equal(t, model.CashbackStatusCredited, latest.Status)
	assert.Equal(t, int64(100), balanceOf(t, env, "u1"))
}
