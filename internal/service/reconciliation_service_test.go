package service

import (
	"context"
	"testing"
	"time"

	"rewardledger/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedConsistentBooks 一笔完整订单 + 返现，账目一致
func seedConsistentBooks(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	earn(t, env, "u1", 500)
	order := createOrder(t, env, "req-1", "50.00", 500)
	_, err := env.svc.Orders.PayOrder(ctx, order.OrderNo)
	require.NoError(t, err)
	_, err = env.svc.Orders.ConfirmGatewayPayment(ctx, order.OrderNo)
	require.NoError(t, err)
	_, err = env.svc.Orders.FulfillOrder(ctx, order.OrderNo)
	require.NoError(t, err)
}

func TestRunReconciliation_CleanBooks(t *testing.T) {
	env := newTestEnv(t)
	seedConsistentBooks(t, env)

	result, err := env.svc.Reconciliation.RunReconciliation(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Discrepancies)
	assert.Equal(t, 2, result.AccountsChecked)
	assert.Len(t, result.Summary.ChecksRun, 4)
	assert.NotEmpty(t, result.RunID)
}

func TestRunReconciliation_DetectsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedConsistentBooks(t, env)

	require.NoError(t, env.db.Model(&model.Wallet{}).Where("account_id = ?", "u1").
		Update("total_cashback", gorm.Expr("total_cashback + ?", 2000)).Error)
	require.NoError(t, env.db.Model(&model.MerchantWallet{}).Where("merchant_id = ?", "m1").
		Update("total_sales", gorm.Expr("total_sales + ?", 20000)).Error)

	result, err := env.svc.Reconciliation.RunReconciliation(ctx)
	require.NoError(t, err)
	require.Len(t, result.Discrepancies, 2)

	merchant := result.Discrepancies[0]
	assert.Equal(t, model.DiscrepancyMerchantRevenue, merchant.Type)
	assert.Equal(t, "m1", merchant.AccountID)
	assert.True(t, merchant.Difference.Sub(decimal.NewFromInt(20000)).Abs().LessThan(decimal.NewFromFloat(0.01)))
	assert.Equal(t, model.SeverityCritical, merchant.Severity)

	wallet := result.Discrepancies[1]
	assert.Equal(t, model.DiscrepancyWalletCashback, wallet.Type)
	assert.Equal(t, "u1", wallet.AccountID)
	assert.Equal(t, "2000", wallet.Difference.String())
	assert.Equal(t, model.SeverityHigh, wallet.Severity)

	assert.Equal(t, 2, result.Summary.TotalDiscrepancies)
	assert.Equal(t, 1, result.Summary.BySeverity[model.SeverityCritical])
	assert.Equal(t, 1, result.Summary.BySeverity[model.SeverityHigh])

	tasks, err := env.svc.Reconciliation.OpenReviewTasks(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	var alerts int64
	require.NoError(t, env.db.Model(&model.OutboxMessage{}).Where("topic = ?", env.cfg.Kafka.Topic.ReconciliationAlert).Count(&alerts).Error)
	assert.Equal(t, int64(2), alerts)
}

func TestRunReconciliation_PersistsLatestAndHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	latest, err := env.svc.Reconciliation.GetLatestReconciliationResult(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	result, err := env.svc.Reconciliation.RunReconciliation(ctx)
	require.NoError(t, err)

	latest, err = env.svc.Reconciliation.GetLatestReconciliationResult(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, result.RunID, latest.RunID)

	byDate, err := env.svc.Reconciliation.GetResultByDate(ctx, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, result.RunID, byDate.RunID)
	assert.Equal(t, 7*24*time.Hour, env.mr.TTL("reconciliation:history:2025-01-15"))

	dates, err := env.svc.Reconciliation.HistoryDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-15"}, dates)

	_, err = env.svc.Reconciliation.GetResultByDate(ctx, env.clock.Now().AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrRecordNotFound)

	// 历史 key 过期后查不到
	env.mr.FastForward(8 * 24 * time.Hour)
	_, err = env.svc.Reconciliation.GetResultByDate(ctx, env.clock.Now())
	assert.ErrorIs(t, err, ErrRecordNotFound)

	dates, err = env.svc.Reconciliation.HistoryDates(ctx)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestSeverity(t *testing.T) {
	env := newTestEnv(t)
	rs := env.svc.Reconciliation

	assert.Equal(t, model.SeverityLow, rs.Severity(decimal.NewFromInt(99)))
	assert.Equal(t, model.SeverityMedium, rs.Severity(decimal.NewFromInt(100)))
	assert.Equal(t, model.SeverityHigh, rs.Severity(decimal.NewFromInt(1000)))
	assert.Equal(t, model.SeverityCritical, rs.Severity(decimal.NewFromInt(10000)))
}

func TestCompare_IgnoresRoundingNoise(t *testing.T) {
	env := newTestEnv(t)
	found, checked := env.svc.Reconciliation.compare("t",
		map[string]decimal.Decimal{"a": decimal.RequireFromString("10.005"), "b": decimal.NewFromInt(5)},
		map[string]decimal.Decimal{"a": decimal.NewFromInt(10), "c": decimal.NewFromInt(3)},
	)
	assert.Len(t, checked, 3)
	require.Len(t, found, 2)
	for _, d := range found {
		assert.NotEqual(t, "a", d.AccountID)
	}
}
