package job

import (
	"context"
	"testing"
	"time"

	"rewardledger/internal/infrastructure/gateway"
	"rewardledger/internal/model"
	"rewardledger/internal/service"
	"rewardledger/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusProvider struct {
	statuses map[string]string
}

func (f *fakeStatusProvider) PaymentStatus(_ context.Context, orderNo string) (string, error) {
	status, ok := f.statuses[orderNo]
	if !ok {
		return "", gateway.ErrExternalOracleUnavailable
	}
	return status, nil
}

func TestSettlementRecovery_RunOnce(t *testing.T) {
	db := testutil.NewDB(t)
	_, redisClient := testutil.NewRedis(t)
	cfg := testutil.NewConfig()
	clk := testutil.NewClock()
	svcs := service.NewServices(db, redisClient, cfg, clk)
	ctx := context.Background()

	_, err := svcs.Ledger.AppendEntry(ctx, "u1", model.EntryKindEarned, 500, model.SourceEngagement, "", model.EntryMetadata{}, "")
	require.NoError(t, err)

	paying := func(requestID string, coins int64) *model.Order {
		order, err := svcs.Orders.CreateOrder(ctx, &service.CreateOrderRequest{
			RequestID:   requestID,
			AccountID:   "u1",
			MerchantID:  "m1",
			StoreID:     "s1",
			TotalAmount: decimal.RequireFromString("50.00"),
			CoinsToUse:  coins,
		})
		require.NoError(t, err)
		order, err = svcs.Orders.PayOrder(ctx, order.OrderNo)
		require.NoError(t, err)
		require.Equal(t, model.OrderStatusPaying, order.Status)
		return order
	}

	paid := paying("req-paid", 0)
	failed := paying("req-failed", 500)
	unknown := paying("req-unknown", 0)
	pending := paying("req-pending", 0)

	provider := &fakeStatusProvider{statuses: map[string]string{
		paid.OrderNo:    gateway.PaymentStatusPaid,
		failed.OrderNo:  gateway.PaymentStatusFailed,
		pending.OrderNo: gateway.PaymentStatusPending,
	}}
	recovery := NewSettlementRecoveryJob(cfg, svcs.Orders, svcs.Cashback, provider)

	// 未超过 5 分钟的订单不核实
	stats := recovery.RunOnce(ctx)
	assert.Zero(t, stats.Checked)

	clk.Advance(6 * time.Minute)
	stats = recovery.RunOnce(ctx)
	assert.Equal(t, 4, stats.Checked)
	assert.Equal(t, 1, stats.Paid)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Unavailable)

	status := func(orderNo string) string {
		order, err := svcs.Orders.GetOrder(ctx, orderNo)
		require.NoError(t, err)
		return order.Status
	}
	assert.Equal(t, model.OrderStatusPaid, status(paid.OrderNo))
	assert.Equal(t, model.OrderStatusFailed, status(failed.OrderNo))
	assert.Equal(t, model.OrderStatusPaying, status(unknown.OrderNo))
	assert.Equal(t, model.OrderStatusPaying, status(pending.OrderNo))

	// 失败订单的硬币退回
	balance, err := svcs.Ledger.GetBalance(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	// 网关恢复后下一轮补上
	provider.statuses[unknown.OrderNo] = gateway.PaymentStatusPaid
	stats = recovery.RunOnce(ctx)
	assert.Equal(t, 2, stats.Checked)
	assert.Equal(t, 1, stats.Paid)
	assert.Equal(t, model.OrderStatusPaid, status(unknown.OrderNo))
}
