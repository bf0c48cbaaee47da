package job

import (
	"context"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/infrastructure/gateway"
	"rewardledger/internal/model"
	"rewardledger/internal/service"

	"github.com/sirupsen/logrus"
)

// SettlementRecoveryJob 核实长时间停留在 PAYING 的订单
//
// 网关返回 paid / failed 时推进订单；网关不可用只记日志，下一轮再试。
// 同时补偿遗留的 pending 返现。
type SettlementRecoveryJob struct {
	orders    *service.OrderService
	cashback  *service.CashbackService
	provider  gateway.StatusProvider
	stopCh    chan struct{}
	interval  time.Duration
	staleness time.Duration
	batchSize int
	logger    *logrus.Entry
}

func NewSettlementRecoveryJob(cfg *config.Config, orders *service.OrderService, cashback *service.CashbackService, provider gateway.StatusProvider) *SettlementRecoveryJob {
	interval := time.Duration(cfg.Jobs.SettlementRecoveryIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SettlementRecoveryJob{
		orders:    orders,
		cashback:  cashback,
		provider:  provider,
		stopCh:    make(chan struct{}),
		interval:  interval,
		staleness: 5 * time.Minute,
		batchSize: 50,
		logger:    logrus.WithField("job", "settlement_recovery"),
	}
}

func (j *SettlementRecoveryJob) Start(ctx context.Context) {
	j.logger.Info("结算恢复任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.logger.Info("任务停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *SettlementRecoveryJob) Stop() {
	close(j.stopCh)
}

// RecoveryStats 一轮恢复的结果
type RecoveryStats struct {
	Checked     int
	Paid        int
	Failed      int
	Unavailable int
	Cashback    int
}

func (j *SettlementRecoveryJob) RunOnce(ctx context.Context) RecoveryStats {
	var stats RecoveryStats

	orders, err := j.orders.PayingOrders(ctx, j.staleness, j.batchSize)
	if err != nil {
		j.logger.WithError(err).Error("查询支付中订单失败")
		return stats
	}

	for _, order := range orders {
		stats.Checked++
		j.recoverOrder(ctx, order, &stats)
	}

	credited, err := j.cashback.CreditPending(ctx, j.batchSize)
	if err != nil {
		j.logger.WithError(err).Warn("返现补偿失败")
	}
	stats.Cashback = credited

	if stats.Checked > 0 || stats.Cashback > 0 {
		j.logger.WithFields(logrus.Fields{
			"checked":     stats.Checked,
			"paid":        stats.Paid,
			"failed":      stats.Failed,
			"unavailable": stats.Unavailable,
			"cashback":    stats.Cashback,
		}).Info("结算恢复完成")
	}
	return stats
}

func (j *SettlementRecoveryJob) recoverOrder(ctx context.Context, order *model.Order, stats *RecoveryStats) {
	logger := j.logger.WithField("order_no", order.OrderNo)

	status, err := j.provider.PaymentStatus(ctx, order.OrderNo)
	if err != nil {
		stats.Unavailable++
		logger.WithError(err).Warn("查询网关支付状态失败，下一轮重试")
		return
	}

	switch status {
	case gateway.PaymentStatusPaid:
		if _, err := j.orders.ConfirmGatewayPayment(ctx, order.OrderNo); err != nil {
			logger.WithError(err).Error("补偿更新订单为已支付失败")
			return
		}
		stats.Paid++
	case gateway.PaymentStatusFailed:
		if _, err := j.orders.FailGatewayPayment(ctx, order.OrderNo); err != nil {
			logger.WithError(err).Error("补偿关闭失败订单失败")
			return
		}
		stats.Failed++
	default:
		logger.Debug("网关仍在处理中")
	}
}
