package job

import (
	"context"
	"time"

	"rewardledger/internal/service"

	"github.com/sirupsen/logrus"
)

// OrderTimeoutJob 关闭超时未支付的订单
type OrderTimeoutJob struct {
	orders    *service.OrderService
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
	logger    *logrus.Entry
}

func NewOrderTimeoutJob(orders *service.OrderService) *OrderTimeoutJob {
	return &OrderTimeoutJob{
		orders:    orders,
		stopCh:    make(chan struct{}),
		interval:  10 * time.Second,
		batchSize: 100,
		logger:    logrus.WithField("job", "order_timeout"),
	}
}

func (j *OrderTimeoutJob) Start(ctx context.Context) {
	j.logger.Info("订单超时任务启动")

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
			j.closeExpiredOrders(ctx)
		}
	}
}

func (j *OrderTimeoutJob) Stop() {
	close(j.stopCh)
}

func (j *OrderTimeoutJob) closeExpiredOrders(ctx context.Context) {
	closed, err := j.orders.CloseExpiredOrders(ctx, j.batchSize)
	if err != nil {
		j.logger.WithError(err).Error("关闭超时订单失败")
		return
	}
	if closed > 0 {
		j.logger.WithField("closed", closed).Info("超时订单已关闭")
	}
}
