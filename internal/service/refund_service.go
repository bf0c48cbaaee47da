package service

import (
	"context"
	"fmt"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/infrastructure/lock"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/pkg/clock"
	"rewardledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type RefundService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	clock       clock.Clock
	ledger      *LedgerService
	notifier    *NotificationService
	orderRepo   *repository.OrderRepository
}

func NewRefundService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, clk clock.Clock, ledger *LedgerService, notifier *NotificationService) *RefundService {
	return &RefundService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		clock:       clk,
		ledger:      ledger,
		notifier:    notifier,
		orderRepo:   repository.NewOrderRepository(db),
	}
}

type RefundRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	OrderNo   string `json:"order_no" binding:"required"`
	Reason    string `json:"reason"`
}

type RefundResponse struct {
	RefundNo      string          `json:"refund_no,omitempty"`
	OrderNo       string          `json:"order_no"`
	CoinsRefunded int64           `json:"coins_refunded"`
	GatewayAmount decimal.Decimal `json:"gateway_amount"`
	Status        string          `json:"status"`
	Message       string          `json:"message,omitempty"`
}

// refundEvent 写入 settlement topic，由网关侧消费完成现金部分退款
type refundEvent struct {
	RefundNo      string          `json:"refund_no"`
	OrderNo       string          `json:"order_no"`
	AccountID     string          `json:"account_id"`
	MerchantID    string          `json:"merchant_id"`
	CoinsRefunded int64           `json:"coins_refunded"`
	GatewayAmount decimal.Decimal `json:"gateway_amount"`
	Reason        string          `json:"reason"`
	RefundedAt    time.Time       `json:"refunded_at"`
}

func alreadyRefunded(order *model.Order) *RefundResponse {
	return &RefundResponse{
		OrderNo:       order.OrderNo,
		CoinsRefunded: order.CoinsUsed,
		GatewayAmount: order.GatewayAmount,
		Status:        model.OrderStatusRefunded,
		Message:       "已退款，请勿重复操作",
	}
}

// Refund PAID -> REFUNDED：硬币部分写 refunded 流水退回，现金部分发结算事件
func (s *RefundService) Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, req.OrderNo)
	if err != nil {
		return nil, err
	}
	if order.Status == model.OrderStatusRefunded {
		return alreadyRefunded(order), nil
	}
	if order.Status != model.OrderStatusPaid {
		return nil, fmt.Errorf("%w: 订单状态不允许退款，当前状态 %s", ErrOrderStatusInvalid, order.Status)
	}

	refundLock := lock.NewDistributedLock(
		s.redisClient,
		fmt.Sprintf("refund:lock:order:%s", req.OrderNo),
		req.RequestID,
		30*time.Second,
	)
	if err := refundLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer func() { _, _ = refundLock.Unlock(context.Background()) }()

	order, err = s.orderRepo.GetByOrderNo(ctx, req.OrderNo)
	if err != nil {
		return nil, err
	}
	if order.Status == model.OrderStatusRefunded {
		return alreadyRefunded(order), nil
	}
	if order.Status != model.OrderStatusPaid {
		return nil, fmt.Errorf("%w: 订单状态不允许退款，当前状态 %s", ErrOrderStatusInvalid, order.Status)
	}

	refundNo := idgen.GenerateRefundNo()
	now := s.clock.Now()
	event := refundEvent{
		RefundNo:      refundNo,
		OrderNo:       order.OrderNo,
		AccountID:     order.AccountID,
		MerchantID:    order.MerchantID,
		CoinsRefunded: order.CoinsUsed,
		GatewayAmount: order.GatewayAmount,
		Reason:        req.Reason,
		RefundedAt:    now,
	}

	within := func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, order.OrderNo, model.OrderStatusPaid, model.OrderStatusRefunded, now, nil); err != nil {
			return fmt.Errorf("更新订单状态失败: %w", err)
		}
		if err := s.notifier.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Settlement, refundNo, event); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}
		return nil
	}

	if order.CoinsUsed > 0 {
		_, err = s.ledger.Append(ctx, &AppendRequest{
			AccountID:   order.AccountID,
			Kind:        model.EntryKindRefunded,
			Amount:      order.CoinsUsed,
			Source:      model.SourceOrder,
			Description: fmt.Sprintf("订单 %s 退款", order.OrderNo),
			Metadata:    model.EntryMetadata{OrderNo: order.OrderNo, MerchantID: order.MerchantID, Note: req.Reason},
			Within: func(tx *gorm.DB, entry *model.LedgerEntry) error {
				return within(tx)
			},
		})
	} else {
		err = s.db.WithContext(ctx).Transaction(within)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"refund_no":  refundNo,
		"order_no":   order.OrderNo,
		"account_id": order.AccountID,
		"coins":      order.CoinsUsed,
	}).Info("退款成功")

	s.notifier.Send(ctx, order.AccountID, "退款成功", fmt.Sprintf("订单 %s 已退款", order.OrderNo))

	return &RefundResponse{
		RefundNo:      refundNo,
		OrderNo:       order.OrderNo,
		CoinsRefunded: order.CoinsUsed,
		GatewayAmount: order.GatewayAmount,
		Status:        model.OrderStatusRefunded,
		Message:       "退款成功",
	}, nil
}
