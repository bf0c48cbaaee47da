package service

import (
	"context"
	"fmt"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/pkg/clock"
	"rewardledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OrderService 订单：硬币部分走流水扣减，剩余部分等待支付网关
type OrderService struct {
	db        *gorm.DB
	cfg       *config.Config
	clock     clock.Clock
	ledger    *LedgerService
	merchants *MerchantWalletService
	cashback  *CashbackService
	notifier  *NotificationService
	orderRepo *repository.OrderRepository
}

func NewOrderService(db *gorm.DB, cfg *config.Config, clk clock.Clock, ledger *LedgerService, merchants *MerchantWalletService, cashback *CashbackService, notifier *NotificationService) *OrderService {
	return &OrderService{
		db:        db,
		cfg:       cfg,
		clock:     clk,
		ledger:    ledger,
		merchants: merchants,
		cashback:  cashback,
		notifier:  notifier,
		orderRepo: repository.NewOrderRepository(db),
	}
}

type CreateOrderRequest struct {
	RequestID   string          `json:"request_id" binding:"required"`
	AccountID   string          `json:"account_id" binding:"required"`
	MerchantID  string          `json:"merchant_id" binding:"required"`
	StoreID     string          `json:"store_id"`
	TotalAmount decimal.Decimal `json:"total_amount" binding:"required"`
	CoinsToUse  int64           `json:"coins_to_use"`
}

func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*model.Order, error) {
	if !req.TotalAmount.IsPositive() || req.CoinsToUse < 0 {
		return nil, ErrInvalidAmount
	}
	coinValue := CoinsToMoney(req.CoinsToUse)
	if coinValue.GreaterThan(req.TotalAmount) {
		return nil, fmt.Errorf("使用硬币抵扣金额 %s 超过订单金额 %s", coinValue.StringFixed(2), req.TotalAmount.StringFixed(2))
	}

	existingOrder, err := s.orderRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if existingOrder != nil {
		return existingOrder, nil
	}

	now := s.clock.Now()
	gatewayAmount := req.TotalAmount.Sub(coinValue)
	gatewayStatus := model.GatewayStatusNone
	if gatewayAmount.IsPositive() {
		gatewayStatus = model.GatewayStatusPending
	}

	order := &model.Order{
		OrderNo:       idgen.GenerateOrderNo(),
		RequestID:     req.RequestID,
		AccountID:     req.AccountID,
		MerchantID:    req.MerchantID,
		StoreID:       req.StoreID,
		TotalAmount:   req.TotalAmount,
		CoinsUsed:     req.CoinsToUse,
		GatewayAmount: gatewayAmount,
		GatewayStatus: gatewayStatus,
		Status:        model.OrderStatusCreated,
		ExpiredAt:     now.Add(time.Duration(s.cfg.Business.OrderTimeoutMinutes) * time.Minute),
		CreatedAt:     now,
	}

	if err := s.orderRepo.Create(ctx, nil, order); err != nil {
		if repository.IsDuplicateKey(err) {
			return s.orderRepo.GetByRequestID(ctx, req.RequestID)
		}
		return nil, err
	}

	return order, nil
}

// PayOrder 扣减硬币部分；没有网关金额直接 PAID，否则进入 PAYING 等待网关结果
// 订单状态更新与扣减流水同一事务，订单状态已变化时扣减回滚
func (s *OrderService) PayOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusCreated {
		return nil, fmt.Errorf("%w: 当前状态 %s", ErrOrderStatusInvalid, order.Status)
	}

	target := model.OrderStatusPaying
	if !order.GatewayAmount.IsPositive() {
		target = model.OrderStatusPaid
	}

	now := s.clock.Now()
	if order.CoinsUsed > 0 {
		_, err = s.ledger.Append(ctx, &AppendRequest{
			AccountID:   order.AccountID,
			Kind:        model.EntryKindSpent,
			Amount:      order.CoinsUsed,
			Source:      model.SourceOrder,
			Description: fmt.Sprintf("订单 %s 硬币抵扣", order.OrderNo),
			Metadata:    model.EntryMetadata{OrderNo: order.OrderNo, MerchantID: order.MerchantID},
			Within: func(tx *gorm.DB, entry *model.LedgerEntry) error {
				return s.orderRepo.UpdateStatus(ctx, tx, order.OrderNo, model.OrderStatusCreated, target, now, nil)
			},
		})
	} else {
		err = s.orderRepo.UpdateStatus(ctx, nil, order.OrderNo, model.OrderStatusCreated, target, now, nil)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_no":   order.OrderNo,
		"account_id": order.AccountID,
		"coins":      order.CoinsUsed,
		"status":     target,
	}).Info("订单支付")

	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

// ConfirmGatewayPayment 网关确认支付成功：PAYING -> PAID
func (s *OrderService) ConfirmGatewayPayment(ctx context.Context, orderNo string) (*model.Order, error) {
	err := s.orderRepo.UpdateStatus(ctx, nil, orderNo, model.OrderStatusPaying, model.OrderStatusPaid, s.clock.Now(),
		map[string]interface{}{"gateway_status": model.GatewayStatusPaid})
	if err != nil {
		return nil, err
	}
	logrus.WithField("order_no", orderNo).Info("网关支付确认")
	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

// FailGatewayPayment 网关支付失败：PAYING -> FAILED，已扣硬币退回
func (s *OrderService) FailGatewayPayment(ctx context.Context, orderNo string) (*model.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	extra := map[string]interface{}{"gateway_status": model.GatewayStatusFailed}
	if order.CoinsUsed > 0 {
		_, err = s.ledger.Append(ctx, &AppendRequest{
			AccountID:   order.AccountID,
			Kind:        model.EntryKindRefunded,
			Amount:      order.CoinsUsed,
			Source:      model.SourceOrder,
			Description: fmt.Sprintf("订单 %s 支付失败退回硬币", order.OrderNo),
			Metadata:    model.EntryMetadata{OrderNo: order.OrderNo, MerchantID: order.MerchantID},
			Within: func(tx *gorm.DB, entry *model.LedgerEntry) error {
				return s.orderRepo.UpdateStatus(ctx, tx, orderNo, model.OrderStatusPaying, model.OrderStatusFailed, now, extra)
			},
		})
	} else {
		err = s.orderRepo.UpdateStatus(ctx, nil, orderNo, model.OrderStatusPaying, model.OrderStatusFailed, now, extra)
	}
	if err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, order.AccountID, "支付失败", fmt.Sprintf("订单 %s 支付失败，已退回 %d 硬币", orderNo, order.CoinsUsed))
	logrus.WithField("order_no", orderNo).Warn("网关支付失败")
	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

// FulfillOrder 订单履约：PAID -> DELIVERED，随后给商户结算入账并发放返现
// 对已履约订单重复调用只会重放结算和返现，两者都是幂等的
func (s *OrderService) FulfillOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case model.OrderStatusPaid:
		if err := s.orderRepo.UpdateStatus(ctx, nil, orderNo, model.OrderStatusPaid, model.OrderStatusDelivered, s.clock.Now(), nil); err != nil {
			return nil, err
		}
	case model.OrderStatusDelivered:
	default:
		return nil, fmt.Errorf("%w: 当前状态 %s", ErrOrderStatusInvalid, order.Status)
	}

	logger := logrus.WithFields(logrus.Fields{"order_no": orderNo, "merchant_id": order.MerchantID})

	if _, err := s.merchants.OpenWallet(ctx, order.MerchantID, order.StoreID); err != nil {
		return nil, fmt.Errorf("开通商户钱包失败: %w", err)
	}
	fee := s.merchants.PlatformFee(order.TotalAmount)
	if _, err := s.merchants.CreditOrder(ctx, order.MerchantID, order.OrderNo, order.OrderNo, order.TotalAmount, fee); err != nil {
		logger.WithError(err).Error("商户结算入账失败")
		return nil, fmt.Errorf("商户结算入账失败: %w", err)
	}

	if _, err := s.cashback.IssueForOrder(ctx, order); err != nil {
		// 返现记录已落库的会由补偿任务继续入账
		logger.WithError(err).Warn("返现发放失败")
	}

	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

func (s *OrderService) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

func (s *OrderService) GetOrderByRequestID(ctx context.Context, requestID string) (*model.Order, error) {
	order, err := s.orderRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) CancelOrder(ctx context.Context, orderNo string) error {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}

	return s.orderRepo.UpdateStatus(ctx, nil, orderNo, order.Status, model.OrderStatusCancelled, s.clock.Now(), nil)
}

func (s *OrderService) CloseExpiredOrders(ctx context.Context, limit int) (int, error) {
	orders, err := s.orderRepo.GetExpiredOrders(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}

	closedCount := 0
	for _, order := range orders {
		err := s.orderRepo.UpdateStatus(ctx, nil, order.OrderNo, model.OrderStatusCreated, model.OrderStatusClosed, s.clock.Now(), nil)
		if err == nil {
			closedCount++
		}
	}

	return closedCount, nil
}

// PayingOrders 支付中超过 olderThan 的订单，供结算恢复任务核实
func (s *OrderService) PayingOrders(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Order, error) {
	return s.orderRepo.GetPayingOrders(ctx, s.clock.Now().Add(-olderThan), limit)
}

func (s *OrderService) ListAccountOrders(ctx context.Context, accountID string, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orderRepo.ListByAccountID(ctx, accountID, page, pageSize)
}
