package repository

import (
	"context"
	"errors"
	"time"

	"rewardledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		return nil, notFound(err, ErrOrderNotFound)
	}
	return &order, nil
}

// GetByRequestID 幂等查询，不存在返回 nil
func (r *OrderRepository) GetByRequestID(ctx context.Context, requestID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 状态机校验 + 条件更新，extra 为同时更新的其它字段
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderNo, fromStatus, toStatus string, now time.Time, extra map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrOrderStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{"status": toStatus}
	for k, v := range extra {
		updates[k] = v
	}

	switch toStatus {
	case model.OrderStatusPaying:
		updates["paying_since"] = now
	case model.OrderStatusPaid:
		updates["paid_at"] = now
	case model.OrderStatusDelivered:
		updates["delivered_at"] = now
	}

	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ? AND status = ?", orderNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOrderStatusInvalid
	}

	return nil
}

func (r *OrderRepository) GetExpiredOrders(ctx context.Context, now time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND expired_at < ?", model.OrderStatusCreated, now).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// GetPayingOrders 支付中超过一段时间、需要向网关核实的订单
func (r *OrderRepository) GetPayingOrders(ctx context.Context, beforeTime time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND paying_since < ?", model.OrderStatusPaying, beforeTime).
		Order("paying_since ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) ListByAccountID(ctx context.Context, accountID string, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("account_id = ?", accountID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}

// coinsDebitedStatuses 硬币已扣减且未退回的订单状态，PAYING 时硬币部分已经扣过
var coinsDebitedStatuses = []string{model.OrderStatusPaying, model.OrderStatusPaid, model.OrderStatusDelivered}

// CoinsUsedByAccount 对账用：硬币已扣减订单的硬币使用总额
func (r *OrderRepository) CoinsUsedByAccount(ctx context.Context) (map[string]decimal.Decimal, error) {
	var rows []AccountAmount
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("account_id, SUM(coins_used) AS total").
		Where("status IN ? AND coins_used > 0", coinsDebitedStatuses).
		Group("account_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toMap(rows), nil
}

// RevenueByMerchant 对账用：已履约订单金额按商户汇总（履约时才给商户入账）
func (r *OrderRepository) RevenueByMerchant(ctx context.Context) (map[string]decimal.Decimal, error) {
	var rows []struct {
		MerchantID string
		Total      decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("merchant_id, SUM(total_amount) AS total").
		Where("status = ?", model.OrderStatusDelivered).
		Group("merchant_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.MerchantID] = row.Total
	}
	return out, nil
}
