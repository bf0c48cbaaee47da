package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusCreated   = "CREATED"
	OrderStatusPaying    = "PAYING"
	OrderStatusPaid      = "PAID"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusFailed    = "FAILED"
	OrderStatusClosed    = "CLOSED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRefunded  = "REFUNDED"
)

var ValidStatusTransitions = map[string][]string{
	OrderStatusCreated: {OrderStatusPaying, OrderStatusPaid, OrderStatusClosed, OrderStatusCancelled},
	OrderStatusPaying:  {OrderStatusPaid, OrderStatusFailed},
	OrderStatusPaid:    {OrderStatusDelivered, OrderStatusRefunded},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// 支付网关状态
const (
	GatewayStatusNone    = "none"
	GatewayStatusPending = "pending"
	GatewayStatusPaid    = "paid"
	GatewayStatusFailed  = "failed"
)

// Order 订单：CoinsUsed 部分走硬币流水扣减，剩余部分走支付网关
type Order struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	RequestID     string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"`
	AccountID     string          `gorm:"type:varchar(64);index;not null" json:"account_id"`
	MerchantID    string          `gorm:"type:varchar(64);index;not null" json:"merchant_id"`
	StoreID       string          `gorm:"type:varchar(64)" json:"store_id"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_amount"`
	CoinsUsed     int64           `gorm:"not null;default:0" json:"coins_used"`
	GatewayAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"gateway_amount"`
	GatewayStatus string          `gorm:"type:varchar(20);not null" json:"gateway_status"`
	Status        string          `gorm:"type:varchar(20);index;not null" json:"status"`
	ExpiredAt     time.Time       `gorm:"not null" json:"expired_at"`
	PayingSince   *time.Time      `gorm:"index" json:"paying_since,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt     time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}
