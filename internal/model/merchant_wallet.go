package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 商户流水类型
const (
	MerchantTxCredit     = "credit"
	MerchantTxDebit      = "debit"
	MerchantTxWithdrawal = "withdrawal"
	MerchantTxRefund     = "refund"
	MerchantTxAdjustment = "adjustment"
)

// 商户流水状态
const (
	MerchantTxStatusPending   = "pending"
	MerchantTxStatusCompleted = "completed"
	MerchantTxStatusFailed    = "failed"
)

// MerchantWallet 商户结算钱包
type MerchantWallet struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	MerchantID        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"merchant_id"`
	StoreID           string          `gorm:"type:varchar(64);index" json:"store_id"`
	Total             decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total"`
	Available         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"available"`
	Pending           decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"pending"`
	Withdrawn         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"withdrawn"`
	Held              decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"held"`
	TotalSales        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_sales"`
	TotalPlatformFees decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_platform_fees"`
	NetSales          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"net_sales"`
	TotalOrders       int64           `gorm:"not null;default:0" json:"total_orders"`
	TotalWithdrawals  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_withdrawals"`
	TotalCoinAwards   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_coin_awards"`
	LastSettlementAt  *time.Time      `json:"last_settlement_at,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MerchantWallet) TableName() string {
	return "merchant_wallet"
}

// MerchantWalletTransaction 商户钱包子流水
//
// CreditOrderID 只在 credit 类型上赋值，唯一索引保证同一订单最多一笔入账；
// 其它类型为 NULL，不受唯一约束影响。
type MerchantWalletTransaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	WalletID      int64           `gorm:"not null;index" json:"wallet_id"`
	MerchantID    string          `gorm:"type:varchar(64);not null;index" json:"merchant_id"`
	Type          string          `gorm:"type:varchar(20);not null" json:"type"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	PlatformFee   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"platform_fee"`
	NetAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"net_amount"`
	OrderID       string          `gorm:"type:varchar(64);index" json:"order_id,omitempty"`
	OrderNumber   string          `gorm:"type:varchar(64)" json:"order_number,omitempty"`
	CreditOrderID *string         `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	Status        string          `gorm:"type:varchar(20);not null" json:"status"`
	Description   string          `gorm:"type:varchar(256)" json:"description"`
	Reference     string          `gorm:"type:varchar(128)" json:"reference,omitempty"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

func (MerchantWalletTransaction) TableName() string {
	return "merchant_wallet_transaction"
}
