package model

import (
	"time"
)

// Wallet 用户钱包聚合，是流水的派生缓存，不是事实来源
// 与流水的一致性只由对账任务定期检查
type Wallet struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"account_id"`
	Total          int64     `gorm:"not null;default:0" json:"total"`
	Available      int64     `gorm:"not null;default:0" json:"available"`
	Pending        int64     `gorm:"not null;default:0" json:"pending"`
	HeldForBilling int64     `gorm:"not null;default:0" json:"held_for_billing"`
	TotalEarned    int64     `gorm:"not null;default:0" json:"total_earned"`
	TotalSpent     int64     `gorm:"not null;default:0" json:"total_spent"`
	TotalCashback  int64     `gorm:"not null;default:0" json:"total_cashback"`
	TotalRefunded  int64     `gorm:"not null;default:0" json:"total_refunded"`
	TotalExpired   int64     `gorm:"not null;default:0" json:"total_expired"`
	TotalBranded   int64     `gorm:"not null;default:0" json:"total_branded"`
	LastEntryAt    time.Time `json:"last_entry_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}

// WalletBucket 分类余额（按流水 category 归集）
type WalletBucket struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID  string     `gorm:"type:varchar(64);not null;uniqueIndex:uk_bucket,priority:1" json:"account_id"`
	BucketType string     `gorm:"type:varchar(32);not null;uniqueIndex:uk_bucket,priority:2" json:"bucket_type"`
	Amount     int64      `gorm:"not null;default:0" json:"amount"`
	IsActive   bool       `gorm:"not null;default:true" json:"is_active"`
	LastUsed   *time.Time `json:"last_used,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (WalletBucket) TableName() string {
	return "wallet_bucket"
}

// BrandedBalance 商户品牌币余额，只能在对应商户使用，不计入全局余额
type BrandedBalance struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID     string     `gorm:"type:varchar(64);not null;uniqueIndex:uk_branded,priority:1" json:"account_id"`
	MerchantID    string     `gorm:"type:varchar(64);not null;uniqueIndex:uk_branded,priority:2" json:"merchant_id"`
	MerchantLabel string     `gorm:"type:varchar(128)" json:"merchant_label"`
	Amount        int64      `gorm:"not null;default:0" json:"amount"`
	EarnedDate    time.Time  `json:"earned_date"`
	LastUsed      *time.Time `json:"last_used,omitempty"`
}

func (BrandedBalance) TableName() string {
	return "wallet_branded_balance"
}

// WalletView 钱包完整视图
type WalletView struct {
	Wallet          *Wallet           `json:"wallet"`
	Buckets         []*WalletBucket   `json:"buckets"`
	BrandedBalances []*BrandedBalance `json:"branded_balances"`
}
