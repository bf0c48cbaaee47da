package model

import (
	"time"
)

const (
	CashbackStatusPending  = "pending"
	CashbackStatusCredited = "credited"
	CashbackStatusRejected = "rejected"
)

// CashbackRecord 订单返现记录，入账时写一笔 source=cashback 的 earned 流水
type CashbackRecord struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID     string     `gorm:"type:varchar(64);not null;index" json:"account_id"`
	OrderNo       string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	Amount        int64      `gorm:"not null" json:"amount"`
	Status        string     `gorm:"type:varchar(20);not null;index" json:"status"`
	LedgerEntryID *int64     `json:"ledger_entry_id,omitempty"`
	CreditedAt    *time.Time `json:"credited_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
}

func (CashbackRecord) TableName() string {
	return "cashback_record"
}
