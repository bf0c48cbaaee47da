package model

import (
	"time"
)

// 待审核奖励状态
const (
	ModerationStatusPending  = "pending"
	ModerationStatusApproved = "approved"
	ModerationStatusRejected = "rejected"
	ModerationStatusCredited = "credited"
)

// 合法的状态流转，rejected / credited 为终态
var ModerationTransitions = map[string][]string{
	ModerationStatusPending:  {ModerationStatusApproved, ModerationStatusRejected},
	ModerationStatusApproved: {ModerationStatusCredited},
}

func CanModerationTransition(from, to string) bool {
	for _, s := range ModerationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PendingCoinReward 需要人工审核的奖励，审核通过并入账后才产生真实流水
type PendingCoinReward struct {
	ID              int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID       string        `gorm:"type:varchar(64);not null;index" json:"account_id"`
	Amount          int64         `gorm:"not null" json:"amount"`
	Percentage      float64       `gorm:"not null;default:0" json:"percentage"`
	Source          string        `gorm:"type:varchar(32);not null" json:"source"`
	ReferenceType   string        `gorm:"type:varchar(32);not null" json:"reference_type"`
	ReferenceID     string        `gorm:"type:varchar(64);not null;index" json:"reference_id"`
	Status          string        `gorm:"type:varchar(20);not null;index" json:"status"`
	Metadata        EntryMetadata `gorm:"type:text;serializer:json" json:"metadata"`
	SubmittedAt     time.Time     `gorm:"not null" json:"submitted_at"`
	ReviewedAt      *time.Time    `json:"reviewed_at,omitempty"`
	CreditedAt      *time.Time    `json:"credited_at,omitempty"`
	ReviewerID      string        `gorm:"type:varchar(64)" json:"reviewer_id,omitempty"`
	ReviewNotes     string        `gorm:"type:varchar(512)" json:"review_notes,omitempty"`
	RejectionReason string        `gorm:"type:varchar(512)" json:"rejection_reason,omitempty"`
	LedgerEntryID   *int64        `json:"ledger_entry_id,omitempty"`
}

func (PendingCoinReward) TableName() string {
	return "pending_coin_reward"
}
