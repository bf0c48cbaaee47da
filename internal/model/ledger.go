package model

import (
	"time"
)

// 流水类型
const (
	EntryKindEarned       = "earned"
	EntryKindSpent        = "spent"
	EntryKindExpired      = "expired"
	EntryKindRefunded     = "refunded"
	EntryKindBonus        = "bonus"
	EntryKindBrandedAward = "brandedAward"
)

// 流水来源
const (
	SourceOrder      = "order"
	SourcePayment    = "payment"
	SourceCashback   = "cashback"
	SourceEngagement = "engagement"
	SourceExpiry     = "expiry"
	SourceMerchant   = "merchant_award"
	SourceAdmin      = "admin"
)

// IsCredit 入账类流水
func IsCredit(kind string) bool {
	return kind == EntryKindEarned || kind == EntryKindRefunded || kind == EntryKindBonus
}

// IsDebit 出账类流水
func IsDebit(kind string) bool {
	return kind == EntryKindSpent || kind == EntryKindExpired
}

// ValidEntryKind 校验流水类型
func ValidEntryKind(kind string) bool {
	return IsCredit(kind) || IsDebit(kind) || kind == EntryKindBrandedAward
}

// EntryMetadata 流水附加信息，按来源使用不同字段
type EntryMetadata struct {
	OrderNo         string   `json:"order_no,omitempty"`
	MerchantID      string   `json:"merchant_id,omitempty"`
	MerchantLabel   string   `json:"merchant_label,omitempty"`
	RewardAction    string   `json:"reward_action,omitempty"`
	ReferenceID     string   `json:"reference_id,omitempty"`
	ModerationID    int64    `json:"moderation_id,omitempty"`
	CashbackID      int64    `json:"cashback_id,omitempty"`
	ExpiredEntryIDs []int64  `json:"expired_entry_ids,omitempty"`
	ExpiredSources  []string `json:"expired_sources,omitempty"`
	DueAmount       int64    `json:"due_amount,omitempty"`
	WithdrawalNo    string   `json:"withdrawal_no,omitempty"`
	Note            string   `json:"note,omitempty"`
}

// LedgerEntry 用户硬币流水，余额的唯一事实来源
//
// 只追加：除了过期任务回写 ProcessedForExpiry / ExpiryWarned 标记外不允许修改或删除。
// ResultingBalance 是写入这一笔之后的账户余额快照，读余额时直接取最新一笔。
// (account_id, sequence) 唯一，用来拦截并发写入造成的快照丢失。
type LedgerEntry struct {
	ID                 int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo            string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	AccountID          string        `gorm:"type:varchar(64);not null;uniqueIndex:uk_account_sequence,priority:1;index:idx_account_created,priority:1" json:"account_id"`
	Sequence           int64         `gorm:"not null;uniqueIndex:uk_account_sequence,priority:2" json:"sequence"`
	Kind               string        `gorm:"type:varchar(20);not null;index" json:"kind"`
	Amount             int64         `gorm:"not null" json:"amount"`
	ResultingBalance   int64         `gorm:"not null" json:"resulting_balance"`
	Source             string        `gorm:"type:varchar(32);not null;index" json:"source"`
	Description        string        `gorm:"type:varchar(256)" json:"description"`
	Category           string        `gorm:"type:varchar(32);index" json:"category,omitempty"`
	Metadata           EntryMetadata `gorm:"type:text;serializer:json" json:"metadata"`
	ExpiresAt          *time.Time    `gorm:"index" json:"expires_at,omitempty"`
	ProcessedForExpiry bool          `gorm:"not null;default:false;index" json:"processed_for_expiry"`
	ExpiryWarned       bool          `gorm:"not null;default:false" json:"expiry_warned"`
	ExpiredAt          *time.Time    `json:"expired_at,omitempty"`
	ExpiryEntryID      *int64        `json:"expiry_entry_id,omitempty"`
	CreatedAt          time.Time     `gorm:"not null;index:idx_account_created,priority:2" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "coin_ledger_entry"
}

// Delta 对全局余额的影响（带符号）
func (e *LedgerEntry) Delta() int64 {
	switch {
	case IsCredit(e.Kind):
		return e.Amount
	case IsDebit(e.Kind):
		return -e.Amount
	default:
		return 0
	}
}
