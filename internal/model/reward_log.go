package model

import (
	"time"
)

// 奖励日志状态
const (
	RewardLogStatusPending  = "pending"
	RewardLogStatusCredited = "credited"
	RewardLogStatusRejected = "rejected"
)

// EngagementRewardLog 互动奖励幂等日志
// (account_id, action, reference_id) 唯一，是防重复发放的最终保障
type EngagementRewardLog struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID    string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_reward_ref,priority:1;index:idx_reward_daily,priority:1" json:"account_id"`
	Action       string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_reward_ref,priority:2;index:idx_reward_daily,priority:2" json:"action"`
	ReferenceID  string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_reward_ref,priority:3" json:"reference_id"`
	CoinsAwarded int64     `gorm:"not null" json:"coins_awarded"`
	Status       string    `gorm:"type:varchar(20);not null" json:"status"`
	ModerationID *int64    `gorm:"index" json:"moderation_id,omitempty"`
	CreatedAt    time.Time `gorm:"not null;index:idx_reward_daily,priority:3" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (EngagementRewardLog) TableName() string {
	return "engagement_reward_log"
}
