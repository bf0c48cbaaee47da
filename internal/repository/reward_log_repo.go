package repository

import (
	"context"
	"time"

	"rewardledger/internal/model"

	"gorm.io/gorm"
)

// 计入幂等和每日上限的状态，rejected 不计
var activeRewardStatuses = []string{model.RewardLogStatusPending, model.RewardLogStatusCredited}

type RewardLogRepository struct {
	db *gorm.DB
}

func NewRewardLogRepository(db *gorm.DB) *RewardLogRepository {
	return &RewardLogRepository{db: db}
}

// FindActive (account, action, reference) 上未被驳回的奖励日志，不存在返回 nil
func (r *RewardLogRepository) FindActive(ctx context.Context, accountID, action, referenceID string) (*model.EngagementRewardLog, error) {
	var logs []*model.EngagementRewardLog
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND action = ? AND reference_id = ? AND status IN ?", accountID, action, referenceID, activeRewardStatuses).
		Limit(1).
		Find(&logs).Error
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return logs[0], nil
}

// CountSince since 之后该行为已发放（含待审核）的次数
func (r *RewardLogRepository) CountSince(ctx context.Context, accountID, action string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.EngagementRewardLog{}).
		Where("account_id = ? AND action = ? AND created_at >= ? AND status IN ?", accountID, action, since, activeRewardStatuses).
		Count(&count).Error
	return count, err
}

// Create 唯一键冲突返回 ErrDuplicateKey
//
// 同一引用被驳回后允许重新提交：旧的 rejected 记录先删掉再插入
func (r *RewardLogRepository) Create(ctx context.Context, tx *gorm.DB, log *model.EngagementRewardLog) error {
	if tx == nil {
		tx = r.db
	}
	db := tx.WithContext(ctx)
	err := db.Where("account_id = ? AND action = ? AND reference_id = ? AND status = ?",
		log.AccountID, log.Action, log.ReferenceID, model.RewardLogStatusRejected).
		Delete(&model.EngagementRewardLog{}).Error
	if err != nil {
		return err
	}
	if err := db.Create(log).Error; err != nil {
		if IsDuplicateKey(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *RewardLogRepository) UpdateStatusByModeration(ctx context.Context, tx *gorm.DB, moderationID int64, status string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.EngagementRewardLog{}).
		Where("moderation_id = ?", moderationID).
		Update("status", status).Error
}
