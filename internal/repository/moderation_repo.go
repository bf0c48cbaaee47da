package repository

import (
	"context"

	"rewardledger/internal/model"

	"gorm.io/gorm"
)

type ModerationRepository struct {
	db *gorm.DB
}

func NewModerationRepository(db *gorm.DB) *ModerationRepository {
	return &ModerationRepository{db: db}
}

func (r *ModerationRepository) Create(ctx context.Context, tx *gorm.DB, reward *model.PendingCoinReward) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(reward).Error
}

func (r *ModerationRepository) GetByID(ctx context.Context, id int64) (*model.PendingCoinReward, error) {
	var reward model.PendingCoinReward
	if err := r.db.WithContext(ctx).First(&reward, id).Error; err != nil {
		return nil, notFound(err, ErrRecordNotFound)
	}
	return &reward, nil
}

// Transition 条件更新状态：只有当前状态仍为 from 时才生效
// 返回 ErrStatusChanged 表示记录已被其它请求处理
func (r *ModerationRepository) Transition(ctx context.Context, tx *gorm.DB, id int64, from, to string, updates map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	result := tx.WithContext(ctx).
		Model(&model.PendingCoinReward{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *ModerationRepository) ListByStatus(ctx context.Context, status string, page, pageSize int) ([]*model.PendingCoinReward, int64, error) {
	var rewards []*model.PendingCoinReward
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PendingCoinReward{}).Where("status = ?", status)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("submitted_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rewards).Error
	return rewards, total, err
}
