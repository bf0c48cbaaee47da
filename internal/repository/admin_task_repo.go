package repository

import (
	"context"

	"rewardledger/internal/model"

	"gorm.io/gorm"
)

type AdminTaskRepository struct {
	db *gorm.DB
}

func NewAdminTaskRepository(db *gorm.DB) *AdminTaskRepository {
	return &AdminTaskRepository{db: db}
}

func (r *AdminTaskRepository) Create(ctx context.Context, tx *gorm.DB, task *model.AdminTask) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(task).Error
}

func (r *AdminTaskRepository) ListOpen(ctx context.Context, limit int) ([]*model.AdminTask, error) {
	var tasks []*model.AdminTask
	err := r.db.WithContext(ctx).
		Where("status = ?", model.AdminTaskStatusOpen).
		Order("created_at DESC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}
