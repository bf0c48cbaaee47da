package repository

import (
	"context"
	"time"

	"rewardledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CashbackRepository struct {
	db *gorm.DB
}

func NewCashbackRepository(db *gorm.DB) *CashbackRepository {
	return &CashbackRepository{db: db}
}

// Create 同一订单只会有一条返现记录，重复返回 ErrDuplicateKey
func (r *CashbackRepository) Create(ctx context.Context, tx *gorm.DB, record *model.CashbackRecord) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		if IsDuplicateKey(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *CashbackRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.CashbackRecord, error) {
	var record model.CashbackRecord
	if err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&record).Error; err != nil {
		return nil, notFound(err, ErrRecordNotFound)
	}
	return &record, nil
}

// MarkCredited pending -> credited，状态已变化返回 ErrStatusChanged
func (r *CashbackRepository) MarkCredited(ctx context.Context, tx *gorm.DB, id, entryID int64, now time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.CashbackRecord{}).
		Where("id = ? AND status = ?", id, model.CashbackStatusPending).
		Updates(map[string]interface{}{
			"status":          model.CashbackStatusCredited,
			"ledger_entry_id": entryID,
			"credited_at":     now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *CashbackRepository) ListPending(ctx context.Context, limit int) ([]*model.CashbackRecord, error) {
	var records []*model.CashbackRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", model.CashbackStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// CreditedByAccount 对账用：已入账返现按账户汇总
func (r *CashbackRepository) CreditedByAccount(ctx context.Context) (map[string]decimal.Decimal, error) {
	var rows []AccountAmount
	err := r.db.WithContext(ctx).
		Model(&model.CashbackRecord{}).
		Select("account_id, SUM(amount) AS total").
		Where("status = ?", model.CashbackStatusCredited).
		Group("account_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toMap(rows), nil
}
