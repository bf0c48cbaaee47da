package repository

import (
	"context"
	"errors"
	"time"

	"rewardledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// Latest 账户最近一笔流水，没有流水返回 nil
func (r *LedgerRepository) Latest(ctx context.Context, tx *gorm.DB, accountID string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.conn(tx).WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("sequence DESC").
		Limit(1).
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// Create 写入流水；(account_id, sequence) 冲突说明有并发写入
func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	err := r.conn(tx).WithContext(ctx).Create(entry).Error
	if IsDuplicateKey(err) {
		return ErrConcurrentModification
	}
	return err
}

func (r *LedgerRepository) GetByID(ctx context.Context, id int64) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return nil, notFound(err, ErrRecordNotFound)
	}
	return &entry, nil
}

// CategoryBalance 分类余额：逐笔求和，不走快照
func (r *LedgerRepository) CategoryBalance(ctx context.Context, accountID, category string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("COALESCE(SUM(CASE WHEN kind IN ? THEN amount WHEN kind IN ? THEN -amount ELSE 0 END), 0)",
			[]string{model.EntryKindEarned, model.EntryKindRefunded, model.EntryKindBonus},
			[]string{model.EntryKindSpent, model.EntryKindExpired}).
		Where("account_id = ? AND category = ?", accountID, category).
		Scan(&sum).Error
	return sum, err
}

func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID string, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("account_id = ?", accountID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("sequence DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	return entries, total, err
}

// DueAccounts 有已到期、未处理 earned 流水的账户
func (r *LedgerRepository) DueAccounts(ctx context.Context, now time.Time) ([]string, error) {
	var accounts []string
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Distinct().
		Where("kind = ? AND expires_at IS NOT NULL AND expires_at <= ? AND processed_for_expiry = ?",
			model.EntryKindEarned, now, false).
		Order("account_id ASC").
		Pluck("account_id", &accounts).Error
	return accounts, err
}

// DueEntries 账户下已到期、未处理的 earned 流水
func (r *LedgerRepository) DueEntries(ctx context.Context, accountID string, now time.Time) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND kind = ? AND expires_at IS NOT NULL AND expires_at <= ? AND processed_for_expiry = ?",
			accountID, model.EntryKindEarned, now, false).
		Order("expires_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// FindExpiringBetween (from, to] 区间内到期、尚未处理的 earned 流水
func (r *LedgerRepository) FindExpiringBetween(ctx context.Context, from, to time.Time, onlyUnwarned bool) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	query := r.db.WithContext(ctx).
		Where("kind = ? AND expires_at > ? AND expires_at <= ? AND processed_for_expiry = ?",
			model.EntryKindEarned, from, to, false)
	if onlyUnwarned {
		query = query.Where("expiry_warned = ?", false)
	}
	err := query.Order("account_id ASC, expires_at ASC").Find(&entries).Error
	return entries, err
}

// MarkProcessedForExpiry 给源流水打上已过期标记，只会命中尚未处理的行
func (r *LedgerRepository) MarkProcessedForExpiry(ctx context.Context, tx *gorm.DB, ids []int64, expiryEntryID int64, now time.Time) (int64, error) {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("id IN ? AND processed_for_expiry = ?", ids, false).
		Updates(map[string]interface{}{
			"processed_for_expiry": true,
			"expired_at":           now,
			"expiry_entry_id":      expiryEntryID,
		})
	return result.RowsAffected, result.Error
}

func (r *LedgerRepository) MarkWarned(ctx context.Context, ids []int64) error {
	return r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("id IN ?", ids).
		Update("expiry_warned", true).Error
}

// AccountAmount 按账户聚合的金额
type AccountAmount struct {
	AccountID string
	Total     decimal.Decimal
}

// SumByAccount 按账户汇总指定类型、来源的流水金额
func (r *LedgerRepository) SumByAccount(ctx context.Context, kinds, sources []string) (map[string]decimal.Decimal, error) {
	var rows []AccountAmount
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("account_id, SUM(amount) AS total").
		Where("kind IN ? AND source IN ?", kinds, sources).
		Group("account_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toMap(rows), nil
}

// TopEarners since 之后 earned + bonus 总额最高的账户
func (r *LedgerRepository) TopEarners(ctx context.Context, since time.Time, limit int) ([]AccountAmount, error) {
	var rows []AccountAmount
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("account_id, SUM(amount) AS total").
		Where("kind IN ? AND created_at >= ?", []string{model.EntryKindEarned, model.EntryKindBonus}, since).
		Group("account_id").
		Order("total DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func toMap(rows []AccountAmount) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.AccountID] = row.Total
	}
	return out
}
