package repository

import (
	"context"
	"errors"
	"time"

	"rewardledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *WalletRepository) GetByAccountID(ctx context.Context, tx *gorm.DB, accountID string) (*model.Wallet, error) {
	var wallet model.Wallet
	err := r.conn(tx).WithContext(ctx).Where("account_id = ?", accountID).First(&wallet).Error
	if err != nil {
		return nil, notFound(err, ErrWalletNotFound)
	}
	return &wallet, nil
}

// GetOrCreate 钱包不存在时创建，并发创建由唯一索引兜底
func (r *WalletRepository) GetOrCreate(ctx context.Context, tx *gorm.DB, accountID string, now time.Time) (*model.Wallet, error) {
	wallet := &model.Wallet{AccountID: accountID, LastEntryAt: now}
	err := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}}, DoNothing: true}).
		Create(wallet).Error
	if err != nil {
		return nil, err
	}
	return r.GetByAccountID(ctx, tx, accountID)
}

// ApplyEntry 把一笔流水同步到钱包聚合和分类余额，调用方保证在同一事务内
func (r *WalletRepository) ApplyEntry(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	db := r.conn(tx).WithContext(ctx)
	if _, err := r.GetOrCreate(ctx, tx, entry.AccountID, entry.CreatedAt); err != nil {
		return err
	}

	updates := map[string]interface{}{"last_entry_at": entry.CreatedAt}
	amount := entry.Amount

	switch entry.Kind {
	case model.EntryKindEarned, model.EntryKindBonus, model.EntryKindRefunded:
		updates["total"] = gorm.Expr("total + ?", amount)
		updates["available"] = gorm.Expr("available + ?", amount)
		if entry.Kind == model.EntryKindRefunded {
			updates["total_refunded"] = gorm.Expr("total_refunded + ?", amount)
		} else {
			updates["total_earned"] = gorm.Expr("total_earned + ?", amount)
		}
		if entry.Source == model.SourceCashback {
			updates["total_cashback"] = gorm.Expr("total_cashback + ?", amount)
		}
	case model.EntryKindSpent:
		updates["total"] = gorm.Expr("total - ?", amount)
		updates["available"] = gorm.Expr("available - ?", amount)
		updates["total_spent"] = gorm.Expr("total_spent + ?", amount)
	case model.EntryKindExpired:
		updates["total"] = gorm.Expr("total - ?", amount)
		updates["available"] = gorm.Expr("available - ?", amount)
		updates["total_expired"] = gorm.Expr("total_expired + ?", amount)
	case model.EntryKindBrandedAward:
		updates["total_branded"] = gorm.Expr("total_branded + ?", amount)
	}

	result := db.Model(&model.Wallet{}).Where("account_id = ?", entry.AccountID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}

	if entry.Kind == model.EntryKindBrandedAward {
		return r.addBranded(ctx, tx, entry)
	}
	if entry.Category != "" {
		return r.addBucket(ctx, tx, entry.AccountID, entry.Category, entry.Delta(), entry.CreatedAt)
	}
	return nil
}

// addBucket 账户锁内执行，先更新后插入不会并发冲突
func (r *WalletRepository) addBucket(ctx context.Context, tx *gorm.DB, accountID, bucketType string, delta int64, now time.Time) error {
	db := r.conn(tx).WithContext(ctx)
	result := db.Model(&model.WalletBucket{}).
		Where("account_id = ? AND bucket_type = ?", accountID, bucketType).
		Updates(map[string]interface{}{
			"amount":    gorm.Expr("amount + ?", delta),
			"last_used": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return db.Create(&model.WalletBucket{
		AccountID:  accountID,
		BucketType: bucketType,
		Amount:     delta,
		IsActive:   true,
		LastUsed:   &now,
	}).Error
}

func (r *WalletRepository) addBranded(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	db := r.conn(tx).WithContext(ctx)
	merchantID := entry.Metadata.MerchantID
	if merchantID == "" {
		return errors.New("品牌币流水缺少 merchant_id")
	}
	result := db.Model(&model.BrandedBalance{}).
		Where("account_id = ? AND merchant_id = ?", entry.AccountID, merchantID).
		Updates(map[string]interface{}{
			"amount":    gorm.Expr("amount + ?", entry.Amount),
			"last_used": entry.CreatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return db.Create(&model.BrandedBalance{
		AccountID:     entry.AccountID,
		MerchantID:    merchantID,
		MerchantLabel: entry.Metadata.MerchantLabel,
		Amount:        entry.Amount,
		EarnedDate:    entry.CreatedAt,
	}).Error
}

func (r *WalletRepository) Buckets(ctx context.Context, accountID string) ([]*model.WalletBucket, error) {
	var buckets []*model.WalletBucket
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("bucket_type ASC").
		Find(&buckets).Error
	return buckets, err
}

func (r *WalletRepository) BrandedBalances(ctx context.Context, accountID string) ([]*model.BrandedBalance, error) {
	var balances []*model.BrandedBalance
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("merchant_id ASC").
		Find(&balances).Error
	return balances, err
}

// CashbackTotals 对账用：account_id -> total_cashback
func (r *WalletRepository) CashbackTotals(ctx context.Context) (map[string]int64, error) {
	var wallets []*model.Wallet
	if err := r.db.WithContext(ctx).Select("account_id", "total_cashback").Find(&wallets).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(wallets))
	for _, w := range wallets {
		out[w.AccountID] = w.TotalCashback
	}
	return out, nil
}
