package repository

import (
	"context"
	"errors"
	"time"

	"rewardledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrWithdrawalNotPending = errors.New("提现单不存在或已处理")

type MerchantWalletRepository struct {
	db *gorm.DB
}

func NewMerchantWalletRepository(db *gorm.DB) *MerchantWalletRepository {
	return &MerchantWalletRepository{db: db}
}

func (r *MerchantWalletRepository) GetByMerchantID(ctx context.Context, merchantID string) (*model.MerchantWallet, error) {
	var wallet model.MerchantWallet
	err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).First(&wallet).Error
	if err != nil {
		return nil, notFound(err, ErrWalletNotFound)
	}
	return &wallet, nil
}

func (r *MerchantWalletRepository) GetOrCreate(ctx context.Context, merchantID, storeID string) (*model.MerchantWallet, error) {
	wallet := &model.MerchantWallet{MerchantID: merchantID, StoreID: storeID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "merchant_id"}}, DoNothing: true}).
		Create(wallet).Error
	if err != nil {
		return nil, err
	}
	return r.GetByMerchantID(ctx, merchantID)
}

// HasOrderCredit 订单是否已入账，只用于提前短路，真正的保证在 CreditOrder 内
func (r *MerchantWalletRepository) HasOrderCredit(ctx context.Context, orderID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.MerchantWalletTransaction{}).
		Where("credit_order_id = ?", orderID).
		Count(&count).Error
	return count > 0, err
}

// CreditOrder 订单入账
//
// 余额更新带 NOT EXISTS 条件，入账子流水 credit_order_id 唯一；
// 任何一层拦截都整体回滚，返回 ErrConcurrentCreditLost。
func (r *MerchantWalletRepository) CreditOrder(ctx context.Context, txn *model.MerchantWalletTransaction, gross decimal.Decimal, now time.Time) error {
	if txn.CreditOrderID == nil {
		return errors.New("入账流水缺少 credit_order_id")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.MerchantWallet{}).
			Where("merchant_id = ? AND NOT EXISTS (SELECT 1 FROM merchant_wallet_transaction WHERE credit_order_id = ?)",
				txn.MerchantID, *txn.CreditOrderID).
			Updates(map[string]interface{}{
				"total":               gorm.Expr("total + ?", txn.NetAmount),
				"available":           gorm.Expr("available + ?", txn.NetAmount),
				"total_sales":         gorm.Expr("total_sales + ?", gross),
				"total_platform_fees": gorm.Expr("total_platform_fees + ?", txn.PlatformFee),
				"net_sales":           gorm.Expr("net_sales + ?", txn.NetAmount),
				"total_orders":        gorm.Expr("total_orders + 1"),
				"last_settlement_at":  now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.MerchantWallet{}).Where("merchant_id = ?", txn.MerchantID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrWalletNotFound
			}
			return ErrConcurrentCreditLost
		}

		if err := tx.Create(txn).Error; err != nil {
			if IsDuplicateKey(err) {
				return ErrConcurrentCreditLost
			}
			return err
		}
		return nil
	})
}

// debitAvailable available >= amount 时扣减，否则区分余额不足和钱包不存在
//
// 调用方事先已经按读到的 available 校验过金额，条件更新仍未命中说明期间被并发扣减，Concurrent 置为 true
func (r *MerchantWalletRepository) debitAvailable(tx *gorm.DB, merchantID string, amount decimal.Decimal, updates map[string]interface{}) error {
	updates["available"] = gorm.Expr("available - ?", amount)
	result := tx.Model(&model.MerchantWallet{}).
		Where("merchant_id = ? AND available >= ?", merchantID, amount).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var wallet model.MerchantWallet
	if err := tx.Where("merchant_id = ?", merchantID).First(&wallet).Error; err != nil {
		return notFound(err, ErrWalletNotFound)
	}
	return &InsufficientBalanceError{
		Subject:    "merchant:" + merchantID,
		Available:  wallet.Available.StringFixed(2),
		Requested:  amount.StringFixed(2),
		Concurrent: true,
	}
}

// RequestWithdrawal 冻结提现金额（available -> pending）并写一笔 pending 提现流水
func (r *MerchantWalletRepository) RequestWithdrawal(ctx context.Context, txn *model.MerchantWalletTransaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := r.debitAvailable(tx, txn.MerchantID, txn.Amount, map[string]interface{}{
			"pending": gorm.Expr("pending + ?", txn.Amount),
		})
		if err != nil {
			return err
		}
		return tx.Create(txn).Error
	})
}

// DebitCoinAward 商户发放品牌币，直接从可用余额扣减
func (r *MerchantWalletRepository) DebitCoinAward(ctx context.Context, txn *model.MerchantWalletTransaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := r.debitAvailable(tx, txn.MerchantID, txn.Amount, map[string]interface{}{
			"total":             gorm.Expr("total - ?", txn.Amount),
			"total_coin_awards": gorm.Expr("total_coin_awards + ?", txn.Amount),
		})
		if err != nil {
			return err
		}
		return tx.Create(txn).Error
	})
}

// CompleteWithdrawal 提现打款成功：pending -> withdrawn
func (r *MerchantWalletRepository) CompleteWithdrawal(ctx context.Context, transactionNo, reference string, now time.Time) (*model.MerchantWalletTransaction, error) {
	return r.settleWithdrawal(ctx, transactionNo, model.MerchantTxStatusCompleted, reference, now, func(txn *model.MerchantWalletTransaction) map[string]interface{} {
		return map[string]interface{}{
			"pending":           gorm.Expr("pending - ?", txn.Amount),
			"total":             gorm.Expr("total - ?", txn.Amount),
			"withdrawn":         gorm.Expr("withdrawn + ?", txn.Amount),
			"total_withdrawals": gorm.Expr("total_withdrawals + ?", txn.Amount),
		}
	})
}

// RejectWithdrawal 提现驳回：pending 退回 available
func (r *MerchantWalletRepository) RejectWithdrawal(ctx context.Context, transactionNo, reason string, now time.Time) (*model.MerchantWalletTransaction, error) {
	return r.settleWithdrawal(ctx, transactionNo, model.MerchantTxStatusFailed, reason, now, func(txn *model.MerchantWalletTransaction) map[string]interface{} {
		return map[string]interface{}{
			"pending":   gorm.Expr("pending - ?", txn.Amount),
			"available": gorm.Expr("available + ?", txn.Amount),
		}
	})
}

func (r *MerchantWalletRepository) settleWithdrawal(ctx context.Context, transactionNo, status, reference string, now time.Time,
	walletUpdates func(*model.MerchantWalletTransaction) map[string]interface{}) (*model.MerchantWalletTransaction, error) {
	var txn model.MerchantWalletTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("transaction_no = ? AND type = ?", transactionNo, model.MerchantTxWithdrawal).First(&txn).Error; err != nil {
			return notFound(err, ErrWithdrawalNotPending)
		}

		result := tx.Model(&model.MerchantWalletTransaction{}).
			Where("id = ? AND status = ?", txn.ID, model.MerchantTxStatusPending).
			Updates(map[string]interface{}{
				"status":       status,
				"reference":    reference,
				"processed_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrWithdrawalNotPending
		}

		result = tx.Model(&model.MerchantWallet{}).Where("id = ?", txn.WalletID).Updates(walletUpdates(&txn))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrWalletNotFound
		}
		txn.Status = status
		txn.Reference = reference
		txn.ProcessedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *MerchantWalletRepository) ListTransactions(ctx context.Context, merchantID, txType string, page, pageSize int) ([]*model.MerchantWalletTransaction, int64, error) {
	var txns []*model.MerchantWalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.MerchantWalletTransaction{}).Where("merchant_id = ?", merchantID)
	if txType != "" {
		query = query.Where("type = ?", txType)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txns).Error
	return txns, total, err
}

// SalesByMerchant 对账用：merchant_id -> total_sales
func (r *MerchantWalletRepository) SalesByMerchant(ctx context.Context) (map[string]decimal.Decimal, error) {
	var wallets []*model.MerchantWallet
	if err := r.db.WithContext(ctx).Select("merchant_id", "total_sales").Find(&wallets).Error; err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(wallets))
	for _, w := range wallets {
		out[w.MerchantID] = w.TotalSales
	}
	return out, nil
}

// ReverseCoinAward 品牌币发放失败时退回商户余额
func (r *MerchantWalletRepository) ReverseCoinAward(ctx context.Context, txn *model.MerchantWalletTransaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.MerchantWallet{}).
			Where("merchant_id = ?", txn.MerchantID).
			Updates(map[string]interface{}{
				"available":         gorm.Expr("available + ?", txn.Amount),
				"total":             gorm.Expr("total + ?", txn.Amount),
				"total_coin_awards": gorm.Expr("total_coin_awards - ?", txn.Amount),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrWalletNotFound
		}
		return tx.Create(txn).Error
	})
}
