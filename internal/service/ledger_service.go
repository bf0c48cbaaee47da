package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/infrastructure/lock"
	"rewardledger/internal/metrics"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/pkg/clock"
	"rewardledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LedgerService 用户硬币流水
//
// 余额读取只看最新一笔流水的 ResultingBalance。写入是“读最新快照 -> 计算 -> 追加”，
// 同一账户的写入用 redis 账户锁串行，(account_id, sequence) 唯一索引兜底。
// 钱包聚合与流水在同一个数据库事务内更新。
type LedgerService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	clock       clock.Clock
	ledgerRepo  *repository.LedgerRepository
	walletRepo  *repository.WalletRepository

	// 账户锁等待：每 lockRetryInterval 重试一次，最多 lockRetries 次
	lockRetryInterval time.Duration
	lockRetries       int
}

func NewLedgerService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, clk clock.Clock) *LedgerService {
	return &LedgerService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		clock:       clk,
		ledgerRepo:  repository.NewLedgerRepository(db),
		walletRepo:  repository.NewWalletRepository(db),

		lockRetryInterval: 20 * time.Millisecond,
		lockRetries:       250,
	}
}

// AppendRequest 追加一笔流水
type AppendRequest struct {
	AccountID   string
	Kind        string
	Amount      int64
	Source      string
	Description string
	Category    string
	Metadata    model.EntryMetadata
	ExpiresAt   *time.Time
	// CapAtBalance 出账金额超过当前余额时按余额扣减，而不是报余额不足（过期任务使用）
	CapAtBalance bool
	// Within 与流水写入在同一事务内执行，返回错误则整笔回滚
	Within func(tx *gorm.DB, entry *model.LedgerEntry) error
}

// AppendEntry 追加流水的简化入口
func (s *LedgerService) AppendEntry(ctx context.Context, accountID, kind string, amount int64, source, description string, metadata model.EntryMetadata, category string) (*model.LedgerEntry, error) {
	return s.Append(ctx, &AppendRequest{
		AccountID:   accountID,
		Kind:        kind,
		Amount:      amount,
		Source:      source,
		Description: description,
		Category:    category,
		Metadata:    metadata,
	})
}

func (s *LedgerService) Append(ctx context.Context, req *AppendRequest) (*model.LedgerEntry, error) {
	if !model.ValidEntryKind(req.Kind) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntryKind, req.Kind)
	}
	if req.Amount < 0 {
		return nil, ErrInvalidAmount
	}

	accountLock := lock.NewAccountLock(s.redisClient, req.AccountID)
	if err := accountLock.Lock(ctx, s.lockRetryInterval, s.lockRetries); err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return nil, ErrAccountBusy
		}
		return nil, fmt.Errorf("获取账户锁失败: %w", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := accountLock.Unlock(releaseCtx); err != nil {
			logrus.WithError(err).WithField("account_id", req.AccountID).Warn("释放账户锁失败")
		}
	}()

	latest, err := s.ledgerRepo.Latest(ctx, nil, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("查询最新流水失败: %w", err)
	}

	var current, sequence int64
	if latest != nil {
		current = latest.ResultingBalance
		sequence = latest.Sequence
	}

	amount := req.Amount
	if model.IsDebit(req.Kind) && current < amount {
		if !req.CapAtBalance {
			metrics.LedgerRejections.WithLabelValues("insufficient_balance").Inc()
			return nil, &InsufficientBalanceError{
				Subject:   "account:" + req.AccountID,
				Available: strconv.FormatInt(current, 10),
				Requested: strconv.FormatInt(amount, 10),
			}
		}
		amount = current
	}

	now := s.clock.Now()
	entry := &model.LedgerEntry{
		EntryNo:     idgen.GenerateEntryNo(),
		AccountID:   req.AccountID,
		Sequence:    sequence + 1,
		Kind:        req.Kind,
		Amount:      amount,
		Source:      req.Source,
		Description: req.Description,
		Category:    req.Category,
		Metadata:    req.Metadata,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
	}
	entry.ResultingBalance = current + entry.Delta()

	if entry.Kind == model.EntryKindEarned && entry.ExpiresAt == nil && s.cfg.Business.CoinExpiryDays > 0 {
		expiresAt := now.AddDate(0, 0, s.cfg.Business.CoinExpiryDays)
		entry.ExpiresAt = &expiresAt
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return err
		}
		if err := s.walletRepo.ApplyEntry(ctx, tx, entry); err != nil {
			return fmt.Errorf("更新钱包失败: %w", err)
		}
		if req.Within != nil {
			return req.Within(tx, entry)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrConcurrentModification) {
			metrics.LedgerRejections.WithLabelValues("concurrent_modification").Inc()
		}
		return nil, err
	}

	metrics.LedgerEntries.WithLabelValues(entry.Kind, entry.Source).Inc()
	logrus.WithFields(logrus.Fields{
		"account_id": entry.AccountID,
		"entry_no":   entry.EntryNo,
		"kind":       entry.Kind,
		"amount":     entry.Amount,
		"balance":    entry.ResultingBalance,
		"source":     entry.Source,
	}).Info("流水写入成功")

	return entry, nil
}

// GetBalance category 为空时返回全局余额（最新快照），否则按分类逐笔汇总
func (s *LedgerService) GetBalance(ctx context.Context, accountID, category string) (int64, error) {
	if category != "" {
		return s.ledgerRepo.CategoryBalance(ctx, accountID, category)
	}
	latest, err := s.ledgerRepo.Latest(ctx, nil, accountID)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}
	return latest.ResultingBalance, nil
}

// GetWallet 钱包聚合视图，账户没有流水时返回空钱包
func (s *LedgerService) GetWallet(ctx context.Context, accountID string) (*model.WalletView, error) {
	wallet, err := s.walletRepo.GetByAccountID(ctx, nil, accountID)
	if err != nil {
		if !errors.Is(err, repository.ErrWalletNotFound) {
			return nil, err
		}
		wallet = &model.Wallet{AccountID: accountID}
	}

	buckets, err := s.walletRepo.Buckets(ctx, accountID)
	if err != nil {
		return nil, err
	}
	branded, err := s.walletRepo.BrandedBalances(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &model.WalletView{
		Wallet:          wallet,
		Buckets:         buckets,
		BrandedBalances: branded,
	}, nil
}

func (s *LedgerService) ListEntries(ctx context.Context, accountID string, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	return s.ledgerRepo.ListByAccount(ctx, accountID, page, pageSize)
}
