package service

import (
	"context"
	"errors"
	"fmt"

	"rewardledger/internal/config"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/pkg/clock"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CashbackService 订单返现：先落 pending 记录，再写 cashback 流水并翻转为 credited
type CashbackService struct {
	cfg          *config.Config
	clock        clock.Clock
	ledger       *LedgerService
	notifier     *NotificationService
	cashbackRepo *repository.CashbackRepository
}

func NewCashbackService(db *gorm.DB, cfg *config.Config, clk clock.Clock, ledger *LedgerService, notifier *NotificationService) *CashbackService {
	return &CashbackService{
		cfg:          cfg,
		clock:        clk,
		ledger:       ledger,
		notifier:     notifier,
		cashbackRepo: repository.NewCashbackRepository(db),
	}
}

// CashbackFor 订单金额对应的返现硬币数
func (s *CashbackService) CashbackFor(total decimal.Decimal) int64 {
	return MoneyToCoins(total.Mul(decimal.NewFromFloat(s.cfg.Business.CashbackRate)))
}

// IssueForOrder 为订单发放返现，重复调用返回同一条记录
func (s *CashbackService) IssueForOrder(ctx context.Context, order *model.Order) (*model.CashbackRecord, error) {
	coins := s.CashbackFor(order.TotalAmount)
	if coins <= 0 {
		return nil, nil
	}

	record := &model.CashbackRecord{
		AccountID: order.AccountID,
		OrderNo:   order.OrderNo,
		Amount:    coins,
		Status:    model.CashbackStatusPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.cashbackRepo.Create(ctx, nil, record); err != nil {
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, fmt.Errorf("创建返现记录失败: %w", err)
		}
		existing, err := s.cashbackRepo.GetByOrderNo(ctx, order.OrderNo)
		if err != nil {
			return nil, err
		}
		record = existing
	}

	if record.Status != model.CashbackStatusPending {
		return record, nil
	}
	return s.Credit(ctx, record)
}

// Credit pending 返现入账；记录已被其它请求入账时整笔回滚，返回最新记录
func (s *CashbackService) Credit(ctx context.Context, record *model.CashbackRecord) (*model.CashbackRecord, error) {
	entry, err := s.ledger.Append(ctx, &AppendRequest{
		AccountID:   record.AccountID,
		Kind:        model.EntryKindEarned,
		Amount:      record.Amount,
		Source:      model.SourceCashback,
		Description: fmt.Sprintf("订单 %s 返现", record.OrderNo),
		Metadata: model.EntryMetadata{
			OrderNo:    record.OrderNo,
			CashbackID: record.ID,
		},
		Within: func(tx *gorm.DB, entry *model.LedgerEntry) error {
			return s.cashbackRepo.MarkCredited(ctx, tx, record.ID, entry.ID, entry.CreatedAt)
		},
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return s.cashbackRepo.GetByOrderNo(ctx, record.OrderNo)
		}
		return nil, err
	}

	record.Status = model.CashbackStatusCredited
	record.LedgerEntryID = &entry.ID
	record.CreditedAt = &entry.CreatedAt

	s.notifier.SendCategory(ctx, record.AccountID, "返现到账",
		fmt.Sprintf("订单 %s 返现 %d 硬币已到账", record.OrderNo, record.Amount), model.SourceCashback)
	logrus.WithFields(logrus.Fields{
		"account_id": record.AccountID,
		"order_no":   record.OrderNo,
		"amount":     record.Amount,
	}).Info("返现入账成功")
	return record, nil
}

// CreditPending 补偿：把遗留的 pending 返现入账，返回成功条数
func (s *CashbackService) CreditPending(ctx context.Context, limit int) (int, error) {
	records, err := s.cashbackRepo.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	credited := 0
	for _, record := range records {
		if _, err := s.Credit(ctx, record); err != nil {
			logrus.WithError(err).WithField("order_no", record.OrderNo).Warn("返现补偿入账失败")
			continue
		}
		credited++
	}
	return credited, nil
}
