package service

import (
	"context"
	"errors"
	"fmt"

	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/pkg/clock"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ModerationService 待审核奖励：pending -> approved/rejected，approved -> credited
// 只有 CreditCoins 会写真实流水，且状态翻转与流水在同一事务内
type ModerationService struct {
	db             *gorm.DB
	clock          clock.Clock
	ledger         *LedgerService
	notifier       *NotificationService
	moderationRepo *repository.ModerationRepository
	rewardLogRepo  *repository.RewardLogRepository
}

func NewModerationService(db *gorm.DB, clk clock.Clock, ledger *LedgerService, notifier *NotificationService) *ModerationService {
	return &ModerationService{
		db:             db,
		clock:          clk,
		ledger:         ledger,
		notifier:       notifier,
		moderationRepo: repository.NewModerationRepository(db),
		rewardLogRepo:  repository.NewRewardLogRepository(db),
	}
}

func (s *ModerationService) Get(ctx context.Context, id int64) (*model.PendingCoinReward, error) {
	return s.moderationRepo.GetByID(ctx, id)
}

func (s *ModerationService) ListPending(ctx context.Context, page, pageSize int) ([]*model.PendingCoinReward, int64, error) {
	return s.moderationRepo.ListByStatus(ctx, model.ModerationStatusPending, page, pageSize)
}

// load 读取记录并校验状态流转
func (s *ModerationService) load(ctx context.Context, id int64, to string) (*model.PendingCoinReward, error) {
	record, err := s.moderationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.CanModerationTransition(record.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidModerationTransition, record.Status, to)
	}
	return record, nil
}

func transitionErr(err error, from, to string) error {
	if errors.Is(err, repository.ErrStatusChanged) {
		return fmt.Errorf("%w: 记录已不是 %s，无法变更为 %s", ErrInvalidModerationTransition, from, to)
	}
	return err
}

func (s *ModerationService) Approve(ctx context.Context, id int64, reviewerID, notes string) (*model.PendingCoinReward, error) {
	record, err := s.load(ctx, id, model.ModerationStatusApproved)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.moderationRepo.Transition(ctx, nil, id, model.ModerationStatusPending, model.ModerationStatusApproved, map[string]interface{}{
		"reviewed_at":  now,
		"reviewer_id":  reviewerID,
		"review_notes": notes,
	})
	if err != nil {
		return nil, transitionErr(err, model.ModerationStatusPending, model.ModerationStatusApproved)
	}

	record.Status = model.ModerationStatusApproved
	record.ReviewedAt = &now
	record.ReviewerID = reviewerID
	record.ReviewNotes = notes

	logrus.WithFields(logrus.Fields{"moderation_id": id, "reviewer_id": reviewerID}).Info("审核通过")
	return record, nil
}

func (s *ModerationService) Reject(ctx context.Context, id int64, reviewerID, reason string) (*model.PendingCoinReward, error) {
	record, err := s.load(ctx, id, model.ModerationStatusRejected)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.moderationRepo.Transition(ctx, tx, id, model.ModerationStatusPending, model.ModerationStatusRejected, map[string]interface{}{
			"reviewed_at":      now,
			"reviewer_id":      reviewerID,
			"rejection_reason": reason,
		})
		if err != nil {
			return transitionErr(err, model.ModerationStatusPending, model.ModerationStatusRejected)
		}
		return s.rewardLogRepo.UpdateStatusByModeration(ctx, tx, id, model.RewardLogStatusRejected)
	})
	if err != nil {
		return nil, err
	}

	record.Status = model.ModerationStatusRejected
	record.ReviewedAt = &now
	record.ReviewerID = reviewerID
	record.RejectionReason = reason

	s.notifier.Send(ctx, record.AccountID, "奖励审核未通过", reason)
	logrus.WithFields(logrus.Fields{"moderation_id": id, "reviewer_id": reviewerID}).Info("审核驳回")
	return record, nil
}

// CreditCoins approved -> credited 并写入 earned 流水；对已入账的记录再次调用返回错误
func (s *ModerationService) CreditCoins(ctx context.Context, id int64) (*model.LedgerEntry, error) {
	record, err := s.load(ctx, id, model.ModerationStatusCredited)
	if err != nil {
		return nil, err
	}

	metadata := record.Metadata
	metadata.ModerationID = record.ID
	if metadata.ReferenceID == "" {
		metadata.ReferenceID = record.ReferenceID
	}

	entry, err := s.ledger.Append(ctx, &AppendRequest{
		AccountID:   record.AccountID,
		Kind:        model.EntryKindEarned,
		Amount:      record.Amount,
		Source:      record.Source,
		Description: fmt.Sprintf("审核奖励: %s", record.ReferenceType),
		Metadata:    metadata,
		Within: func(tx *gorm.DB, entry *model.LedgerEntry) error {
			err := s.moderationRepo.Transition(ctx, tx, id, model.ModerationStatusApproved, model.ModerationStatusCredited, map[string]interface{}{
				"credited_at":     entry.CreatedAt,
				"ledger_entry_id": entry.ID,
			})
			if err != nil {
				return transitionErr(err, model.ModerationStatusApproved, model.ModerationStatusCredited)
			}
			return s.rewardLogRepo.UpdateStatusByModeration(ctx, tx, id, model.RewardLogStatusCredited)
		},
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, record.AccountID, "奖励已到账", fmt.Sprintf("审核通过，%d 硬币已到账", record.Amount))
	logrus.WithFields(logrus.Fields{
		"moderation_id": id,
		"account_id":    record.AccountID,
		"amount":        record.Amount,
		"entry_no":      entry.EntryNo,
	}).Info("审核奖励入账")
	return entry, nil
}
