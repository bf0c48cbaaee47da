package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/metrics"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/pkg/clock"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 发放结果
const (
	GrantStatusCredited      = "credited"
	GrantStatusPending       = "pending"
	GrantStatusDuplicate     = "duplicate"
	GrantStatusLimitReached  = "limitReached"
	GrantStatusQualityFailed = "qualityFailed"
)

type GrantRequest struct {
	AccountID   string              `json:"account_id" binding:"required"`
	Action      string              `json:"action" binding:"required"`
	ReferenceID string              `json:"reference_id" binding:"required"`
	Description string              `json:"description"`
	Metadata    model.EntryMetadata `json:"metadata"`
	Quality     *QualityData        `json:"quality"`
}

type GrantResult struct {
	Status       string `json:"status"`
	CoinsAwarded int64  `json:"coins_awarded"`
	Message      string `json:"message"`
	ModerationID int64  `json:"moderation_id,omitempty"`
}

// EngagementService 互动奖励
//
// 幂等依赖 engagement_reward_log 的唯一索引：前置查询只用于提前返回，
// 并发请求都通过前置查询时，后插入的一方命中唯一键，转换为 duplicate。
type EngagementService struct {
	db             *gorm.DB
	clock          clock.Clock
	registry       *RewardRegistry
	ledger         *LedgerService
	notifier       *NotificationService
	rewardLogRepo  *repository.RewardLogRepository
	moderationRepo *repository.ModerationRepository
}

func NewEngagementService(db *gorm.DB, clk clock.Clock, registry *RewardRegistry, ledger *LedgerService, notifier *NotificationService) *EngagementService {
	return &EngagementService{
		db:             db,
		clock:          clk,
		registry:       registry,
		ledger:         ledger,
		notifier:       notifier,
		rewardLogRepo:  repository.NewRewardLogRepository(db),
		moderationRepo: repository.NewModerationRepository(db),
	}
}

func (s *EngagementService) GrantReward(ctx context.Context, req *GrantRequest) (*GrantResult, error) {
	result, err := s.grant(ctx, req)
	if err != nil {
		metrics.RewardGrants.WithLabelValues(req.Action, "error").Inc()
		return nil, err
	}
	metrics.RewardGrants.WithLabelValues(req.Action, result.Status).Inc()
	return result, nil
}

// RewardAction 对外展示的奖励规则
type RewardAction struct {
	Action             string `json:"action"`
	BaseCoins          int64  `json:"base_coins"`
	DailyLimit         int    `json:"daily_limit"`
	RequiresModeration bool   `json:"requires_moderation"`
}

// ListActions 已配置的奖励动作，按名称排序
func (s *EngagementService) ListActions() []RewardAction {
	names := s.registry.Actions()
	actions := make([]RewardAction, 0, len(names))
	for _, name := range names {
		rule, _ := s.registry.Lookup(name)
		actions = append(actions, RewardAction{
			Action:             name,
			BaseCoins:          rule.BaseCoins,
			DailyLimit:         rule.DailyLimit,
			RequiresModeration: rule.RequiresModeration,
		})
	}
	return actions
}

func (s *EngagementService) grant(ctx context.Context, req *GrantRequest) (*GrantResult, error) {
	rule, ok := s.registry.Lookup(req.Action)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRewardAction, req.Action)
	}

	existing, err := s.rewardLogRepo.FindActive(ctx, req.AccountID, req.Action, req.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("查询奖励记录失败: %w", err)
	}
	if existing != nil {
		return duplicateResult(), nil
	}

	now := s.clock.Now()
	if rule.DailyLimit > 0 {
		count, err := s.rewardLogRepo.CountSince(ctx, req.AccountID, req.Action, startOfDay(now))
		if err != nil {
			return nil, fmt.Errorf("查询今日奖励次数失败: %w", err)
		}
		if count >= int64(rule.DailyLimit) {
			return &GrantResult{Status: GrantStatusLimitReached, Message: "今日奖励次数已达上限"}, nil
		}
	}

	var quality QualityData
	if req.Quality != nil {
		quality = *req.Quality
	}
	if reason, ok := checkQuality(rule, quality); !ok {
		return &GrantResult{Status: GrantStatusQualityFailed, Message: reason}, nil
	}

	amount := computeAward(rule, quality)
	metadata := req.Metadata
	metadata.RewardAction = req.Action
	metadata.ReferenceID = req.ReferenceID

	if rule.RequiresModeration {
		return s.submitForModeration(ctx, req, rule, amount, metadata, now)
	}
	return s.creditInstantly(ctx, req, amount, metadata, now)
}

// awardPercentage 奖励额占基础额的百分比，审核时用来判断加成
func awardPercentage(rule config.RewardActionConfig, amount int64) float64 {
	if rule.BaseCoins <= 0 {
		return 0
	}
	return float64(amount) * 100 / float64(rule.BaseCoins)
}

func (s *EngagementService) submitForModeration(ctx context.Context, req *GrantRequest, rule config.RewardActionConfig, amount int64, metadata model.EntryMetadata, now time.Time) (*GrantResult, error) {
	record := &model.PendingCoinReward{
		AccountID:     req.AccountID,
		Amount:        amount,
		Percentage:    awardPercentage(rule, amount),
		Source:        model.SourceEngagement,
		ReferenceType: req.Action,
		ReferenceID:   req.ReferenceID,
		Status:        model.ModerationStatusPending,
		Metadata:      metadata,
		SubmittedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.moderationRepo.Create(ctx, tx, record); err != nil {
			return fmt.Errorf("创建审核记录失败: %w", err)
		}
		return s.rewardLogRepo.Create(ctx, tx, &model.EngagementRewardLog{
			AccountID:    req.AccountID,
			Action:       req.Action,
			ReferenceID:  req.ReferenceID,
			CoinsAwarded: amount,
			Status:       model.RewardLogStatusPending,
			ModerationID: &record.ID,
			CreatedAt:    now,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return duplicateResult(), nil
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"account_id":    req.AccountID,
		"action":        req.Action,
		"reference_id":  req.ReferenceID,
		"moderation_id": record.ID,
		"amount":        amount,
	}).Info("奖励已提交审核")

	return &GrantResult{
		Status:       GrantStatusPending,
		CoinsAwarded: 0,
		Message:      fmt.Sprintf("已提交审核，通过后发放 %d 硬币", amount),
		ModerationID: record.ID,
	}, nil
}

func (s *EngagementService) creditInstantly(ctx context.Context, req *GrantRequest, amount int64, metadata model.EntryMetadata, now time.Time) (*GrantResult, error) {
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("互动奖励: %s", req.Action)
	}

	_, err := s.ledger.Append(ctx, &AppendRequest{
		AccountID:   req.AccountID,
		Kind:        model.EntryKindEarned,
		Amount:      amount,
		Source:      model.SourceEngagement,
		Description: description,
		Metadata:    metadata,
		Within: func(tx *gorm.DB, entry *model.LedgerEntry) error {
			return s.rewardLogRepo.Create(ctx, tx, &model.EngagementRewardLog{
				AccountID:    req.AccountID,
				Action:       req.Action,
				ReferenceID:  req.ReferenceID,
				CoinsAwarded: amount,
				Status:       model.RewardLogStatusCredited,
				CreatedAt:    now,
			})
		},
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return duplicateResult(), nil
		}
		return nil, err
	}

	s.notifier.Send(ctx, req.AccountID, "获得硬币奖励", fmt.Sprintf("恭喜获得 %d 硬币", amount))

	return &GrantResult{
		Status:       GrantStatusCredited,
		CoinsAwarded: amount,
		Message:      fmt.Sprintf("获得 %d 硬币", amount),
	}, nil
}

func duplicateResult() *GrantResult {
	return &GrantResult{Status: GrantStatusDuplicate, Message: "该内容已获得过奖励"}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
