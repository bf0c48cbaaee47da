package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/infrastructure/cache"
	"rewardledger/internal/metrics"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/pkg/clock"
	"rewardledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	reconciliationLatestKey  = "latest"
	reconciliationHistoryFmt = "2006-01-02"
)

// ReconciliationService 对账：只检测不修正
//
// 四项检查相互独立并发执行，差异在 epsilon 以内忽略。
// 结果写入 redis 的 latest 和按天的历史 key，历史 key 带保留期。
type ReconciliationService struct {
	cfg          *config.Config
	clock        clock.Clock
	results      *cache.JSONCache
	notifier     *NotificationService
	ledgerRepo   *repository.LedgerRepository
	walletRepo   *repository.WalletRepository
	cashbackRepo *repository.CashbackRepository
	orderRepo    *repository.OrderRepository
	merchantRepo *repository.MerchantWalletRepository
	taskRepo     *repository.AdminTaskRepository
}

func NewReconciliationService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, clk clock.Clock, notifier *NotificationService) *ReconciliationService {
	return &ReconciliationService{
		cfg:          cfg,
		clock:        clk,
		results:      cache.NewJSONCache(redisClient, "reconciliation"),
		notifier:     notifier,
		ledgerRepo:   repository.NewLedgerRepository(db),
		walletRepo:   repository.NewWalletRepository(db),
		cashbackRepo: repository.NewCashbackRepository(db),
		orderRepo:    repository.NewOrderRepository(db),
		merchantRepo: repository.NewMerchantWalletRepository(db),
		taskRepo:     repository.NewAdminTaskRepository(db),
	}
}

// reconciliationCheck 一项检查：返回 key -> 期望值、key -> 实际值
type reconciliationCheck struct {
	name string
	run  func(ctx context.Context) (expected, actual map[string]decimal.Decimal, err error)
}

func (s *ReconciliationService) checks() []reconciliationCheck {
	return []reconciliationCheck{
		{name: model.DiscrepancyCashbackLedger, run: s.checkCashbackLedger},
		{name: model.DiscrepancyWalletCashback, run: s.checkWalletCashback},
		{name: model.DiscrepancyOrderPayment, run: s.checkOrderPayment},
		{name: model.DiscrepancyMerchantRevenue, run: s.checkMerchantRevenue},
	}
}

// 1. 已入账返现记录 vs cashback 流水
func (s *ReconciliationService) checkCashbackLedger(ctx context.Context) (map[string]decimal.Decimal, map[string]decimal.Decimal, error) {
	expected, err := s.cashbackRepo.CreditedByAccount(ctx)
	if err != nil {
		return nil, nil, err
	}
	actual, err := s.ledgerRepo.SumByAccount(ctx, []string{model.EntryKindEarned}, []string{model.SourceCashback})
	return expected, actual, err
}

// 2. 钱包 total_cashback vs cashback 流水
func (s *ReconciliationService) checkWalletCashback(ctx context.Context) (map[string]decimal.Decimal, map[string]decimal.Decimal, error) {
	totals, err := s.walletRepo.CashbackTotals(ctx)
	if err != nil {
		return nil, nil, err
	}
	expected := make(map[string]decimal.Decimal, len(totals))
	for accountID, total := range totals {
		expected[accountID] = decimal.NewFromInt(total)
	}
	actual, err := s.ledgerRepo.SumByAccount(ctx, []string{model.EntryKindEarned}, []string{model.SourceCashback})
	return expected, actual, err
}

// 3. 已支付订单的硬币抵扣 vs 订单来源的净扣减（spent - refunded）
func (s *ReconciliationService) checkOrderPayment(ctx context.Context) (map[string]decimal.Decimal, map[string]decimal.Decimal, error) {
	expected, err := s.orderRepo.CoinsUsedByAccount(ctx)
	if err != nil {
		return nil, nil, err
	}
	sources := []string{model.SourceOrder, model.SourcePayment}
	spent, err := s.ledgerRepo.SumByAccount(ctx, []string{model.EntryKindSpent}, sources)
	if err != nil {
		return nil, nil, err
	}
	refunded, err := s.ledgerRepo.SumByAccount(ctx, []string{model.EntryKindRefunded}, sources)
	if err != nil {
		return nil, nil, err
	}
	for accountID, amount := range refunded {
		spent[accountID] = spent[accountID].Sub(amount)
	}
	return expected, spent, nil
}

// 4. 已履约订单金额 vs 商户钱包 total_sales
func (s *ReconciliationService) checkMerchantRevenue(ctx context.Context) (map[string]decimal.Decimal, map[string]decimal.Decimal, error) {
	expected, err := s.orderRepo.RevenueByMerchant(ctx)
	if err != nil {
		return nil, nil, err
	}
	actual, err := s.merchantRepo.SalesByMerchant(ctx)
	return expected, actual, err
}

// Severity 差异金额分级
func (s *ReconciliationService) Severity(difference decimal.Decimal) string {
	sev := s.cfg.Reconciliation.Severity
	switch {
	case difference.GreaterThanOrEqual(decimal.NewFromFloat(sev.Critical)):
		return model.SeverityCritical
	case difference.GreaterThanOrEqual(decimal.NewFromFloat(sev.High)):
		return model.SeverityHigh
	case difference.GreaterThanOrEqual(decimal.NewFromFloat(sev.Medium)):
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// compare 合并两边的 key，缺失按 0 处理
func (s *ReconciliationService) compare(checkType string, expected, actual map[string]decimal.Decimal) ([]model.Discrepancy, []string) {
	epsilon := decimal.NewFromFloat(s.cfg.Reconciliation.Epsilon)

	keys := make(map[string]struct{}, len(expected)+len(actual))
	for k := range expected {
		keys[k] = struct{}{}
	}
	for k := range actual {
		keys[k] = struct{}{}
	}

	var discrepancies []model.Discrepancy
	checked := make([]string, 0, len(keys))
	for k := range keys {
		checked = append(checked, k)
		exp, act := expected[k], actual[k]
		diff := exp.Sub(act).Abs()
		if diff.LessThanOrEqual(epsilon) {
			continue
		}
		discrepancies = append(discrepancies, model.Discrepancy{
			AccountID:  k,
			Type:       checkType,
			Expected:   exp,
			Actual:     act,
			Difference: diff,
			Severity:   s.Severity(diff),
		})
	}
	return discrepancies, checked
}

// RunReconciliation 执行一次完整对账，差异作为结果返回而不是错误
func (s *ReconciliationService) RunReconciliation(ctx context.Context) (*model.ReconciliationResult, error) {
	start := time.Now()
	checks := s.checks()
	found := make([][]model.Discrepancy, len(checks))
	checked := make([][]string, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		i, check := i, check
		g.Go(func() error {
			expected, actual, err := check.run(gctx)
			if err != nil {
				return fmt.Errorf("对账检查 %s 失败: %w", check.name, err)
			}
			found[i], checked[i] = s.compare(check.name, expected, actual)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &model.ReconciliationResult{
		RunID:     uuid.NewString(),
		Timestamp: s.clock.Now(),
		Summary: model.ReconciliationSummary{
			BySeverity:      map[string]int{},
			ByType:          map[string]int{},
			TotalDifference: decimal.Zero,
		},
	}

	users := make(map[string]struct{})
	merchants := make(map[string]struct{})
	for i, check := range checks {
		result.Summary.ChecksRun = append(result.Summary.ChecksRun, check.name)
		seen := users
		if check.name == model.DiscrepancyMerchantRevenue {
			seen = merchants
		}
		for _, k := range checked[i] {
			seen[k] = struct{}{}
		}
		result.Discrepancies = append(result.Discrepancies, found[i]...)
	}
	result.AccountsChecked = len(users) + len(merchants)

	sort.Slice(result.Discrepancies, func(i, j int) bool {
		a, b := result.Discrepancies[i], result.Discrepancies[j]
		if !a.Difference.Equal(b.Difference) {
			return a.Difference.GreaterThan(b.Difference)
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.AccountID < b.AccountID
	})

	metrics.Discrepancies.Reset()
	for _, d := range result.Discrepancies {
		result.Summary.TotalDiscrepancies++
		result.Summary.BySeverity[d.Severity]++
		result.Summary.ByType[d.Type]++
		result.Summary.TotalDifference = result.Summary.TotalDifference.Add(d.Difference)
		metrics.Discrepancies.WithLabelValues(d.Type, d.Severity).Inc()
	}
	result.Duration = time.Since(start)

	if err := s.persist(ctx, result); err != nil {
		logrus.WithError(err).Error("保存对账结果失败")
	}
	s.alert(ctx, result)

	logrus.WithFields(logrus.Fields{
		"run_id":        result.RunID,
		"accounts":      result.AccountsChecked,
		"discrepancies": result.Summary.TotalDiscrepancies,
		"duration":      result.Duration.String(),
	}).Info("对账完成")
	return result, nil
}

func (s *ReconciliationService) persist(ctx context.Context, result *model.ReconciliationResult) error {
	if err := s.results.Set(ctx, reconciliationLatestKey, result, 0); err != nil {
		return err
	}
	retention := time.Duration(s.cfg.Reconciliation.HistoryRetentionDays) * 24 * time.Hour
	return s.results.Set(ctx, historyKey(result.Timestamp), result, retention)
}

func historyKey(t time.Time) string {
	return "history:" + t.UTC().Format(reconciliationHistoryFmt)
}

// alert high / critical 差异：结构化日志 + 告警消息，按配置生成人工复核任务
func (s *ReconciliationService) alert(ctx context.Context, result *model.ReconciliationResult) {
	for _, d := range result.Discrepancies {
		if d.Severity != model.SeverityHigh && d.Severity != model.SeverityCritical {
			continue
		}

		entry := logrus.WithFields(logrus.Fields{
			"run_id":     result.RunID,
			"account_id": d.AccountID,
			"type":       d.Type,
			"expected":   d.Expected.String(),
			"actual":     d.Actual.String(),
			"difference": d.Difference.String(),
			"severity":   d.Severity,
		})
		if d.Severity == model.SeverityCritical {
			entry.Error("对账发现严重差异")
		} else {
			entry.Warn("对账发现较大差异")
		}

		if err := s.notifier.Enqueue(ctx, nil, s.cfg.Kafka.Topic.ReconciliationAlert, d.AccountID, d); err != nil {
			entry.WithError(err).Warn("写入对账告警失败")
		}

		if !s.cfg.Reconciliation.CreateAdminTask {
			continue
		}
		task := &model.AdminTask{
			TaskNo:    idgen.GenerateTaskNo(),
			Kind:      "reconciliation_review",
			Priority:  d.Severity,
			Subject:   d.AccountID,
			Title:     fmt.Sprintf("对账差异复核: %s", d.Type),
			Detail:    fmt.Sprintf("run=%s expected=%s actual=%s difference=%s", result.RunID, d.Expected, d.Actual, d.Difference),
			Status:    model.AdminTaskStatusOpen,
			CreatedAt: result.Timestamp,
		}
		if err := s.taskRepo.Create(ctx, nil, task); err != nil {
			entry.WithError(err).Warn("创建复核任务失败")
		}
	}
}

// GetLatestReconciliationResult 最近一次对账结果，从未执行过返回 nil
func (s *ReconciliationService) GetLatestReconciliationResult(ctx context.Context) (*model.ReconciliationResult, error) {
	var result model.ReconciliationResult
	if err := s.results.Get(ctx, reconciliationLatestKey, &result); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// GetResultByDate 保留期内某一天的对账结果
func (s *ReconciliationService) GetResultByDate(ctx context.Context, day time.Time) (*model.ReconciliationResult, error) {
	var result model.ReconciliationResult
	if err := s.results.Get(ctx, historyKey(day), &result); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// HistoryDates 保留期内有对账结果的日期，升序
func (s *ReconciliationService) HistoryDates(ctx context.Context) ([]string, error) {
	keys, err := s.results.Keys(ctx, "history:*")
	if err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(keys))
	for _, k := range keys {
		dates = append(dates, strings.TrimPrefix(k, "history:"))
	}
	sort.Strings(dates)
	return dates, nil
}

// OpenReviewTasks 待人工复核的对账任务
func (s *ReconciliationService) OpenReviewTasks(ctx context.Context, limit int) ([]*model.AdminTask, error) {
	return s.taskRepo.ListOpen(ctx, limit)
}
