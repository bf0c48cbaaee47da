package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/metrics"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/pkg/clock"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AccountError 批处理中单个账户的失败，不中断整批
type AccountError struct {
	AccountID string `json:"account_id"`
	Error     string `json:"error"`
}

type ExpiryStats struct {
	AccountsProcessed int            `json:"accounts_processed"`
	EntriesExpired    int            `json:"entries_expired"`
	CoinsExpired      int64          `json:"coins_expired"`
	WarningsSent      int            `json:"warnings_sent"`
	Errors            []AccountError `json:"errors,omitempty"`
}

// AccountExpiry 单个账户即将过期的硬币
type AccountExpiry struct {
	AccountID      string    `json:"account_id"`
	Coins          int64     `json:"coins"`
	Entries        int       `json:"entries"`
	EarliestExpiry time.Time `json:"earliest_expiry"`
}

type ExpiryPreview struct {
	DaysAhead  int             `json:"days_ahead"`
	TotalCoins int64           `json:"total_coins"`
	EntryCount int             `json:"entry_count"`
	Accounts   []AccountExpiry `json:"accounts"`
}

// ExpiryService 硬币过期
//
// 每个账户一次运行只写一笔 expired 汇总流水，源流水在同一事务内打上已处理标记；
// 标记失败（已被其它运行处理）时整笔回滚，重复运行不会重复过期。
type ExpiryService struct {
	cfg        *config.Config
	clock      clock.Clock
	ledger     *LedgerService
	notifier   *NotificationService
	ledgerRepo *repository.LedgerRepository
}

func NewExpiryService(db *gorm.DB, cfg *config.Config, clk clock.Clock, ledger *LedgerService, notifier *NotificationService) *ExpiryService {
	return &ExpiryService{
		cfg:        cfg,
		clock:      clk,
		ledger:     ledger,
		notifier:   notifier,
		ledgerRepo: repository.NewLedgerRepository(db),
	}
}

// Run 先发过期预警，再处理已到期流水
func (s *ExpiryService) Run(ctx context.Context) (*ExpiryStats, error) {
	warned, err := s.SendPreExpiryWarnings(ctx)
	if err != nil {
		logrus.WithError(err).Warn("过期预警失败")
	}
	stats, err := s.ProcessExpiredEntries(ctx)
	if err != nil {
		return nil, err
	}
	stats.WarningsSent = warned
	return stats, nil
}

// SendPreExpiryWarnings 预警窗口内即将过期的流水按账户汇总，每个账户一条通知，每笔流水最多预警一次
func (s *ExpiryService) SendPreExpiryWarnings(ctx context.Context) (int, error) {
	now := s.clock.Now()
	window := time.Duration(s.cfg.Business.ExpiryWarningHours) * time.Hour
	entries, err := s.ledgerRepo.FindExpiringBetween(ctx, now, now.Add(window), true)
	if err != nil {
		return 0, fmt.Errorf("查询即将过期流水失败: %w", err)
	}

	sent := 0
	for _, group := range groupByAccount(entries) {
		var coins int64
		ids := make([]int64, 0, len(group))
		for _, e := range group {
			coins += e.Amount
			ids = append(ids, e.ID)
		}
		accountID := group[0].AccountID
		if err := s.ledgerRepo.MarkWarned(ctx, ids); err != nil {
			logrus.WithError(err).WithField("account_id", accountID).Warn("标记过期预警失败")
			continue
		}
		s.notifier.SendCategory(ctx, accountID, "硬币即将过期",
			fmt.Sprintf("你有 %d 硬币将在 %s 前过期，请尽快使用", coins, group[0].ExpiresAt.Format("2006-01-02 15:04")), model.SourceExpiry)
		sent++
	}

	logrus.WithField("accounts", sent).Info("过期预警发送完成")
	return sent, nil
}

// ProcessExpiredEntries 处理已到期流水，单个账户失败记录后继续
func (s *ExpiryService) ProcessExpiredEntries(ctx context.Context) (*ExpiryStats, error) {
	now := s.clock.Now()
	accounts, err := s.ledgerRepo.DueAccounts(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("查询到期账户失败: %w", err)
	}

	stats := &ExpiryStats{}
	for _, accountID := range accounts {
		entry, count, err := s.expireAccount(ctx, accountID, now)
		if err != nil {
			logrus.WithError(err).WithField("account_id", accountID).Error("账户过期处理失败")
			stats.Errors = append(stats.Errors, AccountError{AccountID: accountID, Error: err.Error()})
			continue
		}
		if entry == nil {
			continue
		}
		stats.AccountsProcessed++
		stats.EntriesExpired += count
		stats.CoinsExpired += entry.Amount
		metrics.CoinsExpired.Add(float64(entry.Amount))

		if entry.Amount > 0 {
			s.notifier.SendCategory(ctx, accountID, "硬币已过期",
				fmt.Sprintf("%d 硬币已过期", entry.Amount), model.SourceExpiry)
		}
	}

	logrus.WithFields(logrus.Fields{
		"accounts": stats.AccountsProcessed,
		"entries":  stats.EntriesExpired,
		"coins":    stats.CoinsExpired,
		"errors":   len(stats.Errors),
	}).Info("过期处理完成")
	return stats, nil
}

func (s *ExpiryService) expireAccount(ctx context.Context, accountID string, now time.Time) (*model.LedgerEntry, int, error) {
	due, err := s.ledgerRepo.DueEntries(ctx, accountID, now)
	if err != nil {
		return nil, 0, err
	}
	if len(due) == 0 {
		return nil, 0, nil
	}

	var total int64
	ids := make([]int64, 0, len(due))
	sourceSet := make(map[string]struct{})
	for _, e := range due {
		total += e.Amount
		ids = append(ids, e.ID)
		sourceSet[e.Source] = struct{}{}
	}
	sources := make([]string, 0, len(sourceSet))
	for src := range sourceSet {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	entry, err := s.ledger.Append(ctx, &AppendRequest{
		AccountID:    accountID,
		Kind:         model.EntryKindExpired,
		Amount:       total,
		Source:       model.SourceExpiry,
		Description:  fmt.Sprintf("%d 笔奖励到期", len(due)),
		CapAtBalance: true,
		Metadata: model.EntryMetadata{
			ExpiredEntryIDs: ids,
			ExpiredSources:  sources,
			DueAmount:       total,
		},
		Within: func(tx *gorm.DB, entry *model.LedgerEntry) error {
			rows, err := s.ledgerRepo.MarkProcessedForExpiry(ctx, tx, ids, entry.ID, now)
			if err != nil {
				return err
			}
			if rows != int64(len(ids)) {
				return fmt.Errorf("%w: 到期流水已被其它任务处理", ErrConcurrentModification)
			}
			return nil
		},
	})
	if err != nil {
		return nil, 0, err
	}
	return entry, len(due), nil
}

// PreviewUpcomingExpirations 未来 daysAhead 天内将过期的硬币
func (s *ExpiryService) PreviewUpcomingExpirations(ctx context.Context, daysAhead int) (*ExpiryPreview, error) {
	if daysAhead <= 0 {
		daysAhead = 7
	}
	now := s.clock.Now()
	entries, err := s.ledgerRepo.FindExpiringBetween(ctx, now, now.AddDate(0, 0, daysAhead), false)
	if err != nil {
		return nil, err
	}

	preview := &ExpiryPreview{DaysAhead: daysAhead, Accounts: []AccountExpiry{}}
	for _, group := range groupByAccount(entries) {
		item := AccountExpiry{AccountID: group[0].AccountID, EarliestExpiry: *group[0].ExpiresAt}
		for _, e := range group {
			item.Coins += e.Amount
			item.Entries++
		}
		preview.TotalCoins += item.Coins
		preview.EntryCount += item.Entries
		preview.Accounts = append(preview.Accounts, item)
	}
	return preview, nil
}

// groupByAccount 输入已按 account_id 排序
func groupByAccount(entries []*model.LedgerEntry) [][]*model.LedgerEntry {
	var groups [][]*model.LedgerEntry
	for i := 0; i < len(entries); {
		j := i
		for j < len(entries) && entries[j].AccountID == entries[i].AccountID {
			j++
		}
		groups = append(groups, entries[i:j])
		i = j
	}
	return groups
}
