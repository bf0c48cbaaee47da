package job

import (
	"context"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/service"
)

const (
	JobReconciliation = "reconciliation"
	JobExpiry         = "coin_expiry"
	JobLeaderboard    = "leaderboard_refresh"
)

// ScheduledServices 定时任务依赖的服务
type ScheduledServices struct {
	Reconciliation *service.ReconciliationService
	Expiry         *service.ExpiryService
	Leaderboard    *service.LeaderboardService
}

func lockTTL(c config.CronJobConfig) time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// ReconciliationTask 对账任务体，命令行一次性执行也复用它
func ReconciliationTask(svc *service.ReconciliationService) Task {
	return func(ctx context.Context) error {
		_, err := svc.RunReconciliation(ctx)
		return err
	}
}

func ExpiryTask(svc *service.ExpiryService) Task {
	return func(ctx context.Context) error {
		_, err := svc.Run(ctx)
		return err
	}
}

func LeaderboardTask(svc *service.LeaderboardService) Task {
	return func(ctx context.Context) error {
		_, err := svc.Refresh(ctx)
		return err
	}
}

// RegisterScheduledJobs 注册对账、过期、排行榜刷新
func RegisterScheduledJobs(s *Scheduler, cfg *config.JobsConfig, svcs ScheduledServices) error {
	if err := s.Register(JobReconciliation, cfg.Reconciliation.Schedule, lockTTL(cfg.Reconciliation), ReconciliationTask(svcs.Reconciliation)); err != nil {
		return err
	}
	if err := s.Register(JobExpiry, cfg.Expiry.Schedule, lockTTL(cfg.Expiry), ExpiryTask(svcs.Expiry)); err != nil {
		return err
	}
	return s.Register(JobLeaderboard, cfg.Leaderboard.Schedule, lockTTL(cfg.Leaderboard), LeaderboardTask(svcs.Leaderboard))
}
