package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rewardledger/internal/infrastructure/lock"
	"rewardledger/internal/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Task 定时任务体
type Task func(ctx context.Context) error

// Scheduler 进程内 cron 调度
//
// 同一进程内上一轮未结束则跳过（SkipIfStillRunning），
// 多实例之间用 redis 任务锁互斥，拿不到锁同样跳过。
type Scheduler struct {
	cron        *cron.Cron
	redisClient *redis.Client
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.Mutex
	entries     map[string]cron.EntryID
}

func NewScheduler(redisClient *redis.Client) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		redisClient: redisClient,
		ctx:         ctx,
		cancel:      cancel,
		entries:     make(map[string]cron.EntryID),
	}
}

// Register 注册任务，lockTTL 必须大于任务最坏执行时长
func (s *Scheduler) Register(name, spec string, lockTTL time.Duration, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("任务 %s 已注册", name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		_ = s.RunExclusive(s.ctx, name, lockTTL, task)
	})
	if err != nil {
		return fmt.Errorf("注册任务 %s 失败: %w", name, err)
	}
	s.entries[name] = id
	logrus.WithFields(logrus.Fields{"job": name, "schedule": spec}).Info("定时任务已注册")
	return nil
}

// RunExclusive 加任务锁执行一次；锁被占用返回 lock.ErrLockContention
func (s *Scheduler) RunExclusive(ctx context.Context, name string, lockTTL time.Duration, task Task) error {
	logger := logrus.WithField("job", name)
	start := time.Now()

	err := lock.RunExclusive(ctx, s.redisClient, name, lockTTL, task)
	metrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.JobRuns.WithLabelValues(name, "ok").Inc()
		logger.WithField("duration", time.Since(start).String()).Info("任务执行完成")
	case errors.Is(err, lock.ErrLockContention):
		metrics.JobRuns.WithLabelValues(name, "skipped").Inc()
		logger.Info("任务锁被其它实例持有，跳过本轮")
	default:
		metrics.JobRuns.WithLabelValues(name, "error").Inc()
		logger.WithError(err).Error("任务执行失败")
	}
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logrus.Info("调度器启动")
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	s.cancel()
	<-stopCtx.Done()
	logrus.Info("调度器已停止")
}
