package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/handler"
	"rewardledger/internal/infrastructure/cache"
	"rewardledger/internal/infrastructure/database"
	"rewardledger/internal/infrastructure/gateway"
	"rewardledger/internal/infrastructure/mq"
	"rewardledger/internal/job"
	"rewardledger/internal/service"
	"rewardledger/pkg/clock"
	"rewardledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	configPath string
	workerID   int64
)

var rootCmd = &cobra.Command{
	Use:   "rewardledger",
	Short: "硬币奖励账本服务",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务和后台任务",
	RunE:  runServe,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "执行一次对账（与定时任务共用任务锁）",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(job.JobReconciliation, func(cfg *config.Config, svc *service.Services) (time.Duration, job.Task) {
			return time.Duration(cfg.Jobs.Reconciliation.LockTTLSeconds) * time.Second, job.ReconciliationTask(svc.Reconciliation)
		})
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "执行一次硬币过期处理",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(job.JobExpiry, func(cfg *config.Config, svc *service.Services) (time.Duration, job.Task) {
			return time.Duration(cfg.Jobs.Expiry.LockTTLSeconds) * time.Second, job.ExpiryTask(svc.Expiry)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().Int64Var(&workerID, "worker-id", 1, "雪花算法机器 ID")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(expireCmd)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap 加载配置并初始化存储依赖
func bootstrap() (*config.Config, *gorm.DB, *redis.Client, *service.Services) {
	cfg := config.LoadConfig(configPath)
	idgen.Init(workerID)

	db := database.Init(&cfg.Database)
	redisClient := cache.InitRedis(&cfg.Redis)

	return cfg, db, redisClient, service.NewServices(db, redisClient, cfg, clock.Real())
}

func runOnce(name string, build func(*config.Config, *service.Services) (time.Duration, job.Task)) error {
	cfg, _, redisClient, svc := bootstrap()
	defer redisClient.Close()

	ttl, task := build(cfg, svc)
	scheduler := job.NewScheduler(redisClient)
	return scheduler.RunExclusive(context.Background(), name, ttl, task)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, db, redisClient, svc := bootstrap()
	defer redisClient.Close()

	publisher := mq.InitKafka(&cfg.Kafka)
	defer publisher.Close()

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, cfg, publisher)
	go outboxSender.Start(ctx)

	orderTimeoutJob := job.NewOrderTimeoutJob(svc.Orders)
	go orderTimeoutJob.Start(ctx)

	recoveryJob := job.NewSettlementRecoveryJob(cfg, svc.Orders, svc.Cashback, gateway.NewHTTPStatusProvider(&cfg.Gateway))
	go recoveryJob.Start(ctx)

	scheduler := job.NewScheduler(redisClient)
	if err := job.RegisterScheduledJobs(scheduler, &cfg.Jobs, job.ScheduledServices{
		Reconciliation: svc.Reconciliation,
		Expiry:         svc.Expiry,
		Leaderboard:    svc.Leaderboard,
	}); err != nil {
		return err
	}
	scheduler.Start()

	router := handler.SetupRouter(cfg, svc, scheduler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logrus.Infof("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("正在关闭服务...")

	// 先停调度，再取消上下文停止后台任务
	scheduler.Stop()
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("服务关闭异常: %v", err)
	}

	logrus.Info("服务已关闭")
	return nil
}
