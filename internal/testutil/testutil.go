// Package testutil 测试用的 sqlite 内存库、miniredis 和固定配置
package testutil

import (
	"fmt"
	"testing"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/infrastructure/database"
	"rewardledger/pkg/clock"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Epoch 测试时钟起点
var Epoch = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

// NewDB 每个测试独立的内存库，已完成迁移
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Database: dsn}, logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func NewClock() *clock.Fixed {
	return clock.NewFixed(Epoch)
}

// NewConfig 与 config/config.yaml 默认值一致的配置
func NewConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				Notification:        "coin_notification",
				ReconciliationAlert: "reconciliation_alert",
				Settlement:          "merchant_settlement",
			},
		},
		Business: config.BusinessConfig{
			OrderTimeoutMinutes: 15,
			MaxRetryCount:       5,
			PlatformFeeRate:     0.05,
			CashbackRate:        0.02,
			CoinExpiryDays:      365,
			ExpiryWarningHours:  48,
		},
		Jobs: config.JobsConfig{
			Reconciliation: config.CronJobConfig{Schedule: "0 3 * * *", LockTTLSeconds: 3600},
			Expiry:         config.CronJobConfig{Schedule: "0 1 * * *", LockTTLSeconds: 1800},
			Leaderboard:    config.CronJobConfig{Schedule: "*/10 * * * *", LockTTLSeconds: 300},
		},
		Reconciliation: config.ReconciliationConfig{
			Epsilon:              0.01,
			HistoryRetentionDays: 7,
			CreateAdminTask:      true,
			Severity:             config.SeverityConfig{Medium: 100, High: 1000, Critical: 10000},
		},
		Rewards: map[string]config.RewardActionConfig{
			"photo_upload":  {BaseCoins: 20, DailyLimit: 5, RequiresModeration: true, MinPhotos: 1},
			"offer_comment": {BaseCoins: 5, DailyLimit: 10, RequiresModeration: true, MinTextLength: 20, LongTextLength: 100, LongTextBonus: 5},
			"review":        {BaseCoins: 15, DailyLimit: 3, RequiresModeration: true, MinTextLength: 50, VerifiedBonus: 10},
			"video_upload":  {BaseCoins: 50, DailyLimit: 2, RequiresModeration: true, MinDurationSeconds: 15},
			"social_share":  {BaseCoins: 2, DailyLimit: 10},
			"checkin":       {BaseCoins: 10, DailyLimit: 1},
		},
	}
}
