package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server         ServerConfig                  `mapstructure:"server"`
	Database       DatabaseConfig                `mapstructure:"database"`
	Redis          RedisConfig                   `mapstructure:"redis"`
	Kafka          KafkaConfig                   `mapstructure:"kafka"`
	Business       BusinessConfig                `mapstructure:"business"`
	Gateway        GatewayConfig                 `mapstructure:"gateway"`
	Jobs           JobsConfig                    `mapstructure:"jobs"`
	Reconciliation ReconciliationConfig          `mapstructure:"reconciliation"`
	Rewards        map[string]RewardActionConfig `mapstructure:"rewards"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig driver 取值 mysql / postgres / sqlite
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Notification        string `mapstructure:"notification"`
	ReconciliationAlert string `mapstructure:"reconciliation_alert"`
	Settlement          string `mapstructure:"settlement"`
}

type BusinessConfig struct {
	OrderTimeoutMinutes int     `mapstructure:"order_timeout_minutes"`
	MaxRetryCount       int     `mapstructure:"max_retry_count"`
	PlatformFeeRate     float64 `mapstructure:"platform_fee_rate"`
	CashbackRate        float64 `mapstructure:"cashback_rate"`
	CoinExpiryDays      int     `mapstructure:"coin_expiry_days"`
	ExpiryWarningHours  int     `mapstructure:"expiry_warning_hours"`
}

type GatewayConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CronJobConfig 定时任务：cron 表达式 + 分布式锁 TTL
// TTL 必须大于任务最坏执行时长
type CronJobConfig struct {
	Schedule       string `mapstructure:"schedule"`
	LockTTLSeconds int    `mapstructure:"lock_ttl_seconds"`
}

type JobsConfig struct {
	Reconciliation                    CronJobConfig `mapstructure:"reconciliation"`
	Expiry                            CronJobConfig `mapstructure:"expiry"`
	Leaderboard                       CronJobConfig `mapstructure:"leaderboard"`
	SettlementRecoveryIntervalSeconds int           `mapstructure:"settlement_recovery_interval_seconds"`
	OutboxIntervalMillis              int           `mapstructure:"outbox_interval_millis"`
}

type SeverityConfig struct {
	Medium   float64 `mapstructure:"medium"`
	High     float64 `mapstructure:"high"`
	Critical float64 `mapstructure:"critical"`
}

type ReconciliationConfig struct {
	Epsilon              float64        `mapstructure:"epsilon"`
	HistoryRetentionDays int            `mapstructure:"history_retention_days"`
	CreateAdminTask      bool           `mapstructure:"create_admin_task"`
	Severity             SeverityConfig `mapstructure:"severity"`
}

// RewardActionConfig 单个互动行为的奖励规则
type RewardActionConfig struct {
	BaseCoins          int64 `mapstructure:"base_coins"`
	DailyLimit         int   `mapstructure:"daily_limit"`
	RequiresModeration bool  `mapstructure:"requires_moderation"`
	MinTextLength      int   `mapstructure:"min_text_length"`
	MinPhotos          int   `mapstructure:"min_photos"`
	MinDurationSeconds int   `mapstructure:"min_duration_seconds"`
	LongTextLength     int   `mapstructure:"long_text_length"`
	LongTextBonus      int64 `mapstructure:"long_text_bonus"`
	VerifiedBonus      int64 `mapstructure:"verified_bonus"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件，环境变量优先（DATABASE_HOST 覆盖 database.host）
func LoadConfig(configPath string) *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("未找到 .env 文件，跳过")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		logrus.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		logrus.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("business.order_timeout_minutes", 15)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.expiry_warning_hours", 48)
	v.SetDefault("jobs.reconciliation.schedule", "0 3 * * *")
	v.SetDefault("jobs.reconciliation.lock_ttl_seconds", 3600)
	v.SetDefault("jobs.expiry.schedule", "0 1 * * *")
	v.SetDefault("jobs.expiry.lock_ttl_seconds", 1800)
	v.SetDefault("jobs.leaderboard.schedule", "*/10 * * * *")
	v.SetDefault("jobs.leaderboard.lock_ttl_seconds", 300)
	v.SetDefault("jobs.settlement_recovery_interval_seconds", 30)
	v.SetDefault("jobs.outbox_interval_millis", 200)
	v.SetDefault("reconciliation.epsilon", 0.01)
	v.SetDefault("reconciliation.history_retention_days", 7)
	v.SetDefault("reconciliation.severity.medium", 100)
	v.SetDefault("reconciliation.severity.high", 1000)
	v.SetDefault("reconciliation.severity.critical", 10000)
}
