package database

import (
	"fmt"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Models 需要自动迁移的全部表
func Models() []interface{} {
	return []interface{}{
		&model.LedgerEntry{},
		&model.Wallet{},
		&model.WalletBucket{},
		&model.BrandedBalance{},
		&model.MerchantWallet{},
		&model.MerchantWalletTransaction{},
		&model.PendingCoinReward{},
		&model.EngagementRewardLog{},
		&model.Order{},
		&model.CashbackRecord{},
		&model.AdminTask{},
		&model.OutboxMessage{},
	}
}

func dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.Database, cfg.Port)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.Database), nil
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}
}

// Open 建立连接并迁移表结构
// TranslateError 打开后，各驱动的唯一键冲突统一为 gorm.ErrDuplicatedKey
func Open(cfg *config.DatabaseConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite 单写者，连接数固定为 1
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("自动迁移表结构失败: %w", err)
	}

	return db, nil
}

// Init 服务启动时调用，失败直接退出
func Init(cfg *config.DatabaseConfig) *gorm.DB {
	db, err := Open(cfg, logger.Warn)
	if err != nil {
		logrus.Fatalf("初始化数据库失败: %v", err)
	}
	DB = db
	logrus.WithField("driver", cfg.Driver).Info("数据库连接成功")
	return db
}
