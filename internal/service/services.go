package service

import (
	"rewardledger/internal/config"
	"rewardledger/pkg/clock"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Services 组装好的全部业务服务
type Services struct {
	Ledger         *LedgerService
	Notifications  *NotificationService
	Engagement     *EngagementService
	Moderation     *ModerationService
	MerchantWallet *MerchantWalletService
	Cashback       *CashbackService
	Orders         *OrderService
	Refunds        *RefundService
	Reconciliation *ReconciliationService
	Expiry         *ExpiryService
	Leaderboard    *LeaderboardService
}

func NewServices(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, clk clock.Clock) *Services {
	notifier := NewNotificationService(db, cfg, clk)
	ledger := NewLedgerService(db, redisClient, cfg, clk)
	merchants := NewMerchantWalletService(db, cfg, clk, ledger, notifier)
	cashback := NewCashbackService(db, cfg, clk, ledger, notifier)

	return &Services{
		Ledger:         ledger,
		Notifications:  notifier,
		Engagement:     NewEngagementService(db, clk, NewRewardRegistry(cfg.Rewards), ledger, notifier),
		Moderation:     NewModerationService(db, clk, ledger, notifier),
		MerchantWallet: merchants,
		Cashback:       cashback,
		Orders:         NewOrderService(db, cfg, clk, ledger, merchants, cashback, notifier),
		Refunds:        NewRefundService(db, redisClient, cfg, clk, ledger, notifier),
		Reconciliation: NewReconciliationService(db, redisClient, cfg, clk, notifier),
		Expiry:         NewExpiryService(db, cfg, clk, ledger, notifier),
		Leaderboard:    NewLeaderboardService(db, redisClient, clk),
	}
}
