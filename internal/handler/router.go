package handler

import (
	"rewardledger/internal/config"
	"rewardledger/internal/job"
	"rewardledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(cfg *config.Config, svc *service.Services, scheduler *job.Scheduler) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(cfg, svc, scheduler)

	api := r.Group("/api/v1")
	{
		// 用户硬币账户
		ledger := api.Group("/ledger")
		{
			ledger.GET("/balance", h.GetBalance)
			ledger.GET("/wallet", h.GetWallet)
			ledger.GET("/entries", h.ListEntries)
		}

		// 互动奖励与审核
		api.GET("/rewards/actions", h.ListRewardActions)
		api.POST("/rewards/grant", h.GrantReward)
		moderation := api.Group("/moderation")
		{
			moderation.GET("/pending", h.ListPendingModeration)
			moderation.POST("/:id/approve", h.ApproveModeration)
			moderation.POST("/:id/reject", h.RejectModeration)
			moderation.POST("/:id/credit", h.CreditModeration)
		}

		// 订单相关
		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.GET("/detail", h.GetOrder)
			order.GET("/list", h.ListOrders)
			order.POST("/cancel", h.CancelOrder)
			order.POST("/pay", h.PayOrder)
			order.POST("/fulfill", h.FulfillOrder)
			order.POST("/gateway/callback", h.GatewayCallback)
		}

		// 退款相关
		refund := api.Group("/refund")
		{
			refund.POST("/execute", h.RefundOrder)
		}

		// 商户钱包
		merchant := api.Group("/merchant")
		{
			merchant.POST("/wallet", h.OpenMerchantWallet)
			merchant.GET("/wallet", h.GetMerchantWallet)
			merchant.GET("/transactions", h.ListMerchantTransactions)
			merchant.POST("/withdraw", h.RequestWithdrawal)
			merchant.POST("/withdrawals/:no/process", h.ProcessWithdrawal)
			merchant.POST("/withdrawals/:no/reject", h.RejectWithdrawal)
			merchant.POST("/award", h.AwardBrandedCoins)
		}

		api.GET("/leaderboard", h.GetLeaderboard)

		// 运维
		admin := api.Group("/admin")
		{
			admin.POST("/reconciliation/run", h.RunReconciliation)
			admin.GET("/reconciliation/latest", h.LatestReconciliation)
			admin.GET("/reconciliation/history", h.ReconciliationHistory)
			admin.GET("/tasks", h.ListReviewTasks)
			admin.GET("/expiry/preview", h.PreviewExpirations)
			admin.POST("/expiry/run", h.RunExpiry)
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
