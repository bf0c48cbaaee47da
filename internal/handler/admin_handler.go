package handler

import (
	"context"
	"strconv"
	"time"

	"rewardledger/internal/job"
	"rewardledger/internal/model"
	"rewardledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 运维：对账、过期、排行榜
// ============================================================

// RunReconciliation 手动触发对账，与定时任务共用任务锁
// POST /api/v1/admin/reconciliation/run
func (h *Handler) RunReconciliation(c *gin.Context) {
	var result *model.ReconciliationResult
	ttl := time.Duration(h.cfg.Jobs.Reconciliation.LockTTLSeconds) * time.Second

	err := h.scheduler.RunExclusive(c.Request.Context(), job.JobReconciliation, ttl, func(ctx context.Context) error {
		var err error
		result, err = h.svc.Reconciliation.RunReconciliation(ctx)
		return err
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// LatestReconciliation GET /api/v1/admin/reconciliation/latest
func (h *Handler) LatestReconciliation(c *gin.Context) {
	result, err := h.svc.Reconciliation.GetLatestReconciliationResult(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	if result == nil {
		response.BusinessError(c, response.CodeRecordNotFound, "暂无对账结果")
		return
	}
	response.Success(c, result)
}

// ReconciliationHistory GET /api/v1/admin/reconciliation/history?date=2025-01-15
// 不带 date 时返回保留期内可查询的日期
func (h *Handler) ReconciliationHistory(c *gin.Context) {
	if c.Query("date") == "" {
		dates, err := h.svc.Reconciliation.HistoryDates(c.Request.Context())
		if err != nil {
			handleError(c, err)
			return
		}
		response.Success(c, gin.H{"dates": dates})
		return
	}

	day, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.ParamError(c, "date 格式应为 YYYY-MM-DD")
		return
	}

	result, err := h.svc.Reconciliation.GetResultByDate(c.Request.Context(), day)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// ListReviewTasks GET /api/v1/admin/tasks?limit=50
func (h *Handler) ListReviewTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	tasks, err := h.svc.Reconciliation.OpenReviewTasks(c.Request.Context(), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, tasks)
}

// PreviewExpirations GET /api/v1/admin/expiry/preview?days=7
func (h *Handler) PreviewExpirations(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))

	preview, err := h.svc.Expiry.PreviewUpcomingExpirations(c.Request.Context(), days)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, preview)
}

// RunExpiry 手动触发过期任务
// POST /api/v1/admin/expiry/run
func (h *Handler) RunExpiry(c *gin.Context) {
	var stats interface{}
	ttl := time.Duration(h.cfg.Jobs.Expiry.LockTTLSeconds) * time.Second

	err := h.scheduler.RunExclusive(c.Request.Context(), job.JobExpiry, ttl, func(ctx context.Context) error {
		s, err := h.svc.Expiry.Run(ctx)
		stats = s
		return err
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

// GetLeaderboard GET /api/v1/leaderboard
func (h *Handler) GetLeaderboard(c *gin.Context) {
	board, err := h.svc.Leaderboard.Get(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, board)
}
