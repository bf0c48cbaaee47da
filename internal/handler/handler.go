package handler

import (
	"errors"
	"strconv"

	"rewardledger/internal/config"
	"rewardledger/internal/job"
	"rewardledger/internal/service"
	"rewardledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler 统一处理器，只做参数解析和错误码转换
type Handler struct {
	cfg       *config.Config
	svc       *service.Services
	scheduler *job.Scheduler
}

func NewHandler(cfg *config.Config, svc *service.Services, scheduler *job.Scheduler) *Handler {
	return &Handler{
		cfg:       cfg,
		svc:       svc,
		scheduler: scheduler,
	}
}

// handleError 业务错误转换为错误码
func handleError(c *gin.Context, err error) {
	var insufficient *service.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient), errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, service.ErrInvalidModerationTransition):
		response.BusinessError(c, response.CodeInvalidTransition, err.Error())
	case errors.Is(err, service.ErrWalletNotFound):
		response.BusinessError(c, response.CodeWalletNotFound, err.Error())
	case errors.Is(err, service.ErrOrderNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, err.Error())
	case errors.Is(err, service.ErrOrderStatusInvalid):
		response.BusinessError(c, response.CodeOrderStatusInvalid, err.Error())
	case errors.Is(err, service.ErrRecordNotFound), errors.Is(err, service.ErrWithdrawalNotPending):
		response.BusinessError(c, response.CodeRecordNotFound, err.Error())
	case errors.Is(err, service.ErrUnknownRewardAction):
		response.BusinessError(c, response.CodeUnknownRewardAction, err.Error())
	case errors.Is(err, service.ErrLockContention):
		response.BusinessError(c, response.CodeJobLocked, err.Error())
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidEntryKind):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrAccountBusy), errors.Is(err, service.ErrConcurrentModification):
		response.BusinessError(c, response.CodeBusinessError, err.Error())
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("请求处理失败")
		response.ServerError(c, err.Error())
	}
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func pageResult(list interface{}, total int64, page, pageSize int) gin.H {
	return gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}
}

// ============================================================
// 钱包 / 流水查询
// ============================================================

// GetBalance 查询余额，category 为空时返回全局余额
// GET /api/v1/ledger/balance?account_id=xxx&category=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		response.ParamError(c, "account_id 参数不能为空")
		return
	}
	category := c.Query("category")

	balance, err := h.svc.Ledger.GetBalance(c.Request.Context(), accountID, category)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_id": accountID,
		"category":   category,
		"balance":    balance,
	})
}

// GetWallet 钱包聚合视图
// GET /api/v1/ledger/wallet?account_id=xxx
func (h *Handler) GetWallet(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		response.ParamError(c, "account_id 参数不能为空")
		return
	}

	view, err := h.svc.Ledger.GetWallet(c.Request.Context(), accountID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, view)
}

// ListEntries 流水列表
// GET /api/v1/ledger/entries?account_id=xxx&page=1&page_size=20
func (h *Handler) ListEntries(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		response.ParamError(c, "account_id 参数不能为空")
		return
	}
	page, pageSize := pagination(c)

	entries, total, err := h.svc.Ledger.ListEntries(c.Request.Context(), accountID, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pageResult(entries, total, page, pageSize))
}
