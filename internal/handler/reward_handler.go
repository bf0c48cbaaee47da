package handler

import (
	"strconv"

	"rewardledger/internal/service"
	"rewardledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// GrantReward 互动奖励
// POST /api/v1/rewards/grant
//
// duplicate / limitReached / qualityFailed 都是正常结果，通过 data.status 区分
func (h *Handler) GrantReward(c *gin.Context) {
	var req service.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Engagement.GrantReward(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// ListRewardActions GET /api/v1/rewards/actions
func (h *Handler) ListRewardActions(c *gin.Context) {
	response.Success(c, h.svc.Engagement.ListActions())
}

// ListPendingModeration 待审核列表
// GET /api/v1/moderation/pending
func (h *Handler) ListPendingModeration(c *gin.Context) {
	page, pageSize := pagination(c)
	records, total, err := h.svc.Moderation.ListPending(c.Request.Context(), page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pageResult(records, total, page, pageSize))
}

type ReviewRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Notes      string `json:"notes"`
	Reason     string `json:"reason"`
}

func moderationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

// ApproveModeration 审核通过
// POST /api/v1/moderation/:id/approve
func (h *Handler) ApproveModeration(c *gin.Context) {
	id, ok := moderationID(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.svc.Moderation.Approve(c.Request.Context(), id, req.ReviewerID, req.Notes)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, record)
}

// RejectModeration 审核驳回
// POST /api/v1/moderation/:id/reject
func (h *Handler) RejectModeration(c *gin.Context) {
	id, ok := moderationID(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if req.Reason == "" {
		response.ParamError(c, "reason 不能为空")
		return
	}

	record, err := h.svc.Moderation.Reject(c.Request.Context(), id, req.ReviewerID, req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, record)
}

// CreditModeration 已通过的奖励入账
// POST /api/v1/moderation/:id/credit
func (h *Handler) CreditModeration(c *gin.Context) {
	id, ok := moderationID(c)
	if !ok {
		return
	}

	entry, err := h.svc.Moderation.CreditCoins(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entry)
}
