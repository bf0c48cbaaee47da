package handler

import (
	"rewardledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ============================================================
// 商户钱包
// ============================================================

// OpenMerchantWallet 开通商户钱包（已存在直接返回）
// POST /api/v1/merchant/wallet
func (h *Handler) OpenMerchantWallet(c *gin.Context) {
	var req struct {
		MerchantID string `json:"merchant_id" binding:"required"`
		StoreID    string `json:"store_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	wallet, err := h.svc.MerchantWallet.OpenWallet(c.Request.Context(), req.MerchantID, req.StoreID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, wallet)
}

// GetMerchantWallet GET /api/v1/merchant/wallet?merchant_id=xxx
func (h *Handler) GetMerchantWallet(c *gin.Context) {
	merchantID := c.Query("merchant_id")
	if merchantID == "" {
		response.ParamError(c, "merchant_id 参数不能为空")
		return
	}

	wallet, err := h.svc.MerchantWallet.GetWallet(c.Request.Context(), merchantID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, wallet)
}

// ListMerchantTransactions GET /api/v1/merchant/transactions?merchant_id=xxx&type=credit
func (h *Handler) ListMerchantTransactions(c *gin.Context) {
	merchantID := c.Query("merchant_id")
	if merchantID == "" {
		response.ParamError(c, "merchant_id 参数不能为空")
		return
	}
	page, pageSize := pagination(c)

	txns, total, err := h.svc.MerchantWallet.ListTransactions(c.Request.Context(), merchantID, c.Query("type"), page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pageResult(txns, total, page, pageSize))
}

// RequestWithdrawal 申请提现
// POST /api/v1/merchant/withdraw
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req struct {
		MerchantID string          `json:"merchant_id" binding:"required"`
		Amount     decimal.Decimal `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	txn, err := h.svc.MerchantWallet.RequestWithdrawal(c.Request.Context(), req.MerchantID, req.Amount)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, txn)
}

// ProcessWithdrawal 打款完成
// POST /api/v1/merchant/withdrawals/:no/process
func (h *Handler) ProcessWithdrawal(c *gin.Context) {
	var req struct {
		Reference string `json:"reference"`
	}
	_ = c.ShouldBindJSON(&req)

	txn, err := h.svc.MerchantWallet.ProcessWithdrawal(c.Request.Context(), c.Param("no"), req.Reference)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, txn)
}

// RejectWithdrawal 驳回提现
// POST /api/v1/merchant/withdrawals/:no/reject
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	txn, err := h.svc.MerchantWallet.RejectWithdrawal(c.Request.Context(), c.Param("no"), req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, txn)
}

// AwardBrandedCoins 商户发放品牌币
// POST /api/v1/merchant/award
func (h *Handler) AwardBrandedCoins(c *gin.Context) {
	var req struct {
		MerchantID    string `json:"merchant_id" binding:"required"`
		MerchantLabel string `json:"merchant_label" binding:"required"`
		AccountID     string `json:"account_id" binding:"required"`
		Coins         int64  `json:"coins" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	entry, err := h.svc.MerchantWallet.AwardBrandedCoins(c.Request.Context(), req.MerchantID, req.MerchantLabel, req.AccountID, req.Coins)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entry)
}
