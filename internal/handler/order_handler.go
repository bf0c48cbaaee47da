package handler

import (
	"rewardledger/internal/model"
	"rewardledger/internal/service"
	"rewardledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 订单相关接口
// ============================================================

type orderNoRequest struct {
	OrderNo string `json:"order_no" binding:"required"`
}

// CreateOrder 创建订单，request_id 幂等
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, order)
}

// GetOrder 查询订单详情
// GET /api/v1/order/detail?order_no=xxx 或 ?request_id=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	orderNo := c.Query("order_no")
	requestID := c.Query("request_id")

	var (
		order *model.Order
		err   error
	)
	switch {
	case orderNo != "":
		order, err = h.svc.Orders.GetOrder(c.Request.Context(), orderNo)
	case requestID != "":
		// 客户端下单超时后按幂等键找回订单
		order, err = h.svc.Orders.GetOrderByRequestID(c.Request.Context(), requestID)
	default:
		response.ParamError(c, "order_no 或 request_id 不能为空")
		return
	}
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, order)
}

// ListOrders 查询用户订单列表
// GET /api/v1/order/list?account_id=xxx&page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		response.ParamError(c, "account_id 参数不能为空")
		return
	}
	page, pageSize := pagination(c)

	orders, total, err := h.svc.Orders.ListAccountOrders(c.Request.Context(), accountID, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pageResult(orders, total, page, pageSize))
}

// CancelOrder 取消订单
// POST /api/v1/order/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	var req orderNoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.svc.Orders.CancelOrder(c.Request.Context(), req.OrderNo); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "订单已取消"})
}

// PayOrder 支付订单：扣减硬币部分
// POST /api/v1/order/pay
func (h *Handler) PayOrder(c *gin.Context) {
	var req orderNoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Orders.PayOrder(c.Request.Context(), req.OrderNo)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, order)
}

// GatewayCallback 支付网关回调
// POST /api/v1/order/gateway/callback
func (h *Handler) GatewayCallback(c *gin.Context) {
	var req struct {
		OrderNo string `json:"order_no" binding:"required"`
		Status  string `json:"status" binding:"required,oneof=paid failed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	var (
		order *model.Order
		err   error
	)
	if req.Status == model.GatewayStatusPaid {
		order, err = h.svc.Orders.ConfirmGatewayPayment(c.Request.Context(), req.OrderNo)
	} else {
		order, err = h.svc.Orders.FailGatewayPayment(c.Request.Context(), req.OrderNo)
	}
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, order)
}

// FulfillOrder 订单履约，触发商户结算和返现
// POST /api/v1/order/fulfill
func (h *Handler) FulfillOrder(c *gin.Context) {
	var req orderNoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Orders.FulfillOrder(c.Request.Context(), req.OrderNo)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, order)
}

// RefundOrder 退款
// POST /api/v1/refund/execute
func (h *Handler) RefundOrder(c *gin.Context) {
	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Refunds.Refund(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
