package handler

import (
	"monetcore/internal/service"
	"monetcore/pkg/response"

	"github.com/gin-gonic/gin"
)

// BindReferralRequest 绑定推广码
type BindReferralRequest struct {
	ReferralCode string `json:"referral_code" binding:"required,max=32"`
}

// BindReferral 用户绑定推广码
// POST /api/v1/referral
func (h *Handler) BindReferral(c *gin.Context) {
	var req BindReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	referral, err := h.affiliate.RegisterReferral(c.Request.Context(), currentUserID(c), req.ReferralCode)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, referral)
}

// GetAffiliate 推广员概览
// GET /api/v1/affiliate
func (h *Handler) GetAffiliate(c *gin.Context) {
	summary, err := h.affiliate.Summary(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, summary)
}

// ListCommissions 佣金明细
// GET /api/v1/affiliate/commissions
func (h *Handler) ListCommissions(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, total, err := h.affiliate.ListCommissions(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pageResult(list, total, page, pageSize))
}

// ListPayouts 提现记录
// GET /api/v1/affiliate/payouts?status=PENDING
func (h *Handler) ListPayouts(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, total, err := h.affiliate.ListPayouts(c.Request.Context(), currentUserID(c), c.Query("status"), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pageResult(list, total, page, pageSize))
}

// RequestPayout 申请提现
// POST /api/v1/affiliate/payouts
func (h *Handler) RequestPayout(c *gin.Context) {
	var req service.PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	payout, err := h.affiliate.RequestPayout(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payout)
}
