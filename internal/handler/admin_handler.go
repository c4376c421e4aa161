package handler

import (
	"monetcore/internal/service"
	"monetcore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RefundRequest 退款请求
type RefundRequest struct {
	Reason string `json:"reason" binding:"max=256"`
}

// RefundTransaction 退款，只支持 COMPLETED 交易
// POST /admin/v1/transactions/:id/refund
func (h *Handler) RefundTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.ledger.Refund(c.Request.Context(), id, req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, trans)
}

// RecordInternal 站内交易：奖励、调账、金币消费
// POST /admin/v1/transactions
func (h *Handler) RecordInternal(c *gin.Context) {
	var req service.InternalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.ledger.RecordInternal(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, trans)
}

// ============================================================
// 提现审核
// ============================================================

// RejectPayoutRequest 驳回原因
type RejectPayoutRequest struct {
	Reason string `json:"reason" binding:"required,max=256"`
}

// ApprovePayout POST /admin/v1/payouts/:id/approve
func (h *Handler) ApprovePayout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	payout, err := h.affiliate.ApprovePayout(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payout)
}

// RejectPayout POST /admin/v1/payouts/:id/reject
func (h *Handler) RejectPayout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req RejectPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	payout, err := h.affiliate.RejectPayout(c.Request.Context(), id, req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payout)
}

// ProcessPayout POST /admin/v1/payouts/:id/process
func (h *Handler) ProcessPayout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	payout, err := h.affiliate.StartProcessing(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payout)
}

// CompletePayout POST /admin/v1/payouts/:id/complete
func (h *Handler) CompletePayout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	payout, err := h.affiliate.CompletePayout(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, payout)
}

// ============================================================
// 兑换码
// ============================================================

// CreateCodeBatch 生成兑换码批次
// POST /admin/v1/code-batches
func (h *Handler) CreateCodeBatch(c *gin.Context) {
	var req service.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	batch, codes, err := h.redeem.GenerateBatch(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"batch": batch,
		"codes": codes,
	})
}

// ListBatchCodes GET /admin/v1/code-batches/:id/codes
func (h *Handler) ListBatchCodes(c *gin.Context) {
	codes, err := h.redeem.ListBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, codes)
}

// DeactivateCode POST /admin/v1/codes/:code/deactivate
func (h *Handler) DeactivateCode(c *gin.Context) {
	if err := h.redeem.Deactivate(c.Request.Context(), c.Param("code")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"code": c.Param("code"), "is_active": false})
}

// ============================================================
// 推广员
// ============================================================

// CreateAffiliateRequest 创建推广员
type CreateAffiliateRequest struct {
	UserID         int64           `json:"user_id" binding:"required,gt=0"`
	ReferralCode   string          `json:"referral_code" binding:"max=32"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

// CreateAffiliate POST /admin/v1/affiliates
func (h *Handler) CreateAffiliate(c *gin.Context) {
	var req CreateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	account, err := h.affiliate.CreateAffiliate(c.Request.Context(), req.UserID, req.ReferralCode, req.CommissionRate)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, account)
}

// UpdateRateRequest 修改佣金比例
type UpdateRateRequest struct {
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

// UpdateAffiliateRate PUT /admin/v1/affiliates/:id/rate
func (h *Handler) UpdateAffiliateRate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.affiliate.UpdateCommissionRate(c.Request.Context(), id, req.CommissionRate); err != nil {
		response.FromError(c, err)
		return
	}
	account, err := h.affiliate.GetAffiliate(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, account)
}

// SetAffiliateActiveRequest 启用/停用
type SetAffiliateActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetAffiliateActive PUT /admin/v1/affiliates/:id/active
func (h *Handler) SetAffiliateActive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SetAffiliateActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if err := h.affiliate.SetActive(c.Request.Context(), id, *req.Active); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "is_active": *req.Active})
}
