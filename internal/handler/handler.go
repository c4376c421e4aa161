package handler

import (
	"strconv"

	"monetcore/internal/config"
	"monetcore/internal/service"
	"monetcore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	wallet    *service.WalletService
	vip       *service.VipService
	ledger    *service.LedgerService
	redeem    *service.RedeemService
	affiliate *service.AffiliateService
	cfg       *config.Config
	log       zerolog.Logger
}

func NewHandler(svcs *service.Services, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		wallet:    svcs.Wallet,
		vip:       svcs.Vip,
		ledger:    svcs.Ledger,
		redeem:    svcs.Redeem,
		affiliate: svcs.Affiliate,
		cfg:       cfg,
		log:       log,
	}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
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
// 钱包 / VIP / 交易
// ============================================================

// GetWallet 查询金币余额
// GET /api/v1/wallet
func (h *Handler) GetWallet(c *gin.Context) {
	userID := currentUserID(c)
	balance, err := h.wallet.Balance(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"user_id":      userID,
		"gold_balance": balance,
	})
}

// ListWalletEntries 金币流水
// GET /api/v1/wallet/entries?page=1&page_size=20
func (h *Handler) ListWalletEntries(c *gin.Context) {
	page, pageSize := pageParams(c)
	entries, total, err := h.wallet.Entries(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pageResult(entries, total, page, pageSize))
}

// GetVip 查询 VIP 状态
// GET /api/v1/vip
func (h *Handler) GetVip(c *gin.Context) {
	status, err := h.vip.Status(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, status)
}

// GetCatalog 金币套餐和 VIP 套餐
// GET /api/v1/catalog
func (h *Handler) GetCatalog(c *gin.Context) {
	response.Success(c, gin.H{
		"gold_packages": h.cfg.Business.GoldPackages,
		"vip_plans":     h.cfg.Business.VipPlans,
	})
}

// CreateIntent 发起渠道支付，返回的 transaction_no 作为渠道订单号
// POST /api/v1/intents
func (h *Handler) CreateIntent(c *gin.Context) {
	var req service.IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	req.UserID = currentUserID(c)

	trans, err := h.ledger.CreateIntent(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, trans)
}

// ListTransactions 交易记录
// GET /api/v1/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, total, err := h.ledger.ListTransactions(c.Request.Context(), currentUserID(c), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pageResult(list, total, page, pageSize))
}

// GetTransaction 交易详情，只能查看自己的交易
// GET /api/v1/transactions/:no
func (h *Handler) GetTransaction(c *gin.Context) {
	trans, err := h.ledger.GetTransaction(c.Request.Context(), c.Param("no"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	if trans.UserID != currentUserID(c) {
		response.Error(c, response.CodeNotFound, "交易不存在")
		return
	}
	response.Success(c, trans)
}

// RedeemRequest 兑换码请求
type RedeemRequest struct {
	Code string `json:"code" binding:"required,max=32"`
}

// RedeemCode 兑换码兑换
// POST /api/v1/codes/redeem
func (h *Handler) RedeemCode(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	grant, err := h.redeem.Redeem(c.Request.Context(), req.Code, currentUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, grant)
}
