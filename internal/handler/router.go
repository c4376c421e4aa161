package handler

import (
	"net/http"

	"monetcore/internal/config"
	"monetcore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// SetupRouter 配置路由
func SetupRouter(svcs *service.Services, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	h := NewHandler(svcs, cfg, log)

	api := r.Group("/api/v1")
	{
		// 渠道回调，靠签名鉴权
		webhooks := api.Group("/webhooks")
		{
			webhooks.GET("/vnpay", h.VNPayIPN)
			webhooks.POST("/vnpay", h.VNPayIPN)
			webhooks.POST("/momo", h.MoMoIPN)
		}

		api.GET("/catalog", h.GetCatalog)

		user := api.Group("", UserMiddleware())
		{
			user.GET("/wallet", h.GetWallet)
			user.GET("/wallet/entries", h.ListWalletEntries)
			user.GET("/vip", h.GetVip)

			user.POST("/intents", h.CreateIntent)
			user.GET("/transactions", h.ListTransactions)
			user.GET("/transactions/:no", h.GetTransaction)

			user.POST("/codes/redeem", h.RedeemCode)
			user.POST("/referral", h.BindReferral)

			affiliate := user.Group("/affiliate")
			{
				affiliate.GET("", h.GetAffiliate)
				affiliate.GET("/commissions", h.ListCommissions)
				affiliate.GET("/payouts", h.ListPayouts)
				affiliate.POST("/payouts", h.RequestPayout)
			}
		}
	}

	admin := r.Group("/admin/v1", AdminMiddleware(cfg.Admin.Token))
	{
		admin.POST("/transactions/:id/refund", h.RefundTransaction)
		admin.POST("/transactions", h.RecordInternal)

		admin.POST("/payouts/:id/approve", h.ApprovePayout)
		admin.POST("/payouts/:id/reject", h.RejectPayout)
		admin.POST("/payouts/:id/process", h.ProcessPayout)
		admin.POST("/payouts/:id/complete", h.CompletePayout)

		admin.POST("/code-batches", h.CreateCodeBatch)
		admin.GET("/code-batches/:id/codes", h.ListBatchCodes)
		admin.POST("/codes/:code/deactivate", h.DeactivateCode)

		admin.POST("/affiliates", h.CreateAffiliate)
		admin.PUT("/affiliates/:id/rate", h.UpdateAffiliateRate)
		admin.PUT("/affiliates/:id/active", h.SetAffiliateActive)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
