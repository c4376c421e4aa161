package service

import (
	"context"
	"time"

	"monetcore/internal/config"
	"monetcore/internal/infrastructure/cache"
	"monetcore/internal/logger"
	"monetcore/internal/provider"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Services 进程内共享的服务实例
type Services struct {
	Wallet    *WalletService
	Vip       *VipService
	Ledger    *LedgerService
	Redeem    *RedeemService
	Affiliate *AffiliateService
}

// New 组装全部服务；rdb 为 nil 时兑换码不限流
func New(db *gorm.DB, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *Services {
	wallet := NewWalletService(db, cfg.Business.StoreTimeout, logger.Component(log, "wallet"))
	vip := NewVipService(db, cfg.Business.StoreTimeout)
	ledger := NewLedgerService(db, cfg, provider.NewRegistry(&cfg.Providers), wallet, vip, logger.Component(log, "ledger"))
	affiliate := NewAffiliateService(db, cfg, logger.Component(log, "affiliate"))
	ledger.AddListener(affiliate)

	var limiter Limiter
	if rdb != nil && cfg.Business.RedeemRateLimit > 0 {
		limiter = cache.NewRateLimiter(rdb, "redeem", cfg.Business.RedeemRateLimit, time.Minute)
	}
	redeem := NewRedeemService(db, wallet, vip, limiter, cfg.Business.StoreTimeout, logger.Component(log, "redeem"))

	return &Services{
		Wallet:    wallet,
		Vip:       vip,
		Ledger:    ledger,
		Redeem:    redeem,
		Affiliate: affiliate,
	}
}

// withTimeout 存储访问统一加超时，超时后以基础设施错误返回
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
