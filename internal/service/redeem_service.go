package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"monetcore/internal/apperr"
	"monetcore/internal/metrics"
	"monetcore/internal/model"
	"monetcore/internal/repository"
	"monetcore/pkg/idgen"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Limiter 兑换频率限制
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type RedeemService struct {
	db       *gorm.DB
	codeRepo *repository.CodeRepository
	txRepo   *repository.TransactionRepository
	wallet   *WalletService
	vip      *VipService
	limiter  Limiter
	timeout  time.Duration
	log      zerolog.Logger
	m        *metrics.Metrics
	now      func() time.Time
}

func NewRedeemService(db *gorm.DB, wallet *WalletService, vip *VipService, limiter Limiter, timeout time.Duration, log zerolog.Logger) *RedeemService {
	return &RedeemService{
		db:       db,
		codeRepo: repository.NewCodeRepository(db),
		txRepo:   repository.NewTransactionRepository(db),
		wallet:   wallet,
		vip:      vip,
		limiter:  limiter,
		timeout:  timeout,
		log:      log,
		m:        metrics.Get(),
		now:      time.Now,
	}
}

// RewardGrant 兑换结果
type RewardGrant struct {
	Code          string     `json:"code"`
	RewardType    string     `json:"reward_type"`
	RewardValue   int64      `json:"reward_value"`
	VipTier       string     `json:"vip_tier,omitempty"`
	TransactionNo string     `json:"transaction_no"`
	GoldBalance   *int64     `json:"gold_balance,omitempty"`
	VipExpiresAt  *time.Time `json:"vip_expires_at,omitempty"`
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// checkUsable 兑换前的校验顺序：不存在 → 停用 → 过期 → 已用完
func checkUsable(ec *model.ExchangeCode, now time.Time) error {
	switch {
	case ec == nil:
		return apperr.ErrCodeNotFound
	case !ec.IsActive:
		return apperr.ErrCodeInactive
	case ec.ExpiredAt(now):
		return apperr.ErrCodeExpired
	case ec.Exhausted():
		return apperr.ErrCodeExhausted
	}
	return nil
}

// Redeem 兑换码兑换。
// used_count 条件自增与兑换记录插入在同一事务，任何一步失败整体回滚，奖励只在两步都成功后发放
func (s *RedeemService) Redeem(ctx context.Context, code string, userID int64) (grant *RewardGrant, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = strings.ToLower(string(apperr.KindOf(err)))
		}
		s.m.RedeemTotal.WithLabelValues(result).Inc()
	}()

	code = normalizeCode(code)
	if code == "" || userID <= 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "兑换码和用户不能为空")
	}

	if s.limiter != nil {
		allowed, lerr := s.limiter.Allow(ctx, strconv.FormatInt(userID, 10))
		if lerr != nil {
			// Redis 故障时放行，限流不影响兑换正确性
			s.log.Warn().Err(lerr).Int64("user_id", userID).Msg("兑换限流检查失败")
		} else if !allowed {
			return nil, apperr.ErrRateLimited
		}
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	ec, err := s.codeRepo.GetByCode(ctx, nil, code)
	if err != nil {
		return nil, apperr.Infra(err, "查询兑换码失败")
	}
	if err := checkUsable(ec, now); err != nil {
		return nil, err
	}
	redeemed, err := s.codeRepo.HasRedemption(ctx, code, userID)
	if err != nil {
		return nil, apperr.Infra(err, "查询兑换记录失败")
	}
	if redeemed {
		return nil, apperr.ErrAlreadyRedeemed
	}

	grant = &RewardGrant{
		Code:        code,
		RewardType:  ec.RewardType,
		RewardValue: ec.RewardValue,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.codeRepo.IncrementUsage(ctx, tx, code, now)
		if err != nil {
			return apperr.Infra(err, "更新兑换码次数失败")
		}
		if !ok {
			// 条件未命中：重新读取判断具体原因，通常是被并发请求用完
			latest, err := s.codeRepo.GetByCode(ctx, tx, code)
			if err != nil {
				return apperr.Infra(err, "查询兑换码失败")
			}
			if err := checkUsable(latest, now); err != nil {
				return err
			}
			return apperr.ErrCodeExhausted
		}

		trans, err := s.grantTransaction(ctx, tx, ec, userID, now)
		if err != nil {
			return err
		}
		grant.TransactionNo = trans.TransactionNo

		created, err := s.codeRepo.CreateRedemption(ctx, tx, &model.CodeRedemption{
			Code:          code,
			UserID:        userID,
			TransactionID: trans.ID,
		})
		if err != nil {
			return apperr.Infra(err, "写入兑换记录失败")
		}
		if !created {
			return apperr.ErrAlreadyRedeemed
		}

		return s.grantReward(ctx, tx, ec, userID, trans.ID, grant)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("code", code).
		Int64("user_id", userID).
		Str("reward_type", ec.RewardType).
		Int64("reward_value", ec.RewardValue).
		Msg("兑换码兑换成功")
	return grant, nil
}

// grantTransaction 每次兑换对应一笔 COMPLETED 的 REDEEM_CODE 交易，金币流水挂在这笔交易上
func (s *RedeemService) grantTransaction(ctx context.Context, tx *gorm.DB, ec *model.ExchangeCode, userID int64, now time.Time) (*model.Transaction, error) {
	key := fmt.Sprintf("redeem:%s:%d", ec.Code, userID)
	trans := &model.Transaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        userID,
		Kind:          model.KindRedeemCode,
		Provider:      model.ProviderInternal,
		ProviderTxID:  &key,
		Status:        model.TxStatusCompleted,
		Remark:        ec.Code,
		ProcessedAt:   &now,
	}
	switch ec.RewardType {
	case model.RewardTypeGold:
		trans.GoldAmount = ec.RewardValue
	case model.RewardTypeVipDays:
		days, tier := int(ec.RewardValue), vipTierOf(ec)
		trans.VipDays = &days
		trans.VipTier = &tier
	}

	created, err := s.txRepo.CreateIfAbsent(ctx, tx, trans)
	if err != nil {
		return nil, apperr.Infra(err, "创建兑换交易失败")
	}
	if !created {
		return nil, apperr.ErrAlreadyRedeemed
	}
	return trans, nil
}

func (s *RedeemService) grantReward(ctx context.Context, tx *gorm.DB, ec *model.ExchangeCode, userID, transactionID int64, grant *RewardGrant) error {
	switch ec.RewardType {
	case model.RewardTypeGold:
		balance, err := s.wallet.Credit(ctx, tx, userID, ec.RewardValue, transactionID)
		if err != nil {
			return err
		}
		grant.GoldBalance = &balance
	case model.RewardTypeVipDays:
		tier := vipTierOf(ec)
		sub, err := s.vip.Extend(ctx, tx, userID, tier, int(ec.RewardValue))
		if err != nil {
			return err
		}
		grant.VipTier = tier
		grant.VipExpiresAt = sub.ExpiresAt
	default:
		return apperr.New(apperr.KindInvalidArgument, "未知的奖励类型: "+ec.RewardType)
	}
	return nil
}

// vipTierOf 未指定等级的 VIP 天数码默认发放 VIP_GOLD
func vipTierOf(ec *model.ExchangeCode) string {
	if ec.VipTier != "" {
		return ec.VipTier
	}
	return model.TierGold
}

// ============================================================
// 批次管理
// ============================================================

// BatchRequest 生成兑换码批次
type BatchRequest struct {
	Name        string     `json:"name" binding:"required,max=128"`
	RewardType  string     `json:"reward_type" binding:"required,oneof=GOLD VIP_DAYS"`
	RewardValue int64      `json:"reward_value" binding:"required,gt=0"`
	VipTier     string     `json:"vip_tier"`
	UsageLimit  int        `json:"usage_limit" binding:"required,gte=1"`
	Quantity    int        `json:"quantity" binding:"required,gte=1,lte=10000"`
	Prefix      string     `json:"prefix" binding:"max=8"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

const codeLength = 10

func (s *RedeemService) GenerateBatch(ctx context.Context, req *BatchRequest) (*model.CodeBatch, []string, error) {
	if req.RewardValue <= 0 || req.UsageLimit < 1 || req.Quantity < 1 {
		return nil, nil, apperr.ErrInvalidAmount
	}
	if req.RewardType != model.RewardTypeGold && req.RewardType != model.RewardTypeVipDays {
		return nil, nil, apperr.New(apperr.KindInvalidArgument, "未知的奖励类型: "+req.RewardType)
	}
	if req.VipTier != "" && !model.IsValidTier(req.VipTier) {
		return nil, nil, apperr.New(apperr.KindInvalidArgument, "未知的 VIP 等级: "+req.VipTier)
	}

	batch := &model.CodeBatch{
		ID:          uuid.NewString(),
		Name:        req.Name,
		RewardType:  req.RewardType,
		RewardValue: req.RewardValue,
		VipTier:     req.VipTier,
		UsageLimit:  req.UsageLimit,
		Quantity:    req.Quantity,
		ExpiresAt:   req.ExpiresAt,
	}

	prefix := normalizeCode(req.Prefix)
	seen := make(map[string]struct{}, req.Quantity)
	codes := make([]*model.ExchangeCode, 0, req.Quantity)
	plain := make([]string, 0, req.Quantity)
	for len(codes) < req.Quantity {
		code, err := idgen.GenerateCode(prefix, codeLength)
		if err != nil {
			return nil, nil, apperr.Infra(err, "生成兑换码失败")
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, &model.ExchangeCode{
			Code:        code,
			BatchID:     batch.ID,
			RewardType:  req.RewardType,
			RewardValue: req.RewardValue,
			VipTier:     req.VipTier,
			UsageLimit:  req.UsageLimit,
			IsActive:    true,
			ExpiresAt:   req.ExpiresAt,
		})
		plain = append(plain, code)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.codeRepo.CreateBatch(ctx, batch, codes); err != nil {
		return nil, nil, apperr.Infra(err, "保存兑换码批次失败")
	}
	s.log.Info().Str("batch_id", batch.ID).Int("quantity", req.Quantity).Str("reward_type", req.RewardType).Msg("生成兑换码批次")
	return batch, plain, nil
}

func (s *RedeemService) Deactivate(ctx context.Context, code string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.codeRepo.Deactivate(ctx, normalizeCode(code))
	if err != nil {
		return apperr.Infra(err, "停用兑换码失败")
	}
	if !ok {
		// 已停用的码 UPDATE 不产生变化，确认存在即可
		_, err := s.GetCode(ctx, code)
		return err
	}
	return nil
}

func (s *RedeemService) GetCode(ctx context.Context, code string) (*model.ExchangeCode, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	ec, err := s.codeRepo.GetByCode(ctx, nil, normalizeCode(code))
	if err != nil {
		return nil, apperr.Infra(err, "查询兑换码失败")
	}
	if ec == nil {
		return nil, apperr.ErrCodeNotFound
	}
	return ec, nil
}

func (s *RedeemService) ListBatch(ctx context.Context, batchID string) ([]*model.ExchangeCode, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	codes, err := s.codeRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, apperr.Infra(err, "查询批次兑换码失败")
	}
	return codes, nil
}
