package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"monetcore/internal/apperr"
	"monetcore/internal/config"
	"monetcore/internal/metrics"
	"monetcore/internal/model"
	"monetcore/internal/repository"
	"monetcore/pkg/idgen"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AffiliateService struct {
	db            *gorm.DB
	cfg           *config.Config
	affiliateRepo *repository.AffiliateRepository
	payoutRepo    *repository.PayoutRepository
	txRepo        *repository.TransactionRepository
	log           zerolog.Logger
	m             *metrics.Metrics
	now           func() time.Time
}

func NewAffiliateService(db *gorm.DB, cfg *config.Config, log zerolog.Logger) *AffiliateService {
	return &AffiliateService{
		db:            db,
		cfg:           cfg,
		affiliateRepo: repository.NewAffiliateRepository(db),
		payoutRepo:    repository.NewPayoutRepository(db),
		txRepo:        repository.NewTransactionRepository(db),
		log:           log,
		m:             metrics.Get(),
		now:           time.Now,
	}
}

// commissionEligible 只有充值金币和购买 VIP 计提佣金
func commissionEligible(kind string) bool {
	return kind == model.KindBuyGold || kind == model.KindPurchaseVip
}

// CommissionFor 佣金向下取整到整数货币单位
func CommissionFor(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Floor().IntPart()
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(decimal.NewFromInt(1))
}

// ============================================================
// 推广员管理
// ============================================================

// CreateAffiliate referralCode 为空时自动生成
func (s *AffiliateService) CreateAffiliate(ctx context.Context, userID int64, referralCode string, rate decimal.Decimal) (*model.AffiliateAccount, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	if userID <= 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "缺少用户ID")
	}
	if !validRate(rate) {
		return nil, apperr.New(apperr.KindInvalidArgument, "佣金比例必须在 0-1 之间")
	}
	existing, err := s.affiliateRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Infra(err, "查询推广员失败")
	}
	if existing != nil {
		return existing, nil
	}

	referralCode = normalizeCode(referralCode)
	if referralCode == "" {
		if referralCode, err = idgen.GenerateCode("CTV", 6); err != nil {
			return nil, apperr.Infra(err, "生成推广码失败")
		}
	}
	account := &model.AffiliateAccount{
		UserID:         userID,
		ReferralCode:   referralCode,
		CommissionRate: rate,
		IsActive:       true,
	}
	if err := s.affiliateRepo.Create(ctx, account); err != nil {
		return nil, apperr.Infra(err, "创建推广员失败")
	}
	s.log.Info().Int64("affiliate_id", account.ID).Int64("user_id", userID).Str("referral_code", referralCode).Msg("创建推广员")
	return account, nil
}

// UpdateCommissionRate 已计提的佣金不受影响
func (s *AffiliateService) UpdateCommissionRate(ctx context.Context, affiliateID int64, rate decimal.Decimal) error {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	if !validRate(rate) {
		return apperr.New(apperr.KindInvalidArgument, "佣金比例必须在 0-1 之间")
	}
	if _, err := s.affiliateRepo.UpdateCommissionRate(ctx, affiliateID, rate); err != nil {
		return apperr.Infra(err, "更新佣金比例失败")
	}
	_, err := s.mustGet(ctx, affiliateID)
	return err
}

func (s *AffiliateService) SetActive(ctx context.Context, affiliateID int64, active bool) error {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	if _, err := s.affiliateRepo.SetActive(ctx, affiliateID, active); err != nil {
		return apperr.Infra(err, "更新推广员状态失败")
	}
	_, err := s.mustGet(ctx, affiliateID)
	return err
}

func (s *AffiliateService) mustGet(ctx context.Context, affiliateID int64) (*model.AffiliateAccount, error) {
	account, err := s.affiliateRepo.GetByID(ctx, nil, affiliateID)
	if err != nil {
		return nil, apperr.Infra(err, "查询推广员失败")
	}
	if account == nil {
		return nil, apperr.New(apperr.KindNotFound, "推广员不存在")
	}
	return account, nil
}

// RegisterReferral 用户绑定推广码，每个用户只能绑定一次，不能绑定自己
func (s *AffiliateService) RegisterReferral(ctx context.Context, userID int64, referralCode string) (*model.UserReferral, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	account, err := s.affiliateRepo.GetByReferralCode(ctx, normalizeCode(referralCode))
	if err != nil {
		return nil, apperr.Infra(err, "查询推广码失败")
	}
	if account == nil || !account.IsActive {
		return nil, apperr.New(apperr.KindNotFound, "推广码不存在或已停用")
	}
	if account.UserID == userID {
		return nil, apperr.New(apperr.KindInvalidArgument, "不能绑定自己的推广码")
	}

	referral := &model.UserReferral{
		UserID:       userID,
		AffiliateID:  account.ID,
		ReferralCode: account.ReferralCode,
	}
	created, err := s.affiliateRepo.CreateReferral(ctx, referral)
	if err != nil {
		return nil, apperr.Infra(err, "绑定推广码失败")
	}
	if !created {
		return nil, apperr.New(apperr.KindInvalidArgument, "已绑定过推广码")
	}
	return referral, nil
}

// ============================================================
// 佣金计提
// ============================================================

// OnTransactionCompleted 被推荐用户的 BUY_GOLD / PURCHASE_VIP 完成后计提佣金。
// 以 transaction_id 唯一约束去重，重复投递不会重复入账
func (s *AffiliateService) OnTransactionCompleted(ctx context.Context, trans *model.Transaction) error {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	if trans.Status != model.TxStatusCompleted || !commissionEligible(trans.Kind) || trans.AmountMoney <= 0 {
		return nil
	}

	referral, err := s.affiliateRepo.GetReferralByUserID(ctx, nil, trans.UserID)
	if err != nil {
		return apperr.Infra(err, "查询推荐关系失败")
	}
	if referral == nil {
		return nil
	}
	account, err := s.affiliateRepo.GetByID(ctx, nil, referral.AffiliateID)
	if err != nil {
		return apperr.Infra(err, "查询推广员失败")
	}
	if account == nil || !account.IsActive {
		return nil
	}

	amount := CommissionFor(trans.AmountMoney, account.CommissionRate)
	commission := &model.AffiliateCommission{
		AffiliateID:      account.ID,
		UserID:           trans.UserID,
		TransactionID:    trans.ID,
		Amount:           trans.AmountMoney,
		CommissionRate:   account.CommissionRate,
		CommissionAmount: amount,
	}

	accrued := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.affiliateRepo.CreateCommission(ctx, tx, commission)
		if err != nil {
			return apperr.Infra(err, "写入佣金记录失败")
		}
		if !created {
			return nil
		}
		if amount > 0 {
			if err := s.affiliateRepo.AddEarnings(ctx, tx, account.ID, amount); err != nil {
				return apperr.Infra(err, "佣金入账失败")
			}
		}
		accrued = true
		return nil
	})
	if err != nil {
		return err
	}

	if accrued {
		s.m.CommissionTotal.Inc()
		s.m.CommissionAmount.Add(float64(amount))
		s.log.Info().
			Int64("affiliate_id", account.ID).
			Str("transaction_no", trans.TransactionNo).
			Int64("amount", trans.AmountMoney).
			Str("rate", account.CommissionRate.String()).
			Int64("commission", amount).
			Msg("佣金计提")
	}
	return nil
}

// HandleEvent 消费 Kafka 交易事件，以数据库中的交易为准
func (s *AffiliateService) HandleEvent(ctx context.Context, payload []byte) error {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	var event model.TransactionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		// 格式错误的消息重试也无法成功，丢弃
		s.log.Error().Err(err).Msg("无法解析交易事件")
		return nil
	}
	if event.Event != model.EventTransactionCompleted || !commissionEligible(event.Kind) {
		return nil
	}

	trans, err := s.txRepo.GetByID(ctx, nil, event.TransactionID)
	if err != nil {
		return apperr.Infra(err, "查询交易失败")
	}
	if trans == nil {
		s.log.Warn().Int64("transaction_id", event.TransactionID).Msg("事件对应的交易不存在")
		return nil
	}
	// 已退款的交易仍按完成时计提
	if trans.Status == model.TxStatusRefunded {
		trans.Status = model.TxStatusCompleted
	}
	return s.OnTransactionCompleted(ctx, trans)
}

// ============================================================
// 提现
// ============================================================

// PayoutRequest 提现申请
type PayoutRequest struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	BankName    string `json:"bankName" binding:"required,max=128"`
	BankAccount string `json:"bankAccount" binding:"required,max=64"`
}

// RequestPayout 申请时立即预扣 pending_payout，并发申请不会超额
func (s *AffiliateService) RequestPayout(ctx context.Context, userID int64, req *PayoutRequest) (*model.Payout, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	if req.Amount <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	if req.Amount < s.cfg.Business.MinPayout {
		return nil, apperr.ErrBelowMinimumPayout
	}
	account, err := s.affiliateRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Infra(err, "查询推广员失败")
	}
	if account == nil {
		return nil, apperr.New(apperr.KindNotFound, "推广员不存在")
	}

	payout := &model.Payout{
		PayoutNo:    idgen.GeneratePayoutNo(),
		AffiliateID: account.ID,
		Amount:      req.Amount,
		Status:      model.PayoutStatusPending,
		BankName:    req.BankName,
		BankAccount: req.BankAccount,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.affiliateRepo.ReservePayout(ctx, tx, account.ID, req.Amount); err != nil {
			if errors.Is(err, repository.ErrPendingNotEnough) {
				return apperr.ErrInsufficientPendingBalance
			}
			return apperr.Infra(err, "预扣提现金额失败")
		}
		if err := s.payoutRepo.Create(ctx, tx, payout); err != nil {
			return apperr.Infra(err, "创建提现单失败")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.m.PayoutTotal.WithLabelValues(model.PayoutStatusPending).Inc()
	s.log.Info().Str("payout_no", payout.PayoutNo).Int64("affiliate_id", account.ID).Int64("amount", req.Amount).Msg("提现申请")
	return payout, nil
}

func (s *AffiliateService) ApprovePayout(ctx context.Context, payoutID int64) (*model.Payout, error) {
	return s.transitPayout(ctx, payoutID, model.PayoutStatusApproved, nil, nil)
}

func (s *AffiliateService) StartProcessing(ctx context.Context, payoutID int64) (*model.Payout, error) {
	return s.transitPayout(ctx, payoutID, model.PayoutStatusProcessing, nil, nil)
}

// RejectPayout 驳回并退回预扣金额
func (s *AffiliateService) RejectPayout(ctx context.Context, payoutID int64, reason string) (*model.Payout, error) {
	extra := map[string]interface{}{"reject_reason": reason}
	return s.transitPayout(ctx, payoutID, model.PayoutStatusRejected, extra, func(ctx context.Context, tx *gorm.DB, p *model.Payout) error {
		if err := s.affiliateRepo.RestorePayout(ctx, tx, p.AffiliateID, p.Amount); err != nil {
			return apperr.Infra(err, "退回提现金额失败")
		}
		return nil
	})
}

// CompletePayout 打款完成，累计 total_paid 并记一笔 CTV_COMMISSION 交易备查
func (s *AffiliateService) CompletePayout(ctx context.Context, payoutID int64) (*model.Payout, error) {
	return s.transitPayout(ctx, payoutID, model.PayoutStatusCompleted, nil, func(ctx context.Context, tx *gorm.DB, p *model.Payout) error {
		account, err := s.affiliateRepo.GetByID(ctx, tx, p.AffiliateID)
		if err != nil {
			return apperr.Infra(err, "查询推广员失败")
		}
		if account == nil {
			return apperr.New(apperr.KindNotFound, "推广员不存在")
		}
		if err := s.affiliateRepo.AddPaid(ctx, tx, p.AffiliateID, p.Amount); err != nil {
			return apperr.Infra(err, "累计已提现金额失败")
		}

		now := s.now()
		payoutNo := p.PayoutNo
		err = s.txRepo.Create(ctx, tx, &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        account.UserID,
			Kind:          model.KindCtvCommission,
			AmountMoney:   p.Amount,
			Provider:      model.ProviderBankTransfer,
			ProviderTxID:  &payoutNo,
			Status:        model.TxStatusCompleted,
			Remark:        p.BankName,
			ProcessedAt:   &now,
		})
		if err != nil {
			return apperr.Infra(err, "记录提现交易失败")
		}
		return nil
	})
}

// transitPayout 条件更新状态并在同一事务执行附带动作；已处于目标状态时直接返回
func (s *AffiliateService) transitPayout(ctx context.Context, payoutID int64, target string, extra map[string]interface{}, effect func(context.Context, *gorm.DB, *model.Payout) error) (*model.Payout, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	payout, err := s.getPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == target {
		return payout, nil
	}
	if !model.CanPayoutTransitionTo(payout.Status, target) {
		return nil, apperr.New(apperr.KindInvalidStateTransition, "提现单状态 "+payout.Status+" 不能变更为 "+target)
	}

	now := s.now()
	updates := map[string]interface{}{"processed_at": now}
	for k, v := range extra {
		updates[k] = v
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.payoutRepo.UpdateStatus(ctx, tx, payout.ID, payout.Status, target, updates); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return apperr.New(apperr.KindInvalidStateTransition, "提现单状态已被修改")
			}
			return apperr.Infra(err, "更新提现单状态失败")
		}
		if effect != nil {
			return effect(ctx, tx, payout)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.m.PayoutTotal.WithLabelValues(target).Inc()
	s.log.Info().Str("payout_no", payout.PayoutNo).Str("from", payout.Status).Str("to", target).Msg("提现单状态变更")
	return s.getPayout(ctx, payoutID)
}

func (s *AffiliateService) getPayout(ctx context.Context, payoutID int64) (*model.Payout, error) {
	payout, err := s.payoutRepo.GetByID(ctx, nil, payoutID)
	if err != nil {
		return nil, apperr.Infra(err, "查询提现单失败")
	}
	if payout == nil {
		return nil, apperr.New(apperr.KindNotFound, "提现单不存在")
	}
	return payout, nil
}

// ============================================================
// 查询
// ============================================================

// AffiliateSummary 推广员概览
type AffiliateSummary struct {
	Account        *model.AffiliateAccount `json:"account"`
	CommissionRate string                  `json:"commission_rate"`
	Available      int64                   `json:"available"`
}

func (s *AffiliateService) Summary(ctx context.Context, userID int64) (*AffiliateSummary, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	account, err := s.affiliateRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Infra(err, "查询推广员失败")
	}
	if account == nil {
		return nil, apperr.New(apperr.KindNotFound, "推广员不存在")
	}
	return &AffiliateSummary{
		Account:        account,
		CommissionRate: account.CommissionRate.String(),
		Available:      account.PendingPayout,
	}, nil
}

func (s *AffiliateService) GetAffiliate(ctx context.Context, affiliateID int64) (*model.AffiliateAccount, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()
	return s.mustGet(ctx, affiliateID)
}

func (s *AffiliateService) ListPayouts(ctx context.Context, userID int64, status string, page, pageSize int) ([]*model.Payout, int64, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	account, err := s.affiliateRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, 0, apperr.Infra(err, "查询推广员失败")
	}
	if account == nil {
		return nil, 0, apperr.New(apperr.KindNotFound, "推广员不存在")
	}
	list, total, err := s.payoutRepo.ListByAffiliate(ctx, account.ID, status, page, pageSize)
	if err != nil {
		return nil, 0, apperr.Infra(err, "查询提现记录失败")
	}
	return list, total, nil
}

func (s *AffiliateService) ListCommissions(ctx context.Context, userID int64, page, pageSize int) ([]*model.AffiliateCommission, int64, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	account, err := s.affiliateRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, 0, apperr.Infra(err, "查询推广员失败")
	}
	if account == nil {
		return nil, 0, apperr.New(apperr.KindNotFound, "推广员不存在")
	}
	list, total, err := s.affiliateRepo.ListCommissions(ctx, account.ID, page, pageSize)
	if err != nil {
		return nil, 0, apperr.Infra(err, "查询佣金记录失败")
	}
	return list, total, nil
}
