package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"monetcore/internal/apperr"
	"monetcore/internal/config"
	"monetcore/internal/metrics"
	"monetcore/internal/model"
	"monetcore/internal/provider"
	"monetcore/internal/repository"
	"monetcore/pkg/idgen"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// CompletionListener 交易提交为 COMPLETED 之后回调，实现方必须幂等
type CompletionListener interface {
	OnTransactionCompleted(ctx context.Context, trans *model.Transaction) error
}

type LedgerService struct {
	db         *gorm.DB
	cfg        *config.Config
	log        zerolog.Logger
	m          *metrics.Metrics
	providers  *provider.Registry
	wallet     *WalletService
	vip        *VipService
	txRepo     *repository.TransactionRepository
	walletRepo *repository.WalletRepository
	outboxRepo *repository.OutboxRepository
	listeners  []CompletionListener
	now        func() time.Time
}

func NewLedgerService(db *gorm.DB, cfg *config.Config, providers *provider.Registry, wallet *WalletService, vip *VipService, log zerolog.Logger) *LedgerService {
	return &LedgerService{
		db:         db,
		cfg:        cfg,
		log:        log,
		m:          metrics.Get(),
		providers:  providers,
		wallet:     wallet,
		vip:        vip,
		txRepo:     repository.NewTransactionRepository(db),
		walletRepo: repository.NewWalletRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		now:        time.Now,
	}
}

func (s *LedgerService) AddListener(l CompletionListener) {
	s.listeners = append(s.listeners, l)
}

// ============================================================
// 下单
// ============================================================

// IntentRequest 用户发起的渠道支付
type IntentRequest struct {
	UserID    int64  `json:"user_id"`
	Kind      string `json:"kind" binding:"required,oneof=BUY_GOLD PURCHASE_VIP"`
	Provider  string `json:"provider" binding:"required,oneof=VNPAY MOMO"`
	PackageID string `json:"package_id" binding:"required"`
}

// CreateIntent 创建 PENDING 交易，交易号作为渠道侧订单号
func (s *LedgerService) CreateIntent(ctx context.Context, req *IntentRequest) (*model.Transaction, error) {
	if req.UserID <= 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "缺少用户ID")
	}
	if _, err := s.providers.Get(req.Provider); err != nil {
		return nil, err
	}

	transactionNo := idgen.GenerateTransactionNo()
	trans := &model.Transaction{
		TransactionNo: transactionNo,
		UserID:        req.UserID,
		Kind:          req.Kind,
		Provider:      req.Provider,
		ProviderTxID:  &transactionNo,
		Status:        model.TxStatusPending,
	}

	switch req.Kind {
	case model.KindBuyGold:
		pkg, ok := s.cfg.Business.GoldPackage(req.PackageID)
		if !ok {
			return nil, apperr.New(apperr.KindNotFound, "金币套餐不存在: "+req.PackageID)
		}
		trans.AmountMoney = pkg.AmountMoney
		trans.GoldAmount = pkg.Gold
		trans.Remark = pkg.ID
	case model.KindPurchaseVip:
		plan, ok := s.cfg.Business.VipPlan(req.PackageID)
		if !ok {
			return nil, apperr.New(apperr.KindNotFound, "VIP 套餐不存在: "+req.PackageID)
		}
		trans.AmountMoney = plan.AmountMoney
		trans.VipDays = &plan.Days
		trans.VipTier = &plan.Tier
		trans.Remark = plan.ID
	default:
		return nil, apperr.New(apperr.KindInvalidArgument, "不支持的交易类型: "+req.Kind)
	}

	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()
	if err := s.txRepo.Create(ctx, nil, trans); err != nil {
		return nil, apperr.Infra(err, "创建交易失败")
	}

	s.log.Info().
		Str("transaction_no", transactionNo).
		Int64("user_id", req.UserID).
		Str("kind", req.Kind).
		Str("provider", req.Provider).
		Int64("amount", trans.AmountMoney).
		Msg("创建支付意图")
	return trans, nil
}

// ============================================================
// 渠道回调
// ============================================================

// Ingest 处理渠道回调。
// 验签失败直接返回，不落任何数据；已终结的交易原样返回；
// 基础设施错误时交易保持 PENDING，渠道重试或补偿任务会再次结算
func (s *LedgerService) Ingest(ctx context.Context, providerName string, params map[string]string) (*model.Transaction, error) {
	n, err := s.providers.VerifyAndParse(providerName, params)
	if err != nil {
		s.m.IngestTotal.WithLabelValues(providerName, "rejected").Inc()
		s.log.Warn().Err(err).Str("provider", providerName).Msg("回调校验失败")
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	trans, err := s.txRepo.GetByProviderTx(ctx, nil, n.Provider, n.ProviderTxID)
	if err != nil {
		return nil, s.ingestError(n, apperr.Infra(err, "查询交易失败"))
	}
	if trans == nil {
		trans, err = s.createFromNotification(ctx, n)
		if err != nil {
			return nil, s.ingestError(n, err)
		}
	}
	if trans.Status != model.TxStatusPending {
		return s.replay(ctx, trans, n)
	}

	now := s.now()
	if err := s.txRepo.RecordNotification(ctx, nil, trans.ID, n.ResultCode, n.ExternalRef, n.Payload, now); err != nil {
		return nil, s.ingestError(n, apperr.Infra(err, "记录回调失败"))
	}
	trans.ResultCode = n.ResultCode
	trans.NotifiedAt = &now

	result, err := s.settle(ctx, trans, n.Outcome, n.Amount)
	if err != nil {
		return nil, s.ingestError(n, err)
	}
	s.m.IngestTotal.WithLabelValues(n.Provider, resultLabel(result.Status)).Inc()
	return result, nil
}

// replay 已终结交易的重复回调原样返回。
// 过期关闭后才收到的支付成功需人工退款：保存回调并告警，只记录第一次
func (s *LedgerService) replay(ctx context.Context, trans *model.Transaction, n *provider.Notification) (*model.Transaction, error) {
	if trans.Status != model.TxStatusFailed || trans.FailReason != model.FailReasonExpired || n.Outcome != provider.OutcomeSuccess {
		s.m.IngestTotal.WithLabelValues(n.Provider, "replayed").Inc()
		return trans, nil
	}

	now := s.now()
	first, err := s.txRepo.RecordLateNotification(ctx, trans.ID, n.ResultCode, n.ExternalRef, n.Payload, now)
	if err != nil {
		return nil, s.ingestError(n, apperr.Infra(err, "记录回调失败"))
	}
	if !first {
		s.m.IngestTotal.WithLabelValues(n.Provider, "replayed").Inc()
		return trans, nil
	}

	s.m.IngestTotal.WithLabelValues(n.Provider, "paid_after_expiry").Inc()
	s.log.Error().
		Str("transaction_no", trans.TransactionNo).
		Str("provider", n.Provider).
		Str("provider_tx_id", n.ProviderTxID).
		Str("external_ref", n.ExternalRef).
		Int64("user_id", trans.UserID).
		Int64("amount", n.Amount).
		Msg("交易已过期关闭但渠道回调支付成功，需人工退款")
	return s.reload(ctx, trans.ID)
}

func (s *LedgerService) ingestError(n *provider.Notification, err error) error {
	s.m.IngestTotal.WithLabelValues(n.Provider, "error").Inc()
	s.log.Error().Err(err).
		Str("provider", n.Provider).
		Str("provider_tx_id", n.ProviderTxID).
		Msg("处理回调失败，交易保持 PENDING")
	return err
}

// createFromNotification 没有预先创建 intent 的回调：
// 回调带下单信息时按其创建 PENDING；否则直接记为 FAILED/UNKNOWN_INTENT 用于去重
func (s *LedgerService) createFromNotification(ctx context.Context, n *provider.Notification) (*model.Transaction, error) {
	providerTxID := n.ProviderTxID
	trans := &model.Transaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		Provider:      n.Provider,
		ProviderTxID:  &providerTxID,
		AmountMoney:   n.Amount,
		Status:        model.TxStatusPending,
	}

	if n.Meta == nil {
		now := s.now()
		trans.Status = model.TxStatusFailed
		trans.FailReason = model.FailReasonUnknownIntent
		trans.ResultCode = n.ResultCode
		trans.ExternalRef = n.ExternalRef
		trans.NotifyPayload = n.Payload
		trans.NotifiedAt = &now
		trans.ProcessedAt = &now
		s.log.Warn().Str("provider", n.Provider).Str("provider_tx_id", n.ProviderTxID).Msg("回调找不到对应的支付意图")
	} else {
		trans.UserID = n.Meta.UserID
		trans.Kind = n.Meta.Kind
		trans.GoldAmount = n.Meta.Gold
		if n.Meta.VipDays > 0 {
			days, tier := n.Meta.VipDays, n.Meta.VipTier
			trans.VipDays = &days
			trans.VipTier = &tier
		}
	}

	if _, err := s.txRepo.CreateIfAbsent(ctx, nil, trans); err != nil {
		return nil, apperr.Infra(err, "创建交易失败")
	}
	// 并发回调时以先插入者为准
	existing, err := s.txRepo.GetByProviderTx(ctx, nil, n.Provider, n.ProviderTxID)
	if err != nil {
		return nil, apperr.Infra(err, "查询交易失败")
	}
	if existing == nil {
		return nil, apperr.Infra(errors.New("transaction vanished after insert"), "创建交易失败")
	}
	return existing, nil
}

// settle 按渠道结果推进 PENDING 交易
func (s *LedgerService) settle(ctx context.Context, trans *model.Transaction, outcome provider.Outcome, notifiedAmount int64) (*model.Transaction, error) {
	switch outcome {
	case provider.OutcomeSuccess:
		if trans.Provider != model.ProviderInternal && notifiedAmount != trans.AmountMoney {
			s.log.Warn().
				Str("transaction_no", trans.TransactionNo).
				Int64("expected", trans.AmountMoney).
				Int64("notified", notifiedAmount).
				Msg("回调金额与订单不符")
			return s.fail(ctx, trans, model.FailReasonAmountMismatch)
		}
		err := s.complete(ctx, trans)
		switch {
		case err == nil:
		case apperr.IsKind(err, apperr.KindInsufficientBalance):
			return s.fail(ctx, trans, model.FailReasonInsufficientBalance)
		case errors.Is(err, repository.ErrStatusConflict):
			// 其他请求已结算
		case apperr.IsKind(err, apperr.KindInfrastructure):
			return nil, err
		default:
			// 重试也无法成功，直接关闭，避免补偿任务反复处理
			s.log.Error().Err(err).
				Str("transaction_no", trans.TransactionNo).
				Str("kind", trans.Kind).
				Msg("交易内容无法结算")
			return s.fail(ctx, trans, model.FailReasonInvalidIntent)
		}
		return s.reload(ctx, trans.ID)
	case provider.OutcomeCancelled:
		return s.fail(ctx, trans, model.FailReasonUserCancelled)
	default:
		return s.fail(ctx, trans, model.FailReasonProviderError)
	}
}

// complete 状态流转、余额/VIP 变动、outbox 消息同一事务提交
func (s *LedgerService) complete(ctx context.Context, trans *model.Transaction) error {
	start := time.Now()
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.txRepo.UpdateStatus(ctx, tx, trans.ID, model.TxStatusPending, model.TxStatusCompleted, map[string]interface{}{
			"processed_at": now,
		})
		if err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return err
			}
			return apperr.Infra(err, "更新交易状态失败")
		}
		if err := s.applyEffects(ctx, tx, trans); err != nil {
			return err
		}
		trans.Status = model.TxStatusCompleted
		trans.ProcessedAt = &now
		return s.writeOutbox(ctx, tx, trans, model.EventTransactionCompleted)
	})
	if err != nil {
		trans.Status = model.TxStatusPending
		trans.ProcessedAt = nil
		return err
	}

	s.m.SettleDuration.WithLabelValues(trans.Kind).Observe(time.Since(start).Seconds())
	s.log.Info().
		Str("transaction_no", trans.TransactionNo).
		Int64("user_id", trans.UserID).
		Str("kind", trans.Kind).
		Int64("gold", trans.GoldAmount).
		Msg("交易完成")

	s.notifyCompleted(ctx, trans)
	return nil
}

// applyEffects 按交易类型修改余额 / VIP
func (s *LedgerService) applyEffects(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	switch trans.Kind {
	case model.KindBuyGold, model.KindCheckinReward, model.KindDailyTaskReward, model.KindAdReward:
		_, err := s.wallet.Credit(ctx, tx, trans.UserID, trans.GoldAmount, trans.ID)
		return err
	case model.KindUnlockEpisode, model.KindSpendGold:
		_, err := s.wallet.Debit(ctx, tx, trans.UserID, trans.GoldAmount, trans.ID)
		return err
	case model.KindPurchaseVip:
		// 站内用金币购买 VIP 需先扣金币
		if trans.Provider == model.ProviderInternal && trans.GoldAmount > 0 {
			if _, err := s.wallet.Debit(ctx, tx, trans.UserID, trans.GoldAmount, trans.ID); err != nil {
				return err
			}
		}
		_, err := s.vip.Extend(ctx, tx, trans.UserID, trans.VipTierValue(), trans.VipDaysValue())
		return err
	case model.KindAdminAdjust:
		if trans.GoldAmount > 0 {
			_, err := s.wallet.Credit(ctx, tx, trans.UserID, trans.GoldAmount, trans.ID)
			return err
		}
		_, err := s.wallet.Debit(ctx, tx, trans.UserID, -trans.GoldAmount, trans.ID)
		return err
	default:
		return apperr.New(apperr.KindInvalidArgument, "交易类型不支持自动结算: "+trans.Kind)
	}
}

func (s *LedgerService) fail(ctx context.Context, trans *model.Transaction, reason string) (*model.Transaction, error) {
	err := s.txRepo.UpdateStatus(ctx, nil, trans.ID, model.TxStatusPending, model.TxStatusFailed, map[string]interface{}{
		"fail_reason":  reason,
		"processed_at": s.now(),
	})
	if err != nil && !errors.Is(err, repository.ErrStatusConflict) {
		return nil, apperr.Infra(err, "更新交易状态失败")
	}
	if err == nil {
		s.log.Info().Str("transaction_no", trans.TransactionNo).Str("reason", reason).Msg("交易失败")
	}
	return s.reload(ctx, trans.ID)
}

func (s *LedgerService) reload(ctx context.Context, id int64) (*model.Transaction, error) {
	trans, err := s.txRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, apperr.Infra(err, "查询交易失败")
	}
	if trans == nil {
		return nil, apperr.ErrNotFound
	}
	return trans, nil
}

func (s *LedgerService) writeOutbox(ctx context.Context, tx *gorm.DB, trans *model.Transaction, event string) error {
	payload, err := json.Marshal(model.TransactionEvent{
		Event:         event,
		TransactionID: trans.ID,
		TransactionNo: trans.TransactionNo,
		UserID:        trans.UserID,
		Kind:          trans.Kind,
		Provider:      trans.Provider,
		AmountMoney:   trans.AmountMoney,
		GoldAmount:    trans.GoldAmount,
		VipDays:       trans.VipDaysValue(),
		Status:        trans.Status,
		OccurredAt:    s.now(),
	})
	if err != nil {
		return apperr.Infra(err, "序列化事件失败")
	}

	msg := &model.OutboxMessage{
		EventType:  event,
		MessageKey: trans.TransactionNo,
		Topic:      s.cfg.Kafka.Topic.TransactionCompleted,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return apperr.Infra(err, "写入 outbox 失败")
	}
	return nil
}

// notifyCompleted 进程内同步通知；失败只记录日志，Kafka 消费端会兜底
func (s *LedgerService) notifyCompleted(ctx context.Context, trans *model.Transaction) {
	for _, l := range s.listeners {
		if err := l.OnTransactionCompleted(ctx, trans); err != nil {
			s.log.Error().Err(err).Str("transaction_no", trans.TransactionNo).Msg("完成事件处理失败")
		}
	}
}

func resultLabel(status string) string {
	switch status {
	case model.TxStatusCompleted:
		return "completed"
	case model.TxStatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// ============================================================
// 站内交易
// ============================================================

// InternalRequest 奖励、消费、调账等站内交易，IdempotencyKey 由调用方保证唯一
type InternalRequest struct {
	UserID         int64  `json:"user_id" binding:"required,gt=0"`
	Kind           string `json:"kind" binding:"required"`
	GoldAmount     int64  `json:"gold_amount"`
	VipDays        int    `json:"vip_days"`
	VipTier        string `json:"vip_tier"`
	PlanID         string `json:"plan_id"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,max=128"`
	Remark         string `json:"remark" binding:"max=256"`
}

func (s *LedgerService) buildInternal(req *InternalRequest) (*model.Transaction, error) {
	key := req.IdempotencyKey
	trans := &model.Transaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        req.UserID,
		Kind:          req.Kind,
		GoldAmount:    req.GoldAmount,
		Provider:      model.ProviderInternal,
		ProviderTxID:  &key,
		Status:        model.TxStatusPending,
		Remark:        req.Remark,
	}

	switch req.Kind {
	case model.KindSpendGold, model.KindUnlockEpisode,
		model.KindCheckinReward, model.KindDailyTaskReward, model.KindAdReward:
		if req.GoldAmount <= 0 {
			return nil, apperr.ErrInvalidAmount
		}
	case model.KindAdminAdjust:
		if req.GoldAmount == 0 {
			return nil, apperr.ErrInvalidAmount
		}
	case model.KindPurchaseVip:
		days, tier, gold := req.VipDays, req.VipTier, req.GoldAmount
		if req.PlanID != "" {
			plan, ok := s.cfg.Business.VipPlan(req.PlanID)
			if !ok || plan.GoldPrice <= 0 {
				return nil, apperr.New(apperr.KindNotFound, "VIP 套餐不支持金币购买: "+req.PlanID)
			}
			days, tier, gold = plan.Days, plan.Tier, plan.GoldPrice
		}
		if days <= 0 || gold < 0 {
			return nil, apperr.ErrInvalidAmount
		}
		if !model.IsValidTier(tier) {
			return nil, apperr.New(apperr.KindInvalidArgument, "未知的 VIP 等级: "+tier)
		}
		trans.GoldAmount = gold
		trans.VipDays = &days
		trans.VipTier = &tier
	default:
		return nil, apperr.New(apperr.KindInvalidArgument, "不支持的站内交易类型: "+req.Kind)
	}
	return trans, nil
}

// RecordInternal 创建并立即结算站内交易，同一幂等键重复调用返回同一笔交易
func (s *LedgerService) RecordInternal(ctx context.Context, req *InternalRequest) (*model.Transaction, error) {
	if req.UserID <= 0 || req.IdempotencyKey == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "缺少用户ID或幂等键")
	}
	trans, err := s.buildInternal(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	now := s.now()
	trans.NotifiedAt = &now
	if _, err := s.txRepo.CreateIfAbsent(ctx, nil, trans); err != nil {
		return nil, apperr.Infra(err, "创建交易失败")
	}
	current, err := s.txRepo.GetByProviderTx(ctx, nil, model.ProviderInternal, req.IdempotencyKey)
	if err != nil {
		return nil, apperr.Infra(err, "查询交易失败")
	}
	if current == nil {
		return nil, apperr.Infra(errors.New("transaction vanished after insert"), "创建交易失败")
	}
	if current.UserID != req.UserID || current.Kind != req.Kind {
		return nil, apperr.New(apperr.KindInvalidArgument, "幂等键已被其他交易使用")
	}

	if current.Status == model.TxStatusPending {
		if current, err = s.settle(ctx, current, provider.OutcomeSuccess, current.AmountMoney); err != nil {
			return nil, err
		}
	}
	if current.Status == model.TxStatusFailed && current.FailReason == model.FailReasonInsufficientBalance {
		return current, apperr.ErrInsufficientBalance
	}
	return current, nil
}

// ============================================================
// 退款
// ============================================================

// Refund 撤销 COMPLETED 交易的效果：金币按原流水反向，VIP 扣回发放天数。
// 反向流水挂在一笔新的 REFUND 交易上；已退款的交易直接返回
func (s *LedgerService) Refund(ctx context.Context, transactionID int64, reason string) (*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()

	trans, err := s.reload(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !refundable(trans.Kind) {
		return nil, apperr.New(apperr.KindInvalidStateTransition, fmt.Sprintf("交易类型 %s 不允许退款", trans.Kind))
	}
	switch trans.Status {
	case model.TxStatusRefunded:
		return trans, nil
	case model.TxStatusCompleted:
	default:
		return nil, apperr.New(apperr.KindInvalidStateTransition, fmt.Sprintf("交易状态 %s 不允许退款", trans.Status))
	}

	now := s.now()
	refundKey := "refund:" + trans.TransactionNo
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.txRepo.UpdateStatus(ctx, tx, trans.ID, model.TxStatusCompleted, model.TxStatusRefunded, map[string]interface{}{
			"remark": reason,
		})
		if err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return err
			}
			return apperr.Infra(err, "更新交易状态失败")
		}

		refund := &model.Transaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        trans.UserID,
			Kind:          model.KindRefund,
			AmountMoney:   trans.AmountMoney,
			Provider:      model.ProviderInternal,
			ProviderTxID:  &refundKey,
			Status:        model.TxStatusCompleted,
			Remark:        trans.TransactionNo,
			ProcessedAt:   &now,
		}
		if err := s.txRepo.Create(ctx, tx, refund); err != nil {
			return apperr.Infra(err, "创建退款交易失败")
		}
		if err := s.reverseEffects(ctx, tx, trans, refund); err != nil {
			return err
		}

		trans.Status = model.TxStatusRefunded
		return s.writeOutbox(ctx, tx, trans, model.EventTransactionRefunded)
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			current, rerr := s.reload(ctx, transactionID)
			if rerr != nil {
				return nil, rerr
			}
			if current.Status == model.TxStatusRefunded {
				return current, nil
			}
			return nil, apperr.ErrInvalidStateTransition
		}
		return nil, err
	}

	s.log.Info().
		Str("transaction_no", trans.TransactionNo).
		Int64("user_id", trans.UserID).
		Str("reason", reason).
		Msg("交易已退款")
	return s.reload(ctx, transactionID)
}

// refundable 只有产生过余额/VIP 变动的交易可以退款；REFUND、CTV_COMMISSION 本身是记录，不可再退
func refundable(kind string) bool {
	switch kind {
	case model.KindBuyGold, model.KindPurchaseVip, model.KindUnlockEpisode, model.KindSpendGold,
		model.KindCheckinReward, model.KindDailyTaskReward, model.KindAdReward,
		model.KindAdminAdjust, model.KindRedeemCode:
		return true
	}
	return false
}

func (s *LedgerService) reverseEffects(ctx context.Context, tx *gorm.DB, trans, refund *model.Transaction) error {
	entries, err := s.walletRepo.EntriesByTransaction(ctx, tx, trans.ID)
	if err != nil {
		return apperr.Infra(err, "查询金币流水失败")
	}

	var credited, debited int64
	for _, e := range entries {
		if e.Amount > 0 {
			credited += e.Amount
		} else {
			debited -= e.Amount
		}
	}
	if credited > 0 {
		// 已发放的金币被消费掉时无法退款
		if _, err := s.wallet.Debit(ctx, tx, trans.UserID, credited, refund.ID); err != nil {
			return err
		}
	}
	if debited > 0 {
		if _, err := s.wallet.Credit(ctx, tx, trans.UserID, debited, refund.ID); err != nil {
			return err
		}
	}

	if days := trans.VipDaysValue(); days > 0 {
		if _, err := s.vip.Shorten(ctx, tx, trans.UserID, days); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================
// 查询 / 补偿
// ============================================================

func (s *LedgerService) GetTransaction(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()
	trans, err := s.txRepo.GetByTransactionNo(ctx, transactionNo)
	if err != nil {
		return nil, apperr.Infra(err, "查询交易失败")
	}
	if trans == nil {
		return nil, apperr.ErrNotFound
	}
	return trans, nil
}

func (s *LedgerService) GetTransactionByID(ctx context.Context, id int64) (*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()
	return s.reload(ctx, id)
}

func (s *LedgerService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Business.StoreTimeout)
	defer cancel()
	list, total, err := s.txRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, apperr.Infra(err, "查询交易列表失败")
	}
	return list, total, nil
}

// ExpireStale 超时未收到回调的支付意图标记为 FAILED/EXPIRED
func (s *LedgerService) ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	list, err := s.txRepo.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, apperr.Infra(err, "查询超时交易失败")
	}

	expired := 0
	for _, trans := range list {
		result, err := s.fail(ctx, trans, model.FailReasonExpired)
		if err != nil {
			s.log.Error().Err(err).Str("transaction_no", trans.TransactionNo).Msg("关闭超时交易失败")
			continue
		}
		if result.FailReason == model.FailReasonExpired {
			expired++
		}
	}
	return expired, nil
}

// ResettleUnsettled 已记录回调但结算中断的交易，按保存的回调重新结算
func (s *LedgerService) ResettleUnsettled(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	list, err := s.txRepo.ListUnsettled(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, apperr.Infra(err, "查询待补偿交易失败")
	}

	settled := 0
	for _, trans := range list {
		outcome, amount := s.storedOutcome(trans)
		result, err := s.settle(ctx, trans, outcome, amount)
		if err != nil {
			s.log.Error().Err(err).Str("transaction_no", trans.TransactionNo).Msg("补偿结算失败")
			continue
		}
		if result.Status != model.TxStatusPending {
			settled++
		}
	}
	return settled, nil
}

// storedOutcome 站内交易视为成功；渠道交易从保存的回调参数重新解析
func (s *LedgerService) storedOutcome(trans *model.Transaction) (provider.Outcome, int64) {
	if trans.Provider == model.ProviderInternal {
		return provider.OutcomeSuccess, trans.AmountMoney
	}

	var params map[string]string
	if err := json.Unmarshal([]byte(trans.NotifyPayload), &params); err == nil {
		if p, err := s.providers.Get(trans.Provider); err == nil {
			if n, err := p.Parse(params); err == nil {
				return n.Outcome, n.Amount
			}
		}
	}
	return s.providers.MapResult(trans.Provider, trans.ResultCode), trans.AmountMoney
}
