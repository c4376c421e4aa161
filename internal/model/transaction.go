package model

import (
	"time"
)

// ============================================================================
// 交易类型 / 渠道 / 状态
// ============================================================================

const (
	KindBuyGold         = "BUY_GOLD"
	KindSpendGold       = "SPEND_GOLD"
	KindPurchaseVip     = "PURCHASE_VIP"
	KindUnlockEpisode   = "UNLOCK_EPISODE"
	KindCheckinReward   = "CHECKIN_REWARD"
	KindDailyTaskReward = "DAILY_TASK_REWARD"
	KindAdReward        = "AD_REWARD"
	KindRefund          = "REFUND"
	KindCtvCommission   = "CTV_COMMISSION"
	KindAdminAdjust     = "ADMIN_ADJUST"
	KindRedeemCode      = "REDEEM_CODE"
)

const (
	ProviderVNPay        = "VNPAY"
	ProviderMoMo         = "MOMO"
	ProviderBankTransfer = "BANK_TRANSFER"
	ProviderIAPGoogle    = "IAP_GOOGLE"
	ProviderIAPApple     = "IAP_APPLE"
	ProviderInternal     = "INTERNAL"
)

const (
	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusFailed    = "FAILED"
	TxStatusRefunded  = "REFUNDED"
)

// 失败原因
const (
	FailReasonUserCancelled       = "USER_CANCELLED"
	FailReasonProviderError       = "PROVIDER_ERROR"
	FailReasonInsufficientBalance = "INSUFFICIENT_BALANCE"
	FailReasonAmountMismatch      = "AMOUNT_MISMATCH"
	FailReasonUnknownIntent       = "UNKNOWN_INTENT"
	FailReasonExpired             = "EXPIRED"
	FailReasonInvalidIntent       = "INVALID_INTENT" // 交易内容无法结算，如金币数为 0
)

var ValidTxTransitions = map[string][]string{
	TxStatusPending:   {TxStatusCompleted, TxStatusFailed},
	TxStatusCompleted: {TxStatusRefunded},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidTxTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Transaction 结算单元
//
// (provider, provider_tx_id) 唯一：外部回调以渠道流水号去重，
// 内部交易（奖励、调账、兑换码）以调用方的幂等键去重，provider 固定为 INTERNAL
type Transaction struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID        int64      `gorm:"index;not null" json:"user_id"`
	Kind          string     `gorm:"type:varchar(32);not null" json:"kind"`
	AmountMoney   int64      `gorm:"not null;default:0" json:"amount_money"` // 法币金额（VND）
	GoldAmount    int64      `gorm:"not null;default:0" json:"gold_amount"`  // ADMIN_ADJUST 允许为负
	VipDays       *int       `json:"vip_days,omitempty"`
	VipTier       *string    `gorm:"type:varchar(20)" json:"vip_tier,omitempty"`
	Provider      string     `gorm:"type:varchar(20);not null;uniqueIndex:uk_provider_tx" json:"provider"`
	ProviderTxID  *string    `gorm:"type:varchar(128);uniqueIndex:uk_provider_tx" json:"provider_tx_id,omitempty"`
	Status        string     `gorm:"type:varchar(20);index;not null" json:"status"`
	FailReason    string     `gorm:"type:varchar(32)" json:"fail_reason,omitempty"`
	ResultCode    string     `gorm:"type:varchar(32)" json:"result_code,omitempty"`
	ExternalRef   string     `gorm:"type:varchar(64)" json:"external_ref,omitempty"` // 渠道流水号
	NotifyPayload string     `gorm:"type:text" json:"-"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	Remark        string     `gorm:"type:varchar(256)" json:"remark,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transaction"
}

// VipDaysValue VIP 天数，未设置时为 0
func (t *Transaction) VipDaysValue() int {
	if t.VipDays == nil {
		return 0
	}
	return *t.VipDays
}

// VipTierValue VIP 等级，未设置时为空串
func (t *Transaction) VipTierValue() string {
	if t.VipTier == nil {
		return ""
	}
	return *t.VipTier
}
