package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AffiliateAccount 推广员（CTV）账户
type AffiliateAccount struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	ReferralCode   string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"referral_code"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,4);not null" json:"commission_rate"`
	TotalEarned    int64           `gorm:"not null;default:0" json:"total_earned"`
	PendingPayout  int64           `gorm:"not null;default:0" json:"pending_payout"`
	TotalPaid      int64           `gorm:"not null;default:0" json:"total_paid"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AffiliateAccount) TableName() string {
	return "affiliate_account"
}

// UserReferral 用户注册时填写的推广码，每个用户最多一条
type UserReferral struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	AffiliateID  int64     `gorm:"index;not null" json:"affiliate_id"`
	ReferralCode string    `gorm:"type:varchar(32);not null" json:"referral_code"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (UserReferral) TableName() string {
	return "user_referral"
}

// AffiliateCommission 佣金记录，每笔交易最多一条；比例在计提时快照
type AffiliateCommission struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateID      int64           `gorm:"index;not null" json:"affiliate_id"`
	UserID           int64           `gorm:"index;not null" json:"user_id"`
	TransactionID    int64           `gorm:"uniqueIndex;not null" json:"transaction_id"`
	Amount           int64           `gorm:"not null" json:"amount"`
	CommissionRate   decimal.Decimal `gorm:"type:decimal(5,4);not null" json:"commission_rate"`
	CommissionAmount int64           `gorm:"not null" json:"commission_amount"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AffiliateCommission) TableName() string {
	return "affiliate_commission"
}

const (
	PayoutStatusPending    = "PENDING"
	PayoutStatusApproved   = "APPROVED"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusCompleted  = "COMPLETED"
	PayoutStatusRejected   = "REJECTED"
)

var ValidPayoutTransitions = map[string][]string{
	PayoutStatusPending:    {PayoutStatusApproved, PayoutStatusRejected},
	PayoutStatusApproved:   {PayoutStatusProcessing, PayoutStatusRejected},
	PayoutStatusProcessing: {PayoutStatusCompleted},
}

func CanPayoutTransitionTo(currentStatus, targetStatus string) bool {
	for _, s := range ValidPayoutTransitions[currentStatus] {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Payout 提现申请
type Payout struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PayoutNo     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"payout_no"`
	AffiliateID  int64      `gorm:"index;not null" json:"affiliate_id"`
	Amount       int64      `gorm:"not null" json:"amount"`
	Status       string     `gorm:"type:varchar(20);index;not null" json:"status"`
	BankName     string     `gorm:"type:varchar(128);not null" json:"bank_name"`
	BankAccount  string     `gorm:"type:varchar(64);not null" json:"bank_account"`
	RejectReason string     `gorm:"type:varchar(256)" json:"reject_reason,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payout) TableName() string {
	return "payout"
}
