package model

import (
	"time"
)

const (
	RewardTypeGold    = "GOLD"
	RewardTypeVipDays = "VIP_DAYS"
)

// CodeBatch 兑换码批次
type CodeBatch struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string     `gorm:"type:varchar(128);not null" json:"name"`
	RewardType  string     `gorm:"type:varchar(16);not null" json:"reward_type"`
	RewardValue int64      `gorm:"not null" json:"reward_value"`
	VipTier     string     `gorm:"type:varchar(20)" json:"vip_tier,omitempty"`
	UsageLimit  int        `gorm:"not null" json:"usage_limit"`
	Quantity    int        `gorm:"not null" json:"quantity"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (CodeBatch) TableName() string {
	return "code_batch"
}

// ExchangeCode 兑换码，used_count <= usage_limit 恒成立
type ExchangeCode struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code        string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	BatchID     string     `gorm:"type:varchar(36);index" json:"batch_id"`
	RewardType  string     `gorm:"type:varchar(16);not null" json:"reward_type"`
	RewardValue int64      `gorm:"not null" json:"reward_value"`
	VipTier     string     `gorm:"type:varchar(20)" json:"vip_tier,omitempty"`
	UsageLimit  int        `gorm:"not null;default:1" json:"usage_limit"`
	UsedCount   int        `gorm:"not null;default:0" json:"used_count"`
	IsActive    bool       `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ExchangeCode) TableName() string {
	return "exchange_code"
}

// Exhausted 用完即失效，与 is_active 无关
func (c *ExchangeCode) Exhausted() bool {
	return c.UsedCount >= c.UsageLimit
}

func (c *ExchangeCode) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// CodeRedemption 兑换记录，(code, user_id) 唯一
type CodeRedemption struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code          string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_code_user" json:"code"`
	UserID        int64     `gorm:"not null;uniqueIndex:uk_code_user;index" json:"user_id"`
	TransactionID int64     `gorm:"not null" json:"transaction_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (CodeRedemption) TableName() string {
	return "code_redemption"
}
