package model

import (
	"time"
)

const (
	TierFreeAds = "VIP_FREEADS"
	TierGold    = "VIP_GOLD"
)

// TierRank 等级越高数值越大，未知等级为 0
func TierRank(tier string) int {
	switch tier {
	case TierGold:
		return 2
	case TierFreeAds:
		return 1
	default:
		return 0
	}
}

func IsValidTier(tier string) bool {
	return TierRank(tier) > 0
}

// VipSubscription 用户 VIP 权益，每个用户一行
type VipSubscription struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64      `gorm:"uniqueIndex;not null" json:"user_id"`
	Tier      *string    `gorm:"type:varchar(20)" json:"tier"`
	ExpiresAt *time.Time `json:"expires_at"`
	Version   int64      `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (VipSubscription) TableName() string {
	return "vip_subscription"
}

// ActiveAt tier 非空且 expires_at 晚于 now 才算有效
func (s *VipSubscription) ActiveAt(now time.Time) bool {
	return s != nil && s.Tier != nil && *s.Tier != "" && s.ExpiresAt != nil && s.ExpiresAt.After(now)
}
