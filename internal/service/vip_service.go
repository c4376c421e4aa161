package service

import (
	"context"
	"errors"
	"time"

	"monetcore/internal/apperr"
	"monetcore/internal/model"
	"monetcore/internal/repository"

	"gorm.io/gorm"
)

const day = 24 * time.Hour

type VipService struct {
	db      *gorm.DB
	vipRepo *repository.VipRepository
	timeout time.Duration
	now     func() time.Time
}

func NewVipService(db *gorm.DB, timeout time.Duration) *VipService {
	return &VipService{
		db:      db,
		vipRepo: repository.NewVipRepository(db),
		timeout: timeout,
		now:     time.Now,
	}
}

// VipStatus 对外展示的 VIP 状态
type VipStatus struct {
	UserID    int64      `json:"user_id"`
	Tier      string     `json:"tier,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `json:"active"`
}

// extendPlan 计算续期结果：
// 无有效订阅从 now 起算；同等级在原到期时间上叠加；
// 不同等级取较高者，天数加在 max(原到期, now) 上
func extendPlan(sub *model.VipSubscription, tier string, days int, now time.Time) (string, time.Time) {
	add := time.Duration(days) * day
	if !sub.ActiveAt(now) {
		return tier, now.Add(add)
	}

	current := *sub.Tier
	base := *sub.ExpiresAt
	if base.Before(now) {
		base = now
	}
	if model.TierRank(tier) > model.TierRank(current) {
		current = tier
	}
	return current, base.Add(add)
}

// shortenPlan 退款时扣回天数，最多扣到 now，不会早于当前时间
func shortenPlan(sub *model.VipSubscription, days int, now time.Time) *time.Time {
	if sub.ExpiresAt == nil {
		return nil
	}
	expires := sub.ExpiresAt.Add(-time.Duration(days) * day)
	if expires.Before(now) {
		expires = now
	}
	return &expires
}

// Extend 续期 VIP；tx 为 nil 时单独开启事务
func (s *VipService) Extend(ctx context.Context, tx *gorm.DB, userID int64, tier string, days int) (*model.VipSubscription, error) {
	if !model.IsValidTier(tier) {
		return nil, apperr.New(apperr.KindInvalidArgument, "未知的 VIP 等级: "+tier)
	}
	if days <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	return s.mutate(ctx, tx, userID, func(sub *model.VipSubscription, now time.Time) (*string, *time.Time) {
		newTier, expires := extendPlan(sub, tier, days, now)
		return &newTier, &expires
	})
}

// Shorten 扣回已发放的天数
func (s *VipService) Shorten(ctx context.Context, tx *gorm.DB, userID int64, days int) (*model.VipSubscription, error) {
	if days <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	return s.mutate(ctx, tx, userID, func(sub *model.VipSubscription, now time.Time) (*string, *time.Time) {
		return sub.Tier, shortenPlan(sub, days, now)
	})
}

func (s *VipService) mutate(ctx context.Context, tx *gorm.DB, userID int64, fn func(*model.VipSubscription, time.Time) (*string, *time.Time)) (*model.VipSubscription, error) {
	if tx == nil {
		ctx, cancel := withTimeout(ctx, s.timeout)
		defer cancel()

		var sub *model.VipSubscription
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			sub, err = s.mutate(ctx, tx, userID, fn)
			return err
		})
		return sub, err
	}

	if err := s.vipRepo.Ensure(ctx, tx, userID); err != nil {
		return nil, apperr.Infra(err, "创建 VIP 记录失败")
	}
	sub, err := s.vipRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, apperr.Infra(err, "查询 VIP 记录失败")
	}

	tier, expires := fn(sub, s.now())
	if err := s.vipRepo.Save(ctx, tx, userID, tier, expires, sub.Version); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			return nil, apperr.Infra(err, "VIP 记录并发修改")
		}
		return nil, apperr.Infra(err, "更新 VIP 记录失败")
	}

	sub.Tier = tier
	sub.ExpiresAt = expires
	sub.Version++
	return sub, nil
}

func (s *VipService) IsActive(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	sub, err := s.vipRepo.GetByUserID(ctx, userID)
	if err != nil {
		return false, apperr.Infra(err, "查询 VIP 状态失败")
	}
	return sub.ActiveAt(s.now()), nil
}

func (s *VipService) Status(ctx context.Context, userID int64) (*VipStatus, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	sub, err := s.vipRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Infra(err, "查询 VIP 状态失败")
	}
	status := &VipStatus{UserID: userID}
	if sub == nil {
		return status, nil
	}
	if sub.Tier != nil {
		status.Tier = *sub.Tier
	}
	status.ExpiresAt = sub.ExpiresAt
	status.Active = sub.ActiveAt(s.now())
	return status, nil
}
