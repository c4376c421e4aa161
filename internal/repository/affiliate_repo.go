package repository

import (
	"context"
	"errors"

	"monetcore/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AffiliateRepository struct {
	db *gorm.DB
}

func NewAffiliateRepository(db *gorm.DB) *AffiliateRepository {
	return &AffiliateRepository{db: db}
}

func (r *AffiliateRepository) Create(ctx context.Context, account *model.AffiliateAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AffiliateRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.AffiliateAccount, error) {
	return r.first(ctx, tx, "id = ?", id)
}

func (r *AffiliateRepository) GetByUserID(ctx context.Context, userID int64) (*model.AffiliateAccount, error) {
	return r.first(ctx, nil, "user_id = ?", userID)
}

func (r *AffiliateRepository) GetByReferralCode(ctx context.Context, code string) (*model.AffiliateAccount, error) {
	return r.first(ctx, nil, "referral_code = ?", code)
}

func (r *AffiliateRepository) first(ctx context.Context, tx *gorm.DB, query string, args ...interface{}) (*model.AffiliateAccount, error) {
	var account model.AffiliateAccount
	err := use(tx, r.db).WithContext(ctx).Where(query, args...).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// UpdateCommissionRate 只影响之后计提的佣金，历史记录保留快照比例
func (r *AffiliateRepository) UpdateCommissionRate(ctx context.Context, id int64, rate decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.AffiliateAccount{}).
		Where("id = ?", id).
		Update("commission_rate", rate)
	return result.RowsAffected > 0, result.Error
}

func (r *AffiliateRepository) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.AffiliateAccount{}).
		Where("id = ?", id).
		Update("is_active", active)
	return result.RowsAffected > 0, result.Error
}

// CreateReferral 每个用户只能绑定一次
func (r *AffiliateRepository) CreateReferral(ctx context.Context, referral *model.UserReferral) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(referral)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *AffiliateRepository) GetReferralByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserReferral, error) {
	var referral model.UserReferral
	err := use(tx, r.db).WithContext(ctx).Where("user_id = ?", userID).First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// CreateCommission transaction_id 唯一，返回 false 表示已计提过
func (r *AffiliateRepository) CreateCommission(ctx context.Context, tx *gorm.DB, commission *model.AffiliateCommission) (bool, error) {
	result := use(tx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(commission)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *AffiliateRepository) ListCommissions(ctx context.Context, affiliateID int64, page, pageSize int) ([]*model.AffiliateCommission, int64, error) {
	var commissions []*model.AffiliateCommission
	var total int64

	query := r.db.WithContext(ctx).Model(&model.AffiliateCommission{}).Where("affiliate_id = ?", affiliateID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(page, pageSize)
	err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&commissions).Error
	return commissions, total, err
}

// AddEarnings 佣金入账
func (r *AffiliateRepository) AddEarnings(ctx context.Context, tx *gorm.DB, affiliateID int64, amount int64) error {
	return r.adjust(ctx, tx, affiliateID, map[string]interface{}{
		"total_earned":   gorm.Expr("total_earned + ?", amount),
		"pending_payout": gorm.Expr("pending_payout + ?", amount),
	})
}

// ReservePayout 提现申请时预扣，pending_payout 不足则不命中
func (r *AffiliateRepository) ReservePayout(ctx context.Context, tx *gorm.DB, affiliateID int64, amount int64) error {
	result := use(tx, r.db).WithContext(ctx).
		Model(&model.AffiliateAccount{}).
		Where("id = ? AND pending_payout >= ?", affiliateID, amount).
		Update("pending_payout", gorm.Expr("pending_payout - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPendingNotEnough
	}
	return nil
}

// RestorePayout 驳回时退回预扣金额
func (r *AffiliateRepository) RestorePayout(ctx context.Context, tx *gorm.DB, affiliateID int64, amount int64) error {
	return r.adjust(ctx, tx, affiliateID, map[string]interface{}{
		"pending_payout": gorm.Expr("pending_payout + ?", amount),
	})
}

func (r *AffiliateRepository) AddPaid(ctx context.Context, tx *gorm.DB, affiliateID int64, amount int64) error {
	return r.adjust(ctx, tx, affiliateID, map[string]interface{}{
		"total_paid": gorm.Expr("total_paid + ?", amount),
	})
}

func (r *AffiliateRepository) adjust(ctx context.Context, tx *gorm.DB, affiliateID int64, updates map[string]interface{}) error {
	result := use(tx, r.db).WithContext(ctx).
		Model(&model.AffiliateAccount{}).
		Where("id = ?", affiliateID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
