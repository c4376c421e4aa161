package repository

import (
	"context"
	"errors"

	"monetcore/internal/model"

	"gorm.io/gorm"
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) Create(ctx context.Context, tx *gorm.DB, payout *model.Payout) error {
	return use(tx, r.db).WithContext(ctx).Create(payout).Error
}

func (r *PayoutRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Payout, error) {
	var payout model.Payout
	err := use(tx, r.db).WithContext(ctx).Where("id = ?", id).First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

func (r *PayoutRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanPayoutTransitionTo(fromStatus, toStatus) {
		return ErrInvalidTransition
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := use(tx, r.db).WithContext(ctx).
		Model(&model.Payout{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *PayoutRepository) ListByAffiliate(ctx context.Context, affiliateID int64, status string, page, pageSize int) ([]*model.Payout, int64, error) {
	var payouts []*model.Payout
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Payout{}).Where("affiliate_id = ?", affiliateID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(page, pageSize)
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&payouts).Error
	return payouts, total, err
}
