package repository

import (
	"context"
	"errors"
	"time"

	"monetcore/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VipRepository struct {
	db *gorm.DB
}

func NewVipRepository(db *gorm.DB) *VipRepository {
	return &VipRepository{db: db}
}

func (r *VipRepository) Ensure(ctx context.Context, tx *gorm.DB, userID int64) error {
	return use(tx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&model.VipSubscription{UserID: userID}).Error
}

func (r *VipRepository) GetByUserID(ctx context.Context, userID int64) (*model.VipSubscription, error) {
	var sub model.VipSubscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// GetForUpdate 行锁读取，sqlite 驱动会忽略 FOR UPDATE，由单写连接保证串行
func (r *VipRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.VipSubscription, error) {
	var sub model.VipSubscription
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Save 以 version 做乐观校验
func (r *VipRepository) Save(ctx context.Context, tx *gorm.DB, userID int64, tier *string, expiresAt *time.Time, version int64) error {
	result := tx.WithContext(ctx).
		Model(&model.VipSubscription{}).
		Where("user_id = ? AND version = ?", userID, version).
		Updates(map[string]interface{}{
			"tier":       tier,
			"expires_at": expiresAt,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}
