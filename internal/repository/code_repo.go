package repository

import (
	"context"
	"errors"
	"time"

	"monetcore/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CodeRepository struct {
	db *gorm.DB
}

func NewCodeRepository(db *gorm.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// CreateBatch 批次和兑换码同事务写入
func (r *CodeRepository) CreateBatch(ctx context.Context, batch *model.CodeBatch, codes []*model.ExchangeCode) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		return tx.CreateInBatches(codes, 200).Error
	})
}

func (r *CodeRepository) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*model.ExchangeCode, error) {
	var ec model.ExchangeCode
	err := use(tx, r.db).WithContext(ctx).Where("code = ?", code).First(&ec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ec, nil
}

func (r *CodeRepository) ListByBatch(ctx context.Context, batchID string) ([]*model.ExchangeCode, error) {
	var codes []*model.ExchangeCode
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("id ASC").Find(&codes).Error
	return codes, err
}

// IncrementUsage used_count < usage_limit 与自增在同一条语句里完成
func (r *CodeRepository) IncrementUsage(ctx context.Context, tx *gorm.DB, code string, now time.Time) (bool, error) {
	result := use(tx, r.db).WithContext(ctx).
		Model(&model.ExchangeCode{}).
		Where("code = ? AND is_active = ? AND used_count < usage_limit AND (expires_at IS NULL OR expires_at > ?)", code, true, now).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CreateRedemption (code, user_id) 唯一，返回 false 表示该用户已兑换过
func (r *CodeRepository) CreateRedemption(ctx context.Context, tx *gorm.DB, redemption *model.CodeRedemption) (bool, error) {
	result := use(tx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(redemption)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *CodeRepository) HasRedemption(ctx context.Context, code string, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.CodeRedemption{}).
		Where("code = ? AND user_id = ?", code, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *CodeRepository) Deactivate(ctx context.Context, code string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.ExchangeCode{}).
		Where("code = ?", code).
		Update("is_active", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
