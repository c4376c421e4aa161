package repository

import (
	"context"
	"errors"
	"time"

	"monetcore/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	return use(tx, r.db).WithContext(ctx).Create(trans).Error
}

// CreateIfAbsent 以 (provider, provider_tx_id) 去重插入，返回是否由本次插入
func (r *TransactionRepository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, trans *model.Transaction) (bool, error) {
	result := use(tx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_tx_id"}},
			DoNothing: true,
		}).
		Create(trans)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *TransactionRepository) GetByProviderTx(ctx context.Context, tx *gorm.DB, provider, providerTxID string) (*model.Transaction, error) {
	var trans model.Transaction
	err := use(tx, r.db).WithContext(ctx).
		Where("provider = ? AND provider_tx_id = ?", provider, providerTxID).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Transaction, error) {
	var trans model.Transaction
	err := use(tx, r.db).WithContext(ctx).Where("id = ?", id).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// UpdateStatus 条件更新：只有当前状态仍为 fromStatus 才会生效
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrInvalidTransition
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := use(tx, r.db).WithContext(ctx).
		Model(&model.Transaction{}).
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

// RecordNotification 保存渠道结果码和原始回调，结算中断时补偿任务据此重试
func (r *TransactionRepository) RecordNotification(ctx context.Context, tx *gorm.DB, id int64, resultCode, externalRef, payload string, notifiedAt time.Time) error {
	return use(tx, r.db).WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TxStatusPending).
		Updates(map[string]interface{}{
			"result_code":    resultCode,
			"external_ref":   externalRef,
			"notify_payload": payload,
			"notified_at":    notifiedAt,
		}).Error
}

// RecordLateNotification 过期关闭的交易保存迟到的回调，只有第一次会命中
func (r *TransactionRepository) RecordLateNotification(ctx context.Context, id int64, resultCode, externalRef, payload string, notifiedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ? AND notified_at IS NULL", id, model.TxStatusFailed).
		Updates(map[string]interface{}{
			"result_code":    resultCode,
			"external_ref":   externalRef,
			"notify_payload": payload,
			"notified_at":    notifiedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(page, pageSize)
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&transactions).Error

	return transactions, total, err
}

// ListStalePending 从未收到回调且已超时的 PENDING 交易
func (r *TransactionRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND notified_at IS NULL AND created_at < ?", model.TxStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}

// ListUnsettled 已收到回调但仍停留在 PENDING 的交易
func (r *TransactionRepository) ListUnsettled(ctx context.Context, before time.Time, limit int) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND notified_at IS NOT NULL AND notified_at < ?", model.TxStatusPending, before).
		Order("notified_at ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}
