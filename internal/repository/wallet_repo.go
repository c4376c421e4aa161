package repository

import (
	"context"
	"errors"

	"monetcore/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Ensure 账户不存在时创建，并发创建由唯一索引兜底
func (r *WalletRepository) Ensure(ctx context.Context, tx *gorm.DB, userID int64) error {
	return use(tx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&model.WalletAccount{UserID: userID}).Error
}

func (r *WalletRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.WalletAccount, error) {
	var account model.WalletAccount
	err := use(tx, r.db).WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// Increase 单条 UPDATE 完成加款，返回变动后的余额
func (r *WalletRepository) Increase(ctx context.Context, tx *gorm.DB, userID int64, amount int64) (int64, error) {
	db := use(tx, r.db).WithContext(ctx)
	result := db.
		Model(&model.WalletAccount{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"gold_balance": gorm.Expr("gold_balance + ?", amount),
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return r.balance(db, userID)
}

// Deduct 余额不足时 WHERE 条件不命中，不会出现先读后写的竞态
func (r *WalletRepository) Deduct(ctx context.Context, tx *gorm.DB, userID int64, amount int64) (int64, error) {
	db := use(tx, r.db).WithContext(ctx)
	result := db.
		Model(&model.WalletAccount{}).
		Where("user_id = ? AND gold_balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"gold_balance": gorm.Expr("gold_balance - ?", amount),
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrBalanceNotEnough
	}
	return r.balance(db, userID)
}

func (r *WalletRepository) balance(db *gorm.DB, userID int64) (int64, error) {
	var account model.WalletAccount
	if err := db.Select("gold_balance").Where("user_id = ?", userID).First(&account).Error; err != nil {
		return 0, err
	}
	return account.GoldBalance, nil
}

func (r *WalletRepository) CreateEntry(ctx context.Context, tx *gorm.DB, entry *model.WalletEntry) error {
	return use(tx, r.db).WithContext(ctx).Create(entry).Error
}

func (r *WalletRepository) ListEntries(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletEntry, int64, error) {
	var entries []*model.WalletEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletEntry{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(page, pageSize)
	err := query.
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	return entries, total, err
}

// EntriesByTransaction 退款时据此确定原交易实际改动过的余额
func (r *WalletRepository) EntriesByTransaction(ctx context.Context, tx *gorm.DB, transactionID int64) ([]*model.WalletEntry, error) {
	var entries []*model.WalletEntry
	err := use(tx, r.db).WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// SumEntries 对账：流水之和应等于当前余额
func (r *WalletRepository) SumEntries(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.WalletEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}
