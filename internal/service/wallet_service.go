package service

import (
	"context"
	"errors"
	"time"

	"monetcore/internal/apperr"
	"monetcore/internal/metrics"
	"monetcore/internal/model"
	"monetcore/internal/repository"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type WalletService struct {
	db         *gorm.DB
	walletRepo *repository.WalletRepository
	timeout    time.Duration
	log        zerolog.Logger
	m          *metrics.Metrics
}

// NewWalletService timeout 限制单次存储访问；在调用方事务内执行时沿用调用方的 ctx
func NewWalletService(db *gorm.DB, timeout time.Duration, log zerolog.Logger) *WalletService {
	return &WalletService{
		db:         db,
		walletRepo: repository.NewWalletRepository(db),
		timeout:    timeout,
		log:        log,
		m:          metrics.Get(),
	}
}

// Credit 加款并记录流水，返回变动后余额
// tx 为 nil 时单独开启事务
func (s *WalletService) Credit(ctx context.Context, tx *gorm.DB, userID, amount, transactionID int64) (int64, error) {
	if amount <= 0 {
		return 0, apperr.ErrInvalidAmount
	}
	if tx == nil {
		ctx, cancel := withTimeout(ctx, s.timeout)
		defer cancel()

		var balance int64
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			balance, err = s.Credit(ctx, tx, userID, amount, transactionID)
			return err
		})
		return balance, err
	}

	if err := s.walletRepo.Ensure(ctx, tx, userID); err != nil {
		return 0, apperr.Infra(err, "创建钱包失败")
	}
	balance, err := s.walletRepo.Increase(ctx, tx, userID, amount)
	if err != nil {
		s.m.WalletOpsTotal.WithLabelValues("credit", "error").Inc()
		return 0, apperr.Infra(err, "加款失败")
	}
	if err := s.record(ctx, tx, userID, transactionID, model.EntryTypeCredit, amount, balance); err != nil {
		return 0, err
	}

	s.m.WalletOpsTotal.WithLabelValues("credit", "ok").Inc()
	s.m.GoldMoved.WithLabelValues("credit").Add(float64(amount))
	return balance, nil
}

// Debit 扣款，余额不足时不做任何修改
func (s *WalletService) Debit(ctx context.Context, tx *gorm.DB, userID, amount, transactionID int64) (int64, error) {
	if amount <= 0 {
		return 0, apperr.ErrInvalidAmount
	}
	if tx == nil {
		ctx, cancel := withTimeout(ctx, s.timeout)
		defer cancel()

		var balance int64
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			balance, err = s.Debit(ctx, tx, userID, amount, transactionID)
			return err
		})
		return balance, err
	}

	if err := s.walletRepo.Ensure(ctx, tx, userID); err != nil {
		return 0, apperr.Infra(err, "创建钱包失败")
	}
	balance, err := s.walletRepo.Deduct(ctx, tx, userID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrBalanceNotEnough) {
			s.m.WalletOpsTotal.WithLabelValues("debit", "insufficient").Inc()
			return 0, apperr.ErrInsufficientBalance
		}
		s.m.WalletOpsTotal.WithLabelValues("debit", "error").Inc()
		return 0, apperr.Infra(err, "扣款失败")
	}
	if err := s.record(ctx, tx, userID, transactionID, model.EntryTypeDebit, -amount, balance); err != nil {
		return 0, err
	}

	s.m.WalletOpsTotal.WithLabelValues("debit", "ok").Inc()
	s.m.GoldMoved.WithLabelValues("debit").Add(float64(amount))
	return balance, nil
}

func (s *WalletService) record(ctx context.Context, tx *gorm.DB, userID, transactionID int64, entryType string, amount, balance int64) error {
	entry := &model.WalletEntry{
		UserID:        userID,
		TransactionID: transactionID,
		EntryType:     entryType,
		Amount:        amount,
		BalanceAfter:  balance,
	}
	if err := s.walletRepo.CreateEntry(ctx, tx, entry); err != nil {
		return apperr.Infra(err, "记录金币流水失败")
	}
	return nil
}

func (s *WalletService) Balance(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.walletRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return 0, apperr.Infra(err, "查询余额失败")
	}
	if account == nil {
		return 0, nil
	}
	return account.GoldBalance, nil
}

func (s *WalletService) Entries(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletEntry, int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	entries, total, err := s.walletRepo.ListEntries(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, apperr.Infra(err, "查询金币流水失败")
	}
	return entries, total, nil
}

// Reconcile 返回当前余额与流水合计，两者不等说明有未记流水的改动
func (s *WalletService) Reconcile(ctx context.Context, userID int64) (balance, sum int64, err error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if balance, err = s.Balance(ctx, userID); err != nil {
		return 0, 0, err
	}
	if sum, err = s.walletRepo.SumEntries(ctx, userID); err != nil {
		return 0, 0, apperr.Infra(err, "汇总金币流水失败")
	}
	return balance, sum, nil
}
