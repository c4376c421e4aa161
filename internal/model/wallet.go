package model

import (
	"time"
)

// WalletAccount 用户金币账户
type WalletAccount struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	GoldBalance int64     `gorm:"not null;default:0" json:"gold_balance"` // 永远 >= 0
	Version     int64     `gorm:"not null;default:0" json:"version"`      // 每次变动 +1
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WalletAccount) TableName() string {
	return "wallet_account"
}

const (
	EntryTypeCredit = "CREDIT"
	EntryTypeDebit  = "DEBIT"
)

// WalletEntry 金币流水，只追加
// 每笔余额变动都归属于唯一一个 Transaction；同一交易同方向只能记一次
type WalletEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64     `gorm:"index;not null;uniqueIndex:uk_entry_tx" json:"user_id"`
	TransactionID int64     `gorm:"not null;uniqueIndex:uk_entry_tx" json:"transaction_id"`
	EntryType     string    `gorm:"type:varchar(10);not null;uniqueIndex:uk_entry_tx" json:"entry_type"`
	Amount        int64     `gorm:"not null" json:"amount"` // 正数入账，负数出账
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletEntry) TableName() string {
	return "wallet_entry"
}
