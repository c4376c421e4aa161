package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

const (
	EventTransactionCompleted = "transaction.completed"
	EventTransactionRefunded  = "transaction.refunded"
)

// OutboxMessage 与业务数据同事务写入，由 OutboxSender 异步投递到 Kafka
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType  string    `gorm:"type:varchar(64);not null" json:"event_type"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(128);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// TransactionEvent 交易完成/退款事件体
type TransactionEvent struct {
	Event         string    `json:"event"`
	TransactionID int64     `json:"transaction_id"`
	TransactionNo string    `json:"transaction_no"`
	UserID        int64     `json:"user_id"`
	Kind          string    `json:"kind"`
	Provider      string    `json:"provider"`
	AmountMoney   int64     `json:"amount_money"`
	GoldAmount    int64     `json:"gold_amount"`
	VipDays       int       `json:"vip_days,omitempty"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AllModels AutoMigrate 使用
func AllModels() []interface{} {
	return []interface{}{
		&Transaction{},
		&WalletAccount{},
		&WalletEntry{},
		&VipSubscription{},
		&CodeBatch{},
		&ExchangeCode{},
		&CodeRedemption{},
		&AffiliateAccount{},
		&UserReferral{},
		&AffiliateCommission{},
		&Payout{},
		&OutboxMessage{},
	}
}
