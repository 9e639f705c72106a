package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a bank credit extracted from a notification email
type Transaction struct {
	ID        uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Reference string          `json:"utr" gorm:"type:varchar(64);not null;uniqueIndex"`
	MessageID string          `json:"messageId,omitempty" gorm:"type:varchar(255);index"`
	Timestamp time.Time       `json:"timestamp" gorm:"column:recorded_at;not null;index"`
	Claimed   bool            `json:"claimed" gorm:"not null;default:false;index"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// TableName specifies the table name for Transaction
func (Transaction) TableName() string {
	return "transactions"
}

// TransactionTotals is the result of an aggregate query over transactions
type TransactionTotals struct {
	Total decimal.Decimal `json:"total"`
	Count int64           `json:"count"`
}
