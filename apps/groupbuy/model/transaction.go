package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const TransactionPending TransactionStatus = "pending"

// Transaction 团购支付记录
type Transaction struct {
	ID             ID                `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo  string            `gorm:"type:varchar(64);uniqueIndex" json:"transactionNo"`
	UserID         ID                `gorm:"index" json:"userId"`
	CampaignID     ID                `gorm:"column:group_buy_id;index" json:"groupBuyId"`
	Amount         decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	PaymentMethod  string            `gorm:"type:varchar(32);not null" json:"paymentMethod"`
	ReceiverName   string            `gorm:"type:varchar(100);not null" json:"receiverName"`
	Address        string            `gorm:"type:text;not null" json:"address"`
	Expedition     string            `gorm:"type:varchar(32);not null" json:"expedition"`
	Status         TransactionStatus `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	IdempotencyKey *string           `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"-"`
}

func (Transaction) TableName() string {
	return "group_buy_transactions"
}
