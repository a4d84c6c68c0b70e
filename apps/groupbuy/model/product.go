package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog row a campaign prices against. The catalog is owned
// elsewhere; this service only reads it.
type Product struct {
	ID          ID              `gorm:"primaryKey;autoIncrement"`
	UserID      ID              `gorm:"index"` // seller
	Name        string          `gorm:"type:varchar(100);not null"`
	Description string          `gorm:"type:text"`
	Photo       string          `gorm:"type:varchar(255)"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Product) TableName() string {
	return "products"
}

// ProductSnapshot 团购商品快照
type ProductSnapshot struct {
	ProductID          ID              `json:"productId"`
	ProductName        string          `json:"productName"`
	ProductPrice       decimal.Decimal `json:"productPrice"`
	ProductDescription string          `json:"productDescription"`
	ProductPhoto       string          `json:"productPhoto"`
}
