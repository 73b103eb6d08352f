package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is an immutable record of a checkout. Orders are created by the shop
// front-end and only read here.
type Order struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderNumber string `gorm:"size:50;uniqueIndex;not null" json:"order_number"`

	CustomerID     *uint     `gorm:"index" json:"customer_id,omitempty"`
	Customer       *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	CustomerName   string    `gorm:"size:255" json:"customer_name"`
	CustomerEmail  string    `gorm:"size:255" json:"customer_email,omitempty"`
	BillingAddress string    `gorm:"size:1000" json:"billing_address,omitempty"`

	SubtotalAmount decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"subtotal_amount"`
	DeliveryPrice  decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"delivery_price"`
	TotalAmount    decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"total_amount"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// OrderItem is a single line of an order. Numeric fields are nullable so that
// incomplete rows are detected instead of read as zero.
type OrderItem struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	OrderID uint `gorm:"index;not null" json:"order_id"`

	ProductID   *uint               `gorm:"index" json:"product_id,omitempty"`
	ProductName string              `gorm:"size:255;not null" json:"product_name"`
	Unit        string              `gorm:"size:20;default:'SRM'" json:"unit"`
	Quantity    decimal.NullDecimal `gorm:"type:decimal(12,3)" json:"quantity"`
	UnitPrice   decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	TotalPrice  decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"total_price"`
}
