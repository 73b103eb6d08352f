package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UnitSRM is the default stock unit (Schüttraummeter).
const UnitSRM = "SRM"

// Product is a firewood article in the catalog.
type Product struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	SKU         string          `gorm:"column:sku;size:50;uniqueIndex;not null" json:"sku"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	WoodType    string          `gorm:"size:100" json:"wood_type,omitempty"`
	Unit        string          `gorm:"size:20;not null;default:'SRM'" json:"unit"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Stock       decimal.Decimal `gorm:"column:stock_quantity;type:decimal(12,3);not null" json:"stock_quantity"`
	IsActive    bool            `gorm:"not null" json:"is_active"`
}

// InStock reports whether at least qty units are available.
func (p *Product) InStock(qty decimal.Decimal) bool {
	return p.Stock.GreaterThanOrEqual(qty)
}

// Customer is a shop customer record.
type Customer struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name       string `gorm:"size:255;not null" json:"name"`
	Email      string `gorm:"size:255;index" json:"email,omitempty"`
	Phone      string `gorm:"size:50" json:"phone,omitempty"`
	Address    string `gorm:"size:500" json:"address,omitempty"`
	PostalCode string `gorm:"size:20" json:"postal_code,omitempty"`
	City       string `gorm:"size:100" json:"city,omitempty"`
	Country    string `gorm:"size:100" json:"country,omitempty"`
}

// FullAddress returns the formatted postal address of the customer.
func (c *Customer) FullAddress() string {
	lines := make([]string, 0, 3)
	if c.Address != "" {
		lines = append(lines, c.Address)
	}
	cityLine := c.City
	if c.PostalCode != "" {
		if cityLine != "" {
			cityLine = c.PostalCode + " " + cityLine
		} else {
			cityLine = c.PostalCode
		}
	}
	if cityLine != "" {
		lines = append(lines, cityLine)
	}
	if c.Country != "" {
		lines = append(lines, c.Country)
	}
	return strings.Join(lines, "\n")
}
