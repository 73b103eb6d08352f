package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettingsSingletonID is the primary key of the one InvoiceSettings row.
const SettingsSingletonID = 1

// InvoiceSettings holds company identity, bank details and tax configuration
// used by the invoice pipeline. Exactly one row exists.
type InvoiceSettings struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`

	// Company information
	CompanyName string `gorm:"size:255" json:"company_name"`
	Street      string `gorm:"size:255" json:"street"`
	PostalCode  string `gorm:"size:20" json:"postal_code"`
	City        string `gorm:"size:100" json:"city"`
	Country     string `gorm:"size:100" json:"country"`
	Email       string `gorm:"size:255" json:"email"`
	Phone       string `gorm:"size:50" json:"phone"`
	Website     string `gorm:"size:255" json:"website"`

	// Tax & Legal information
	TaxNumber string `gorm:"size:50" json:"tax_number"`
	VATID     string `gorm:"column:vat_id;size:20" json:"vat_id"`

	// Bank
	BankName      string `gorm:"size:255" json:"bank_name"`
	AccountHolder string `gorm:"size:255" json:"account_holder"`
	IBAN          string `gorm:"column:iban;size:34" json:"iban"`
	BIC           string `gorm:"column:bic;size:11" json:"bic"`

	// Tax configuration
	VATRate            decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"vat_rate"`
	DefaultTaxIncluded bool            `gorm:"not null" json:"default_tax_included"`

	// Invoice defaults
	PaymentTermsDays int    `gorm:"not null" json:"payment_terms_days"`
	NumberPrefix     string `gorm:"size:10;not null;default:'RG'" json:"number_prefix"`
	FooterText       string `gorm:"type:text" json:"footer_text"`
}

// CompanyAddress returns the multi-line postal address of the company.
func (s *InvoiceSettings) CompanyAddress() string {
	c := Customer{Address: s.Street, PostalCode: s.PostalCode, City: s.City, Country: s.Country}
	return c.FullAddress()
}
