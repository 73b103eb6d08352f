package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/holzhandel-admin/internal/config"
	"github.com/diewo77/holzhandel-admin/internal/db"
	"github.com/diewo77/holzhandel-admin/internal/models"
)

// SettingsService owns the invoice settings singleton. Callers load it once
// per operation and pass the value on.
type SettingsService struct {
	db       *gorm.DB
	defaults config.InvoiceConfig
}

func NewSettingsService(d *gorm.DB, defaults config.InvoiceConfig) *SettingsService {
	return &SettingsService{db: d, defaults: defaults}
}

// Load returns the singleton, creating it from configured defaults when absent.
func (s *SettingsService) Load(ctx context.Context) (models.InvoiceSettings, error) {
	var out models.InvoiceSettings
	err := s.db.WithContext(ctx).First(&out, models.SettingsSingletonID).Error
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return out, fmt.Errorf("load settings: %w", err)
	}
	out, err = db.DefaultSettings(s.defaults)
	if err != nil {
		return out, err
	}
	if err := s.db.WithContext(ctx).Create(&out).Error; err != nil && !isUniqueViolation(err) {
		return out, fmt.Errorf("create settings: %w", err)
	}
	return out, nil
}

// TaxInput is the tax part of the settings.
type TaxInput struct {
	VATRate            string `json:"vat_rate" validate:"required,decimal"`
	DefaultTaxIncluded *bool  `json:"default_tax_included" validate:"required"`
}

func parseVATRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return rate, invalid("vat_rate", "decimal")
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return rate, invalid("vat_rate", "out_of_range")
	}
	return rate, nil
}

// UpdateTax changes the VAT rate and the tax-inclusive default.
func (s *SettingsService) UpdateTax(ctx context.Context, in TaxInput) (models.InvoiceSettings, error) {
	if err := validate(in); err != nil {
		return models.InvoiceSettings{}, err
	}
	rate, err := parseVATRate(in.VATRate)
	if err != nil {
		return models.InvoiceSettings{}, err
	}
	cur, err := s.Load(ctx)
	if err != nil {
		return cur, err
	}
	cur.VATRate = rate
	cur.DefaultTaxIncluded = *in.DefaultTaxIncluded
	if err := s.db.WithContext(ctx).Save(&cur).Error; err != nil {
		return cur, fmt.Errorf("save settings: %w", err)
	}
	return cur, nil
}

// InvoiceSettingsInput is the full editable settings form.
type InvoiceSettingsInput struct {
	CompanyName   string `json:"company_name" validate:"required,max=255"`
	Street        string `json:"street" validate:"max=255"`
	PostalCode    string `json:"postal_code" validate:"max=20"`
	City          string `json:"city" validate:"max=100"`
	Country       string `json:"country" validate:"max=100"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"max=50"`
	Website       string `json:"website" validate:"omitempty,url"`
	TaxNumber     string `json:"tax_number" validate:"max=50"`
	VATID         string `json:"vat_id" validate:"max=20"`
	BankName      string `json:"bank_name" validate:"max=255"`
	AccountHolder string `json:"account_holder" validate:"max=255"`
	IBAN          string `json:"iban" validate:"omitempty,iban"`
	BIC           string `json:"bic" validate:"omitempty,bic"`

	VATRate            string `json:"vat_rate" validate:"required,decimal"`
	DefaultTaxIncluded bool   `json:"default_tax_included"`
	PaymentTermsDays   int    `json:"payment_terms_days" validate:"gte=0,lte=365"`
	NumberPrefix       string `json:"number_prefix" validate:"required,max=10,alphanum"`
	FooterText         string `json:"footer_text"`
}

// UpdateInvoice replaces all editable settings fields.
func (s *SettingsService) UpdateInvoice(ctx context.Context, in InvoiceSettingsInput) (models.InvoiceSettings, error) {
	if err := validate(in); err != nil {
		return models.InvoiceSettings{}, err
	}
	rate, err := parseVATRate(in.VATRate)
	if err != nil {
		return models.InvoiceSettings{}, err
	}
	cur, err := s.Load(ctx)
	if err != nil {
		return cur, err
	}
	cur.CompanyName = strings.TrimSpace(in.CompanyName)
	cur.Street = in.Street
	cur.PostalCode = in.PostalCode
	cur.City = in.City
	cur.Country = in.Country
	cur.Email = in.Email
	cur.Phone = in.Phone
	cur.Website = in.Website
	cur.TaxNumber = in.TaxNumber
	cur.VATID = in.VATID
	cur.BankName = in.BankName
	cur.AccountHolder = in.AccountHolder
	cur.IBAN = strings.ToUpper(strings.ReplaceAll(in.IBAN, " ", ""))
	cur.BIC = strings.ToUpper(in.BIC)
	cur.VATRate = rate
	cur.DefaultTaxIncluded = in.DefaultTaxIncluded
	cur.PaymentTermsDays = in.PaymentTermsDays
	cur.NumberPrefix = strings.ToUpper(in.NumberPrefix)
	cur.FooterText = in.FooterText
	if err := s.db.WithContext(ctx).Save(&cur).Error; err != nil {
		return cur, fmt.Errorf("save settings: %w", err)
	}
	return cur, nil
}
