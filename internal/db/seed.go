package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/holzhandel-admin/internal/auth"
	"github.com/diewo77/holzhandel-admin/internal/config"
	"github.com/diewo77/holzhandel-admin/internal/models"
)

// SequenceName is the invoice_sequences key of a numbering year.
func SequenceName(year int) string {
	return fmt.Sprintf("invoice-%d", year)
}

// DefaultSettings builds the settings row created on first start.
func DefaultSettings(cfg config.InvoiceConfig) (models.InvoiceSettings, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(cfg.DefaultVATRate))
	if err != nil {
		return models.InvoiceSettings{}, fmt.Errorf("invalid default VAT rate %q: %w", cfg.DefaultVATRate, err)
	}
	return models.InvoiceSettings{
		ID:                 models.SettingsSingletonID,
		CompanyName:        cfg.CompanyName,
		Country:            "Deutschland",
		VATRate:            rate,
		DefaultTaxIncluded: cfg.TaxIncluded,
		PaymentTermsDays:   cfg.PaymentTermsDays,
		NumberPrefix:       cfg.NumberPrefix,
	}, nil
}

// Seed creates the settings singleton, the current year's sequence row and
// the bootstrap admin. It is idempotent.
func Seed(db *gorm.DB, cfg *config.Config, log logrus.FieldLogger) error {
	settings, err := DefaultSettings(cfg.Invoice)
	if err != nil {
		return err
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&settings).Error; err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	seq := models.InvoiceSequence{Name: SequenceName(time.Now().Year())}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return fmt.Errorf("seed sequence: %w", err)
	}

	if cfg.Auth.AdminEmail == "" {
		return nil
	}
	var existing models.User
	err = db.Where("email = ?", cfg.Auth.AdminEmail).First(&existing).Error
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("lookup admin: %w", err)
	}
	hash, err := auth.HashPassword(cfg.Auth.AdminPassword)
	if err != nil {
		return err
	}
	admin := models.User{Email: cfg.Auth.AdminEmail, Name: "Administrator", Password: hash, Role: models.RoleAdmin}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.WithField("email", admin.Email).Info("bootstrap admin created")
	return nil
}
