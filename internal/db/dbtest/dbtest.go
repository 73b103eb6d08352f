// Package dbtest provides migrated in-memory sqlite databases for tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/holzhandel-admin/internal/db"
	"github.com/diewo77/holzhandel-admin/internal/models"
)

// Open returns an isolated database named after the test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	d, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, m := range db.Models() {
		if err := d.AutoMigrate(m); err != nil {
			t.Fatalf("automigrate %T: %v", m, err)
		}
	}
	sqlDB, err := d.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return d
}

// Settings inserts a complete settings singleton.
func Settings(t testing.TB, d *gorm.DB, taxIncluded bool) models.InvoiceSettings {
	t.Helper()
	s := models.InvoiceSettings{
		ID:                 models.SettingsSingletonID,
		CompanyName:        "Brennholz Maier",
		Street:             "Waldweg 3",
		PostalCode:         "83022",
		City:               "Rosenheim",
		Country:            "Deutschland",
		BankName:           "Sparkasse Rosenheim",
		IBAN:               "DE02120300000000202051",
		VATRate:            decimal.NewFromInt(19),
		DefaultTaxIncluded: taxIncluded,
		PaymentTermsDays:   14,
		NumberPrefix:       "RG",
	}
	if err := d.Save(&s).Error; err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	return s
}

// Order inserts an order with the given (quantity, unit price) lines.
func Order(t testing.TB, d *gorm.DB, number string, lines ...[2]string) models.Order {
	t.Helper()
	o := models.Order{
		OrderNumber:    number,
		CustomerName:   "Anna Huber",
		CustomerEmail:  "anna@example.de",
		BillingAddress: "Hauptstr. 1\n83022 Rosenheim",
	}
	for i, l := range lines {
		o.Items = append(o.Items, models.OrderItem{
			ProductName: fmt.Sprintf("Buche 33cm #%d", i+1),
			Unit:        models.UnitSRM,
			Quantity:    decimal.NewNullDecimal(decimal.RequireFromString(l[0])),
			UnitPrice:   decimal.NewNullDecimal(decimal.RequireFromString(l[1])),
		})
	}
	if err := d.Create(&o).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}
