package db

import (
	"embed"
	"errors"
	"fmt"

	migrate "github.com/golang-migrate/migrate/v4"
	// registers the postgres database driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/diewo77/holzhandel-admin/internal/config"
	"github.com/diewo77/holzhandel-admin/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Models lists every table managed by AutoMigrate.
func Models() []any {
	return []any{
		&models.User{},
		&models.Customer{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.InvoiceSettings{},
		&models.InvoiceSequence{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.PriceRule{},
	}
}

// Migrate applies the schema. With MIGRATIONS=1 on PostgreSQL the embedded
// SQL migrations run; otherwise gorm AutoMigrate is used (dev, sqlite).
func Migrate(db *gorm.DB, cfg *config.Config, log logrus.FieldLogger) error {
	if cfg.App.Migrations && !cfg.Database.IsSQLite() {
		log.Info("running SQL migrations")
		if err := runSQLMigrations(cfg.Database.URL()); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		for _, m := range Models() {
			if err := db.AutoMigrate(m); err != nil {
				return fmt.Errorf("automigrate %T: %w", m, err)
			}
		}
	}

	// sanity check: ensure required core tables exist
	for _, table := range []string{"invoices", "invoice_items", "invoice_settings", "invoice_sequences", "orders"} {
		if !db.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

func runSQLMigrations(url string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
