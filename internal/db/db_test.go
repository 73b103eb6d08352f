package db

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/holzhandel-admin/internal/auth"
	"github.com/diewo77/holzhandel-admin/internal/config"
	"github.com/diewo77/holzhandel-admin/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = "file:" + t.Name() + "?mode=memory&cache=shared"
	cfg.Invoice.CompanyName = "Brennholz Maier"
	cfg.Auth.AdminEmail = "admin@test.local"
	cfg.Auth.AdminPassword = "pw"
	return cfg
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestConnectMigrateSeed(t *testing.T) {
	cfg := testConfig(t)
	log := quietLogger()

	d, err := Connect(cfg.Database, log)
	require.NoError(t, err)
	require.NoError(t, Migrate(d, cfg, log))
	require.NoError(t, Ping(d))

	require.NoError(t, Seed(d, cfg, log))
	require.NoError(t, Seed(d, cfg, log))

	var s models.InvoiceSettings
	require.NoError(t, d.First(&s, models.SettingsSingletonID).Error)
	assert.Equal(t, "Brennholz Maier", s.CompanyName)
	assert.Equal(t, "19", s.VATRate.String())
	assert.Equal(t, 14, s.PaymentTermsDays)
	assert.Equal(t, "RG", s.NumberPrefix)

	var n int64
	d.Model(&models.InvoiceSettings{}).Count(&n)
	assert.Equal(t, int64(1), n)
	d.Model(&models.InvoiceSequence{}).Where("name = ?", SequenceName(time.Now().Year())).Count(&n)
	assert.Equal(t, int64(1), n)

	var admins []models.User
	require.NoError(t, d.Where("email = ?", "admin@test.local").Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.Equal(t, models.RoleAdmin, admins[0].Role)
	assert.NoError(t, auth.CheckPassword(admins[0].Password, "pw"))
}

func TestDefaultSettings_InvalidRate(t *testing.T) {
	_, err := DefaultSettings(config.InvoiceConfig{DefaultVATRate: "neunzehn"})
	assert.Error(t, err)
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t,
		"host=localhost port=5432 user=u password=*** dbname=d sslmode=disable",
		MaskDSN("host=localhost port=5432 user=u password=secret dbname=d sslmode=disable"))
}

func TestSequenceName(t *testing.T) {
	assert.Equal(t, "invoice-2026", SequenceName(2026))
}
