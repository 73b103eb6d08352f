package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "RG", cfg.Invoice.NumberPrefix)
	assert.Equal(t, 14, cfg.Invoice.PaymentTermsDays)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, 1, cfg.Renderer.Retries)
	assert.Equal(t, 20*time.Second, cfg.Renderer.Timeout)
	assert.Equal(t, RendererGotenberg, cfg.Renderer.Driver)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("INVOICE_PAYMENT_TERMS_DAYS", "30")
	t.Setenv("RENDERER_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Database.IsSQLite())
	assert.Equal(t, 30, cfg.Invoice.PaymentTermsDays)
	assert.Equal(t, 5*time.Second, cfg.Renderer.Timeout)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "shop", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=shop sslmode=disable", d.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/shop?sslmode=disable", d.URL())
}

func TestLoad_RendererDriver(t *testing.T) {
	t.Setenv("RENDERER_DRIVER", "maroto")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, RendererMaroto, cfg.Renderer.Driver)

	t.Setenv("INVOICE_TEMPLATE_PATH", "/etc/holzhandel/rechnung.html")
	_, err = Load()
	assert.ErrorContains(t, err, "INVOICE_TEMPLATE_PATH")

	t.Setenv("RENDERER_DRIVER", "wkhtmltopdf")
	_, err = Load()
	assert.ErrorContains(t, err, "unknown RENDERER_DRIVER")
}
