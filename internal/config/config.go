// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Invoice  InvoiceConfig
	Storage  StorageConfig
	Renderer RendererConfig
	Auth     AuthConfig
	Redis    RedisConfig
	PubSub   PubSubConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	ReadTimeout    time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout    time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	RequestTimeout time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"45s"`
	AllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

// DatabaseConfig holds database connection settings.
// Driver "sqlite" uses Path; everything else is treated as PostgreSQL.
type DatabaseConfig struct {
	Driver   string `envconfig:"DB_DRIVER" default:"postgres"`
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"holzhandel"`
	Password string `envconfig:"DB_PASSWORD" default:"holzhandel"`
	DBName   string `envconfig:"DB_NAME" default:"holzhandel"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	Path     string `envconfig:"DB_PATH" default:"holzhandel.db"`
	Debug    bool   `envconfig:"DB_DEBUG" default:"false"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev        bool `envconfig:"DEV" default:"true"`
	Migrations bool `envconfig:"MIGRATIONS" default:"false"`
	Seed       bool `envconfig:"DB_SEED" default:"true"`
}

// InvoiceConfig holds defaults used when the settings row is first created.
type InvoiceConfig struct {
	CompanyName      string `envconfig:"INVOICE_COMPANY_NAME"`
	NumberPrefix     string `envconfig:"INVOICE_NUMBER_PREFIX" default:"RG"`
	PaymentTermsDays int    `envconfig:"INVOICE_PAYMENT_TERMS_DAYS" default:"14"`
	DefaultVATRate   string `envconfig:"INVOICE_DEFAULT_VAT_RATE" default:"19"`
	TaxIncluded      bool   `envconfig:"INVOICE_DEFAULT_TAX_INCLUDED" default:"true"`
}

// StorageConfig selects where rendered PDFs are kept.
type StorageConfig struct {
	Driver          string `envconfig:"STORAGE_DRIVER" default:"local"`
	Dir             string `envconfig:"STORAGE_DIR" default:"storage"`
	Bucket          string `envconfig:"GCS_BUCKET"`
	Prefix          string `envconfig:"GCS_PREFIX" default:""`
	CredentialsJSON string `envconfig:"GCS_CREDENTIALS_JSON"`
}

// PDF renderer drivers. Gotenberg prints the HTML template, so preview and
// PDF share one layout. Maroto draws a fixed layout without a browser and
// cannot use a custom template.
const (
	RendererGotenberg = "gotenberg"
	RendererMaroto    = "maroto"
)

// RendererConfig selects the PDF renderer and its retry envelope.
type RendererConfig struct {
	Driver       string        `envconfig:"RENDERER_DRIVER" default:"gotenberg"`
	GotenbergURL string        `envconfig:"GOTENBERG_URL" default:"http://localhost:3000"`
	Timeout      time.Duration `envconfig:"RENDERER_TIMEOUT" default:"20s"`
	Retries      int           `envconfig:"RENDERER_RETRIES" default:"1"`
	TemplatePath string        `envconfig:"INVOICE_TEMPLATE_PATH"`
}

// AuthConfig holds token signing settings and the bootstrap admin account.
type AuthConfig struct {
	Secret        string        `envconfig:"JWT_SECRET" default:"devsessionsecret"`
	TokenTTL      time.Duration `envconfig:"JWT_TTL" default:"12h"`
	AdminEmail    string        `envconfig:"ADMIN_EMAIL" default:"admin@holzhandel.local"`
	AdminPassword string        `envconfig:"ADMIN_PASSWORD" default:"admin"`
}

// RedisConfig enables the per-order creation lock when Addr is set.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDRESS"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL  time.Duration `envconfig:"REDIS_LOCK_TTL" default:"30s"`
}

// PubSubConfig enables event publication when ProjectID and Topic are set.
type PubSubConfig struct {
	ProjectID       string `envconfig:"PUBSUB_PROJECT_ID"`
	Topic           string `envconfig:"PUBSUB_TOPIC"`
	CredentialsJSON string `envconfig:"PUBSUB_CREDENTIALS_JSON"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:""`
}

// IsSQLite reports whether the sqlite driver is configured.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from environment variables.
// Defaults are tuned for local development.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Renderer.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown drivers and a custom template the driver would ignore.
func (r RendererConfig) Validate() error {
	switch r.Driver {
	case RendererGotenberg:
		return nil
	case RendererMaroto:
		if r.TemplatePath != "" {
			return fmt.Errorf("INVOICE_TEMPLATE_PATH requires RENDERER_DRIVER=%s", RendererGotenberg)
		}
		return nil
	default:
		return fmt.Errorf("unknown RENDERER_DRIVER %q", r.Driver)
	}
}
