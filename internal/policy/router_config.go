// Package policy wires services, handlers and the permission gate into one
// router configuration.
package policy

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/diewo77/holzhandel-admin/internal/auth"
	"github.com/diewo77/holzhandel-admin/internal/config"
	"github.com/diewo77/holzhandel-admin/internal/events"
	"github.com/diewo77/holzhandel-admin/internal/gate"
	"github.com/diewo77/holzhandel-admin/internal/handlers"
	"github.com/diewo77/holzhandel-admin/internal/locks"
	"github.com/diewo77/holzhandel-admin/internal/render"
	"github.com/diewo77/holzhandel-admin/internal/services"
	"github.com/diewo77/holzhandel-admin/internal/storage"
)

// Deps are the infrastructure pieces chosen by the server from config.
type Deps struct {
	DB        *gorm.DB
	Config    *config.Config
	Logger    logrus.FieldLogger
	HTML      *render.HTMLRenderer
	PDF       render.PDFRenderer
	Store     storage.Store
	Locker    locks.Locker
	Publisher events.Publisher
	Now       func() time.Time
}

// RouterConfig holds configured handlers and middleware for the application.
type RouterConfig struct {
	Gate   *gate.Gate[auth.User]
	Tokens *auth.Tokens

	AuthHandler     *handlers.AuthHandler
	InvoiceHandler  *handlers.InvoiceHandler
	RenderHandler   *handlers.RenderHandler
	SettingsHandler *handlers.SettingsHandler
	ProductHandler  *handlers.ProductHandler
	OrderHandler    *handlers.OrderHandler
	RuleHandler     *handlers.RuleHandler
	ExportHandler   *handlers.ExportHandler

	InvoiceService *services.InvoiceService
}

// NewRouterConfig builds every service and handler over deps.
func NewRouterConfig(d Deps) *RouterConfig {
	settings := services.NewSettingsService(d.DB, d.Config.Invoice)
	invoices := services.NewInvoiceService(d.DB, settings, services.InvoiceDeps{
		Locker:    d.Locker,
		LockTTL:   d.Config.Redis.LockTTL,
		Publisher: d.Publisher,
		Store:     d.Store,
		Logger:    d.Logger,
		Now:       d.Now,
	})
	renderer := services.NewRenderService(d.DB, settings, invoices, services.RenderDeps{
		HTML:      d.HTML,
		PDF:       d.PDF,
		Store:     d.Store,
		Publisher: d.Publisher,
		Logger:    d.Logger,
		Now:       d.Now,
	})
	rules := services.NewRuleService(d.DB)
	tokens := auth.NewTokens(d.Config.Auth.Secret, d.Config.Auth.TokenTTL)

	return &RouterConfig{
		Gate:            gate.New[auth.User](gate.NewRoleResolver(func(u auth.User) string { return u.Role })),
		Tokens:          tokens,
		AuthHandler:     handlers.NewAuthHandler(services.NewUserService(d.DB), tokens, d.Logger),
		InvoiceHandler:  handlers.NewInvoiceHandler(invoices, renderer, d.Logger),
		RenderHandler:   handlers.NewRenderHandler(renderer, d.Logger),
		SettingsHandler: handlers.NewSettingsHandler(settings, d.Logger),
		ProductHandler:  handlers.NewProductHandler(services.NewProductService(d.DB, rules), d.Logger),
		OrderHandler:    handlers.NewOrderHandler(services.NewOrderService(d.DB), d.Logger),
		RuleHandler:     handlers.NewRuleHandler(rules, d.Logger),
		ExportHandler:   handlers.NewExportHandler(invoices, d.Logger),
		InvoiceService:  invoices,
	}
}

// Require is the permission middleware for resource:action.
func (c *RouterConfig) Require(resource string, action gate.Action) func(http.Handler) http.Handler {
	return c.Gate.Require(func(ctx context.Context) (auth.User, bool) {
		return auth.UserFromContext(ctx)
	}, resource, action)
}
