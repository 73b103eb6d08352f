package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/diewo77/holzhandel-admin/internal/auth"
	"github.com/diewo77/holzhandel-admin/internal/config"
	"github.com/diewo77/holzhandel-admin/internal/db"
	"github.com/diewo77/holzhandel-admin/internal/gate"
	"github.com/diewo77/holzhandel-admin/internal/httpx"
	"github.com/diewo77/holzhandel-admin/internal/logging"
	"github.com/diewo77/holzhandel-admin/internal/policy"
)

// NewApp builds the HTTP handler with all API routes.
func NewApp(cfg *config.Config, dbConn *gorm.DB, rc *policy.RouterConfig, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(log))
	r.Use(middleware.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-File-Name", "X-File-Path", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(rc.Tokens.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.Ping(dbConn); err != nil {
			httpx.JSONError(w, http.StatusServiceUnavailable, "db_unavailable", err.Error(), nil)
			return
		}
		httpx.OK(w, http.StatusOK, map[string]any{"time": time.Now().UTC()})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", rc.AuthHandler.Login)
		r.With(auth.RequireAuth).Get("/auth/me", rc.AuthHandler.Me)

		ih := rc.InvoiceHandler
		r.Route("/invoices", func(r chi.Router) {
			r.With(rc.Require("invoice", gate.ActionList)).Get("/", ih.List)
			r.With(rc.Require("invoice", gate.ActionCreate)).Post("/", ih.Create)
			r.With(rc.Require("invoice", gate.ActionRender)).Post("/render", rc.RenderHandler.Render)
			r.With(rc.Require("invoice", gate.ActionView)).Get("/{number}", ih.Get)
			r.With(rc.Require("invoice", gate.ActionUpdate)).Patch("/{number}/status", ih.UpdateStatus)
			r.With(rc.Require("invoice", gate.ActionDelete)).Delete("/{number}", ih.Delete)
		})
		r.With(rc.Require("invoice", gate.ActionExport)).Get("/exports/invoices.xlsx", rc.ExportHandler.Invoices)

		sh := rc.SettingsHandler
		r.Route("/settings", func(r chi.Router) {
			r.With(rc.Require("settings", gate.ActionView)).Get("/tax", sh.GetTax)
			r.With(rc.Require("settings", gate.ActionUpdate)).Put("/tax", sh.UpdateTax)
			r.With(rc.Require("settings", gate.ActionView)).Get("/invoice", sh.GetInvoice)
			r.With(rc.Require("settings", gate.ActionUpdate)).Put("/invoice", sh.UpdateInvoice)
		})

		oh := rc.OrderHandler
		r.With(rc.Require("order", gate.ActionList)).Get("/orders", oh.List)
		r.With(rc.Require("order", gate.ActionView)).Get("/orders/{id}", oh.Get)

		ph := rc.ProductHandler
		r.Route("/products", func(r chi.Router) {
			r.With(rc.Require("product", gate.ActionList)).Get("/", ph.List)
			r.With(rc.Require("product", gate.ActionCreate)).Post("/", ph.Create)
			r.With(rc.Require("product", gate.ActionView)).Get("/{id}", ph.Get)
			r.With(rc.Require("product", gate.ActionUpdate)).Put("/{id}", ph.Update)
			r.With(rc.Require("product", gate.ActionDelete)).Delete("/{id}", ph.Delete)
			r.With(rc.Require("product", gate.ActionView)).Get("/{id}/price", ph.Price)
		})

		rh := rc.RuleHandler
		r.Route("/automation/rules", func(r chi.Router) {
			r.With(rc.Require("automation", gate.ActionList)).Get("/", rh.List)
			r.With(rc.Require("automation", gate.ActionCreate)).Post("/", rh.Create)
			r.With(rc.Require("automation", gate.ActionView)).Get("/{id}", rh.Get)
			r.With(rc.Require("automation", gate.ActionUpdate)).Put("/{id}", rh.Update)
			r.With(rc.Require("automation", gate.ActionDelete)).Delete("/{id}", rh.Delete)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSONError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	return r
}
