package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/diewo77/holzhandel-admin/internal/httpx"
	"github.com/diewo77/holzhandel-admin/internal/services"
)

type SettingsHandler struct {
	settings *services.SettingsService
	log      logrus.FieldLogger
}

func NewSettingsHandler(settings *services.SettingsService, log logrus.FieldLogger) *SettingsHandler {
	return &SettingsHandler{settings: settings, log: log}
}

func (h *SettingsHandler) GetTax(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{
		"vat_rate":             s.VATRate,
		"default_tax_included": s.DefaultTaxIncluded,
	})
}

func (h *SettingsHandler) UpdateTax(w http.ResponseWriter, r *http.Request) {
	var in services.TaxInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badRequest(w, err)
		return
	}
	s, err := h.settings.UpdateTax(r.Context(), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{
		"vat_rate":             s.VATRate,
		"default_tax_included": s.DefaultTaxIncluded,
	})
}

func (h *SettingsHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"settings": s})
}

func (h *SettingsHandler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var in services.InvoiceSettingsInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badRequest(w, err)
		return
	}
	s, err := h.settings.UpdateInvoice(r.Context(), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.log.WithField("company", s.CompanyName).Info("invoice settings updated")
	httpx.OK(w, http.StatusOK, map[string]any{"settings": s})
}
