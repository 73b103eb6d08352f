package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/diewo77/holzhandel-admin/internal/httpx"
	"github.com/diewo77/holzhandel-admin/internal/models"
	"github.com/diewo77/holzhandel-admin/internal/services"
)

type InvoiceHandler struct {
	invoices *services.InvoiceService
	renderer *services.RenderService
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewInvoiceHandler(invoices *services.InvoiceService, renderer *services.RenderService, log logrus.FieldLogger) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, renderer: renderer, log: log, now: time.Now}
}

// invoiceView adds the display status to the stored invoice.
type invoiceView struct {
	*models.Invoice
	DisplayStatus models.InvoiceStatus `json:"display_status"`
}

func (h *InvoiceHandler) view(inv *models.Invoice) invoiceView {
	return invoiceView{Invoice: inv, DisplayStatus: inv.EffectiveStatus(h.now())}
}

// Create handles POST /api/invoices.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.CreateParams
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badRequest(w, err)
		return
	}
	inv, err := h.invoices.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"invoice_number": inv.Number,
		"order_id":       inv.OrderID,
		"total":          inv.TotalAmount.StringFixed(2),
	}).Info("invoice created")
	httpx.OK(w, http.StatusCreated, map[string]any{"invoice": h.view(inv)})
}

// List handles GET /api/invoices.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	f := services.InvoiceFilter{
		Status:  models.InvoiceStatus(r.URL.Query().Get("status")),
		Overdue: boolQuery(r, "overdue"),
		Search:  r.URL.Query().Get("q"),
		Limit:   limit,
		Offset:  (page - 1) * limit,
	}
	if f.Status != "" && !f.Status.Valid() {
		httpx.JSONError(w, http.StatusBadRequest, "bad_request", "unknown status "+string(f.Status), nil)
		return
	}
	list, total, err := h.invoices.List(r.Context(), f)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	views := make([]invoiceView, 0, len(list))
	for i := range list {
		views = append(views, h.view(&list[i]))
	}
	httpx.OK(w, http.StatusOK, map[string]any{
		"invoices": views,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// Get handles GET /api/invoices/{number}. format=html|pdf renders the
// invoice instead of returning JSON.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "json":
		inv, err := h.invoices.GetByNumber(r.Context(), number)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		httpx.OK(w, http.StatusOK, map[string]any{"invoice": h.view(inv)})
	case "html", "pdf":
		data, err := h.renderer.RenderInvoice(r.Context(), number, format)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		if format == "html" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", `inline; filename="`+number+`.pdf"`)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		httpx.JSONError(w, http.StatusBadRequest, "bad_request", "format must be json, html or pdf", nil)
	}
}

type statusInput struct {
	Status models.InvoiceStatus `json:"status"`
}

// UpdateStatus handles PATCH /api/invoices/{number}/status.
func (h *InvoiceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var in statusInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badRequest(w, err)
		return
	}
	inv, err := h.invoices.UpdateStatus(r.Context(), chi.URLParam(r, "number"), in.Status)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"invoice": h.view(inv)})
}

// Delete handles DELETE /api/invoices/{number}.
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if err := h.invoices.Delete(r.Context(), number); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.log.WithField("invoice_number", number).Info("invoice deleted")
	httpx.OK(w, http.StatusOK, map[string]any{"deleted": number})
}
