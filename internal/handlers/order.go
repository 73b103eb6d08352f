package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/diewo77/holzhandel-admin/internal/httpx"
	"github.com/diewo77/holzhandel-admin/internal/services"
)

type OrderHandler struct {
	orders *services.OrderService
	log    logrus.FieldLogger
}

func NewOrderHandler(orders *services.OrderService, log logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{orders: orders, log: log}
}

// List handles GET /api/orders; uninvoiced=true keeps orders without invoice.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	orders, total, err := h.orders.List(r.Context(), services.OrderFilter{
		Uninvoiced: boolQuery(r, "uninvoiced"),
		Search:     r.URL.Query().Get("q"),
		Page:       services.Page{Limit: limit, Offset: (page - 1) * limit},
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"order": o})
}
