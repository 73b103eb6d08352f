// Package handlers exposes the invoicing services as a JSON API.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/diewo77/holzhandel-admin/internal/httpx"
	"github.com/diewo77/holzhandel-admin/internal/locks"
	"github.com/diewo77/holzhandel-admin/internal/logging"
	"github.com/diewo77/holzhandel-admin/internal/render"
	"github.com/diewo77/holzhandel-admin/internal/services"
	"github.com/diewo77/holzhandel-admin/internal/tax"
)

// writeError maps service errors to HTTP responses. Unexpected errors are
// logged and reported without internals.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	var (
		malformed *tax.MalformedOrderDataError
		dup       *services.DuplicateInvoiceError
		invalid   *services.ValidationError
		rendering *render.RenderError
	)
	switch {
	case errors.As(err, &invalid):
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", "invalid input", invalid.Violations)
	case errors.As(err, &malformed):
		httpx.JSONError(w, http.StatusUnprocessableEntity, "malformed_order_data", malformed.Error(), map[string]string{"field": malformed.Field})
	case errors.As(err, &dup):
		details := map[string]any{"orderId": dup.OrderID}
		if dup.InvoiceNumber != "" {
			details["invoiceNumber"] = dup.InvoiceNumber
		}
		httpx.JSONError(w, http.StatusConflict, "duplicate_invoice", dup.Error(), details)
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.JSONError(w, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, services.ErrDuplicateNumber):
		httpx.JSONError(w, http.StatusConflict, "duplicate_number", err.Error(), nil)
	case errors.Is(err, services.ErrDuplicateSKU):
		httpx.JSONError(w, http.StatusConflict, "duplicate_sku", err.Error(), nil)
	case errors.Is(err, locks.ErrLocked):
		httpx.JSONError(w, http.StatusConflict, "creation_in_progress", "invoice creation in progress", nil)
	case errors.Is(err, services.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.As(err, &rendering):
		logging.LogError(log, "handlers", "writeError", "render", r.URL.Path, err)
		var details any
		if rendering.Field != "" {
			details = map[string]string{"field": rendering.Field}
		}
		httpx.JSONError(w, http.StatusInternalServerError, "render_failed", rendering.Error(), details)
	default:
		logging.LogError(log, "handlers", "writeError", r.Method+" "+r.URL.Path, nil, err)
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

func badRequest(w http.ResponseWriter, err error) {
	httpx.JSONError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
}

// idParam parses a positive numeric URL parameter.
func idParam(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "bad_request", "invalid "+name, nil)
		return 0, false
	}
	return uint(id), true
}

// pageParams reads page (1-based) and limit from the query string.
func pageParams(r *http.Request) (page, limit int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return page, limit
}

func boolQuery(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
