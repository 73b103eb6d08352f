package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diewo77/holzhandel-admin/internal/export"
	"github.com/diewo77/holzhandel-admin/internal/models"
	"github.com/diewo77/holzhandel-admin/internal/services"
)

// exportPageSize is the number of invoices loaded per query while the
// ledger export walks all matching invoices.
const exportPageSize = 200

type ExportHandler struct {
	invoices *services.InvoiceService
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewExportHandler(invoices *services.InvoiceService, log logrus.FieldLogger) *ExportHandler {
	return &ExportHandler{invoices: invoices, log: log, now: time.Now}
}

// Invoices handles GET /api/exports/invoices.xlsx.
func (h *ExportHandler) Invoices(w http.ResponseWriter, r *http.Request) {
	f := services.InvoiceFilter{
		Status:  models.InvoiceStatus(r.URL.Query().Get("status")),
		Overdue: boolQuery(r, "overdue"),
		Limit:   exportPageSize,
	}
	var all []models.Invoice
	for {
		page, total, err := h.invoices.List(r.Context(), f)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		all = append(all, page...)
		if len(page) == 0 || int64(len(all)) >= total {
			break
		}
		f.Offset += len(page)
	}

	now := h.now()
	book, err := export.InvoicesXLSX(all, now)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	defer book.Close()

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="rechnungen-%s.xlsx"`, now.Format("2006-01-02")))
	if err := book.Write(w); err != nil {
		h.log.WithError(err).Error("write ledger export")
	}
}
