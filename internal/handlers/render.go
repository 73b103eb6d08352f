package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/diewo77/holzhandel-admin/internal/httpx"
	"github.com/diewo77/holzhandel-admin/internal/services"
)

type RenderHandler struct {
	renderer *services.RenderService
	log      logrus.FieldLogger
}

func NewRenderHandler(renderer *services.RenderService, log logrus.FieldLogger) *RenderHandler {
	return &RenderHandler{renderer: renderer, log: log}
}

// Render handles POST /api/invoices/render. Previews answer with JSON
// holding the HTML, everything else with the PDF bytes.
func (h *RenderHandler) Render(w http.ResponseWriter, r *http.Request) {
	var in services.RenderRequest
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badRequest(w, err)
		return
	}
	res, err := h.renderer.Render(r.Context(), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if in.Preview {
		httpx.OK(w, http.StatusOK, map[string]any{"html": string(res.HTML)})
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.FileName+`"`)
	w.Header().Set("X-File-Name", res.FileName)
	if res.Path != "" {
		w.Header().Set("X-File-Path", res.Path)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.PDF)
}
