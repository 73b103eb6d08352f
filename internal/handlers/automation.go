package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/diewo77/holzhandel-admin/internal/httpx"
	"github.com/diewo77/holzhandel-admin/internal/services"
)

// RuleHandler serves /api/automation/rules.
type RuleHandler struct {
	rules *services.RuleService
	log   logrus.FieldLogger
}

func NewRuleHandler(rules *services.RuleService, log logrus.FieldLogger) *RuleHandler {
	return &RuleHandler{rules: rules, log: log}
}

func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.List(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	rule, err := h.rules.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"rule": rule})
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.RuleInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badRequest(w, err)
		return
	}
	rule, err := h.rules.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusCreated, map[string]any{"rule": rule})
}

func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var in services.RuleInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badRequest(w, err)
		return
	}
	rule, err := h.rules.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"rule": rule})
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.rules.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"deleted": id})
}
