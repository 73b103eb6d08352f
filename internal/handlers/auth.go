package handlers

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diewo77/holzhandel-admin/internal/auth"
	"github.com/diewo77/holzhandel-admin/internal/httpx"
	"github.com/diewo77/holzhandel-admin/internal/services"
)

type AuthHandler struct {
	users  *services.UserService
	tokens *auth.Tokens
	log    logrus.FieldLogger
}

func NewAuthHandler(users *services.UserService, tokens *auth.Tokens, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, log: log}
}

type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badRequest(w, err)
		return
	}
	if in.Email == "" || in.Password == "" {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", "email and password are required", nil)
		return
	}

	user, err := h.users.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		h.log.WithField("email", in.Email).Warn("failed login")
		writeError(w, r, h.log, err)
		return
	}
	token, expires, err := h.tokens.Issue(auth.User{ID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
			"role":  user.Role,
		},
	})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"user": map[string]any{"id": u.ID, "email": u.Email, "role": u.Role}})
}
