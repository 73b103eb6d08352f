// Package gate authorizes "resource:action" permissions against role
// profiles. It has no dependency on domain models; U is whatever the auth
// layer stores in the request context.
package gate

import (
	"context"
	"errors"
	"net/http"

	"github.com/diewo77/holzhandel-admin/internal/httpx"
)

// Sentinel errors returned by Gate.Authorize.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Gate checks profile permissions.
type Gate[U comparable] struct {
	resolver ProfileResolver[U]
}

func New[U comparable](resolver ProfileResolver[U]) *Gate[U] {
	return &Gate[U]{resolver: resolver}
}

// Authorize returns ErrUnauthenticated for the zero user and ErrForbidden
// when the user's profile lacks resource:action.
func (g *Gate[U]) Authorize(ctx context.Context, user U, action Action, resourceType string) error {
	var zero U
	if user == zero {
		return ErrUnauthenticated
	}
	profile, err := g.resolver.Resolve(ctx, user)
	if err != nil || profile == nil {
		return ErrForbidden
	}
	if !profile.HasPermission(NewPermission(resourceType, action)) {
		return ErrForbidden
	}
	return nil
}

// Can is a convenience wrapper returning bool instead of error.
func (g *Gate[U]) Can(ctx context.Context, user U, action Action, resourceType string) bool {
	return g.Authorize(ctx, user, action, resourceType) == nil
}

// Require builds middleware enforcing resource:action. userOf extracts the
// authenticated user placed in the context by the auth middleware.
func (g *Gate[U]) Require(userOf func(context.Context) (U, bool), resourceType string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := userOf(r.Context())
			switch err := g.Authorize(r.Context(), user, action, resourceType); {
			case errors.Is(err, ErrUnauthenticated):
				httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
				return
			case err != nil:
				httpx.JSONError(w, http.StatusForbidden, "forbidden", "missing permission "+string(NewPermission(resourceType, action)), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
