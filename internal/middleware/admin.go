package middleware

import (
	"net/http"

	"github.com/tarifly/backend/internal/contextkeys"
	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/handler"
)

// RequireRole lets the request through only when the authenticated user holds
// one of roles. Must be used AFTER Auth.
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := r.Context().Value(contextkeys.User).(*domain.User)
			if !ok || u == nil {
				handler.Error(w, domain.ErrUnauthorized("authentication required"))
				return
			}
			if !u.HasRole(roles...) {
				handler.Error(w, domain.ErrForbidden("insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminOnly middleware ensures the user has the admin role.
func AdminOnly(next http.Handler) http.Handler {
	return RequireRole(domain.RoleAdmin)(next)
}
