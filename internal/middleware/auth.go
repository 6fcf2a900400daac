package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tarifly/backend/internal/contextkeys"
	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/handler"
	"github.com/tarifly/backend/internal/service"
)

// Authenticator resolves a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

var _ Authenticator = (*service.AuthService)(nil)

// Auth creates a JWT authentication middleware. The token is read from the
// auth-token cookie first, then from an "Authorization: Bearer" header.
func Auth(auth Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := tokenFromRequest(r)
			if err != nil {
				handler.Error(w, err)
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				handler.Error(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// OptionalAuth attaches the user when a valid token is present and otherwise
// lets the request through anonymously.
func OptionalAuth(auth Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, err := tokenFromRequest(r); err == nil {
				if user, err := auth.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(withUser(r.Context(), user))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(handler.AuthCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", domain.ErrUnauthorized("no token provided")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", domain.ErrUnauthorized("invalid authorization header")
	}
	return parts[1], nil
}

func withUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, contextkeys.User, u)
}
