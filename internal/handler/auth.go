package handler

import (
	"net/http"
	"time"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/service"
)

// Cookie names carrying the session tokens.
const (
	AuthCookie    = "auth-token"
	RefreshCookie = "refresh-token"
)

// AuthHandler handles authentication HTTP endpoints.
type AuthHandler struct {
	auth          *service.AuthService
	secureCookies bool
	refreshTTL    time.Duration
}

// NewAuthHandler creates a new AuthHandler. secureCookies should be true
// whenever the API is served over HTTPS.
func NewAuthHandler(auth *service.AuthService, secureCookies bool, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, secureCookies: secureCookies, refreshTTL: refreshTTL}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	user, err := h.auth.Register(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusCreated, user)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	resp, err := h.auth.Login(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	h.setTokens(w, resp)
	OK(w, http.StatusOK, resp)
}

// Refresh handles POST /api/auth/refresh using the refresh-token cookie.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(RefreshCookie)
	if err != nil || c.Value == "" {
		Error(w, domain.ErrUnauthorized("no refresh token"))
		return
	}
	resp, err := h.auth.Refresh(r.Context(), c.Value)
	if err != nil {
		h.clearTokens(w)
		Error(w, err)
		return
	}
	h.setTokens(w, resp)
	OK(w, http.StatusOK, resp)
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearTokens(w)
	Message(w, "logged out", nil)
}

// ForgotPassword always answers 200 so it cannot reveal which emails exist.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotPasswordRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), &req); err != nil {
		if appErr, ok := domain.AsAppError(err); ok && appErr.Code == http.StatusBadRequest {
			Error(w, err)
			return
		}
	}
	Message(w, "if the address is registered, a reset link has been sent", nil)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), &req); err != nil {
		Error(w, err)
		return
	}
	Message(w, "password updated", nil)
}

// VerifyEmail handles GET /api/auth/verify-email?token=.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		Error(w, err)
		return
	}
	Message(w, "email verified", nil)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		Error(w, err)
		return
	}
	me, err := h.auth.Me(r.Context(), user.ID.Hex())
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, me)
}

func (h *AuthHandler) setTokens(w http.ResponseWriter, resp *domain.LoginResponse) {
	http.SetCookie(w, h.cookie(AuthCookie, resp.Token, resp.TokenTTL))
	http.SetCookie(w, h.cookie(RefreshCookie, resp.RefreshToken, h.refreshTTL))
}

func (h *AuthHandler) clearTokens(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie(AuthCookie, "", -1))
	http.SetCookie(w, h.cookie(RefreshCookie, "", -1))
}

// cookie builds an httpOnly, SameSite=Strict cookie. A negative ttl deletes it.
func (h *AuthHandler) cookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
	if ttl < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}
