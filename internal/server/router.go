// Package server assembles the HTTP routes.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/handler"
	appMiddleware "github.com/tarifly/backend/internal/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	Plans        *handler.PlansHandler
	Subscription *handler.SubscriptionHandler
	Payment      *handler.PaymentHandler
	Webhook      *handler.WebhookHandler
	Gateway      *handler.GatewayHandler
	Smtp         *handler.SmtpHandler
	Contact      *handler.ContactHandler
	Attribution  *handler.AttributionHandler
	Affiliation  *handler.AffiliationHandler
	Admin        *handler.AdminHandler
	Health       *handler.HealthHandler
}

// Options tune the router's cross-cutting middleware.
type Options struct {
	CORSOrigins []string
	// GlobalRPS and GlobalBurst bound each client IP; zero disables the limiter.
	GlobalRPS   float64
	GlobalBurst int
	// StrictLimit wraps login, signup, password reset and the contact form.
	// Nil uses appMiddleware.StrictRateLimiter.
	StrictLimit func(http.Handler) http.Handler
}

// NewRouter builds the full REST surface.
func NewRouter(h Handlers, auth appMiddleware.Authenticator, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(appMiddleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if opts.GlobalRPS > 0 {
		r.Use(appMiddleware.NewRateLimiter(opts.GlobalRPS, opts.GlobalBurst).Middleware())
	}
	strict := opts.StrictLimit
	if strict == nil {
		strict = appMiddleware.StrictRateLimiter()
	}

	// Public routes
	r.Get("/health", h.Health.Check)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/plans", h.Plans.List)
	r.Get("/api/payments/gateways", h.Payment.Gateways)
	r.Get("/api/affiliation/{code}", h.Affiliation.Validate)
	r.Get("/api/auth/verify-email", h.Auth.VerifyEmail)
	r.Post("/api/auth/refresh", h.Auth.Refresh)
	r.Post("/api/auth/logout", h.Auth.Logout)
	r.Post("/api/webhooks/stripe", h.Webhook.Stripe)
	r.Post("/api/webhooks/mollie", h.Webhook.Mollie)
	r.With(appMiddleware.OptionalAuth(auth)).Post("/api/marketing/attribution", h.Attribution.Record)

	// Brute-force sensitive routes
	r.Group(func(r chi.Router) {
		r.Use(strict)
		r.Post("/api/auth/login", h.Auth.Login)
		r.Post("/api/auth/register", h.Auth.Register)
		r.Post("/api/auth/forgot-password", h.Auth.ForgotPassword)
		r.Post("/api/auth/reset-password", h.Auth.ResetPassword)
		r.Post("/api/contact", h.Contact.Submit)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(auth))

		r.Get("/api/auth/me", h.Auth.Me)

		r.Get("/api/subscriptions/current", h.Subscription.Current)
		r.Post("/api/subscriptions/upgrade", h.Subscription.Upgrade)
		r.Post("/api/subscriptions/upgrade/complete", h.Subscription.Complete)

		r.Post("/api/payments/session", h.Payment.PrepareSession)
		r.Get("/api/payments/session", h.Payment.GetSession)
		r.Delete("/api/payments/session", h.Payment.DeleteSession)
		r.Post("/api/payments/stripe/create-intent", h.Payment.CreateStripeIntent)
		r.Get("/api/payments/stripe/{id}", h.Payment.StripeStatus)
		r.Post("/api/payments/mollie/create-with-token", h.Payment.CreateMollieWithToken)
		r.Get("/api/payments/mollie/methods", h.Payment.MollieMethods)
		r.Get("/api/payments/mollie/{id}", h.Payment.MollieStatus)
		r.Get("/api/payments/history", h.Payment.History)

		// Support staff triage the inbox alongside admins.
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireRole(domain.RoleAdmin, domain.RoleUser))
			r.Route("/api/admin/contacts", func(r chi.Router) {
				r.Get("/", h.Contact.List)
				r.Get("/{id}", h.Contact.Get)
				r.Put("/{id}", h.Contact.Update)
				r.Post("/{id}/notes", h.Contact.AddNote)
				r.Post("/{id}/reply", h.Contact.Reply)
				r.Delete("/{id}", h.Contact.Delete)
			})
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.AdminOnly)
			r.Get("/api/admin/stats", h.Admin.GetStats)
			r.Get("/api/admin/users", h.Admin.ListUsers)
			r.Post("/api/admin/users/{id}/affiliation-code", h.Affiliation.AssignCode)

			r.Route("/api/admin/plans", func(r chi.Router) {
				r.Get("/", h.Plans.AdminList)
				r.Post("/", h.Plans.Create)
				r.Get("/{id}", h.Plans.Get)
				r.Put("/{id}", h.Plans.Update)
				r.Delete("/{id}", h.Plans.Delete)
			})

			r.Get("/api/admin/subscriptions", h.Subscription.AdminList)
			r.Put("/api/admin/subscriptions/{id}/status", h.Subscription.UpdateStatus)

			r.Get("/api/admin/payments", h.Payment.AdminList)
			r.Post("/api/admin/payments/{id}/refund", h.Payment.Refund)

			r.Route("/api/admin/settings/payment-gateways", func(r chi.Router) {
				r.Get("/", h.Gateway.List)
				r.Post("/", h.Gateway.Create)
				r.Get("/{id}", h.Gateway.Get)
				r.Put("/{id}", h.Gateway.Update)
				r.Delete("/{id}", h.Gateway.Delete)
				r.Post("/{id}/activate", h.Gateway.Activate)
				r.Post("/{id}/deactivate", h.Gateway.Deactivate)
				r.Post("/{id}/test", h.Gateway.Test)
			})

			r.Route("/api/admin/settings/smtp", func(r chi.Router) {
				r.Get("/", h.Smtp.List)
				r.Post("/", h.Smtp.Create)
				r.Put("/{id}", h.Smtp.Update)
				r.Delete("/{id}", h.Smtp.Delete)
				r.Post("/{id}/test", h.Smtp.Test)
			})

			r.Get("/api/admin/marketing/attribution/stats", h.Attribution.Stats)
		})
	})

	return r
}
