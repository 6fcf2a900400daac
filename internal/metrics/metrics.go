// Package metrics declares the business counters exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarifly_payments_created_total",
			Help: "Payments opened with a provider",
		},
		[]string{"provider"},
	)

	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarifly_webhooks_received_total",
			Help: "Provider webhooks by outcome",
		},
		[]string{"provider", "outcome"},
	)

	SubscriptionChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarifly_subscription_changes_total",
			Help: "Subscription changes applied after payment, by type",
		},
		[]string{"type"},
	)

	SessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tarifly_payment_sessions_swept_total",
			Help: "Expired payment sessions removed by the sweeper",
		},
	)

	SubscriptionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tarifly_subscriptions_expired_total",
			Help: "Active subscriptions moved to expired past their end date",
		},
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarifly_emails_sent_total",
			Help: "Transactional emails by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarifly_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tarifly_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
