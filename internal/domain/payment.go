package domain

import (
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ProviderStripe = "stripe"
	ProviderMollie = "mollie"
	ProviderPaypal = "paypal"
)

// Normalized payment statuses shared by every provider.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentCancelled = "cancelled"
	PaymentExpired   = "expired"
	PaymentRefunded  = "refunded"
)

// paymentSources lists, per target status, the statuses a payment may move
// to it from. Providers deliver events out of order, so terminal statuses
// never move and completed only moves to refunded.
var paymentSources = map[string][]string{
	PaymentPending:   {PaymentPending},
	PaymentCompleted: {PaymentPending},
	PaymentFailed:    {PaymentPending},
	PaymentCancelled: {PaymentPending},
	PaymentExpired:   {PaymentPending},
	PaymentRefunded:  {PaymentPending, PaymentCompleted},
}

// PaymentStatusSources returns the statuses from which a payment may move to
// status. Unknown statuses have none.
func PaymentStatusSources(status string) []string {
	return paymentSources[status]
}

// CanMovePayment reports whether a payment in status from may take status to.
func CanMovePayment(from, to string) bool {
	return slices.Contains(paymentSources[to], from)
}

type Amount struct {
	Value    float64 `bson:"value" json:"value"`
	Currency string  `bson:"currency" json:"currency"`
}

// PaymentMetadata tells the completion step what to apply once paid.
type PaymentMetadata struct {
	Type            string `bson:"type" json:"type"`
	PlanID          string `bson:"planId" json:"planId"`
	SubscriptionID  string `bson:"subscriptionId,omitempty" json:"subscriptionId,omitempty"`
	AffiliationCode string `bson:"affiliationCode,omitempty" json:"affiliationCode,omitempty"`
	DaysRemaining   int    `bson:"daysRemaining,omitempty" json:"daysRemaining,omitempty"`
}

// Payment is one provider payment attempt. (Provider, ExternalPaymentID) is
// unique once the provider has assigned an id.
type Payment struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID            primitive.ObjectID `bson:"userId" json:"userId"`
	Provider          string             `bson:"provider" json:"provider"`
	ExternalPaymentID string             `bson:"externalPaymentId,omitempty" json:"externalPaymentId,omitempty"`
	Amount            Amount             `bson:"amount" json:"amount"`
	Status            string             `bson:"status" json:"status"`
	Description       string             `bson:"description" json:"description"`
	MollieData        map[string]any     `bson:"mollieData,omitempty" json:"mollieData,omitempty"`
	StripeData        map[string]any     `bson:"stripeData,omitempty" json:"stripeData,omitempty"`
	PaypalData        map[string]any     `bson:"paypalData,omitempty" json:"paypalData,omitempty"`
	Metadata          PaymentMetadata    `bson:"metadata" json:"metadata"`
	IsProcessed       bool               `bson:"isProcessed" json:"isProcessed"`
	ProcessedAt       *time.Time         `bson:"processedAt,omitempty" json:"processedAt,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// CreateIntentRequest starts a Stripe payment. Without a pending session the
// plan is bought outright.
type CreateIntentRequest struct {
	PlanID string `json:"planId" validate:"omitempty,len=24,hexadecimal"`
}

// CreateIntentResponse carries what Stripe.js needs to confirm the payment.
type CreateIntentResponse struct {
	ClientSecret    string  `json:"clientSecret"`
	PaymentIntentID string  `json:"paymentIntentId"`
	PaymentID       string  `json:"paymentId"`
	PublishableKey  string  `json:"publishableKey,omitempty"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}

// MollieTokenRequest pays with a Mollie Components card token.
type MollieTokenRequest struct {
	CardToken string `json:"cardToken" validate:"required"`
	PlanID    string `json:"planId" validate:"omitempty,len=24,hexadecimal"`
}

// MolliePaymentResponse carries the 3-D Secure checkout URL when one is needed.
type MolliePaymentResponse struct {
	PaymentID       string  `json:"paymentId"`
	MolliePaymentID string  `json:"molliePaymentId"`
	Status          string  `json:"status"`
	CheckoutURL     string  `json:"checkoutUrl,omitempty"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}

type RefundRequest struct {
	Amount *float64 `json:"amount" validate:"omitempty,gt=0"`
}
