package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentSession is the short-lived hand-off between choosing a plan change
// and paying for it. It is stored under SessionKey(userID).
type PaymentSession struct {
	UserID          string  `json:"userId"`
	Type            string  `json:"type"`
	PlanID          string  `json:"planId"`
	PlanName        string  `json:"planName"`
	PlanPrice       string  `json:"planPrice"`
	PlanPeriod      string  `json:"planPeriod"`
	SubscriptionID  string  `json:"subscriptionId,omitempty"`
	AffiliationCode string  `json:"affiliationCode,omitempty"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	DaysRemaining   int     `json:"daysRemaining"`
	Provider        string  `json:"provider,omitempty"`
	PaymentID       string  `json:"paymentId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionKey is the storage key for a user's payment session.
func SessionKey(userID string) string {
	return "payment_" + userID
}

// Expired reports whether the session is past its expiry at now.
func (s *PaymentSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Metadata converts the session into payment metadata.
func (s *PaymentSession) Metadata() PaymentMetadata {
	return PaymentMetadata{
		Type:            s.Type,
		PlanID:          s.PlanID,
		SubscriptionID:  s.SubscriptionID,
		AffiliationCode: s.AffiliationCode,
		DaysRemaining:   s.DaysRemaining,
	}
}

// PaymentObjectID parses PaymentID, returning NilObjectID when unset.
func (s *PaymentSession) PaymentObjectID() primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(s.PaymentID)
	if err != nil {
		return primitive.NilObjectID
	}
	return id
}

// AdminStats is the back-office dashboard summary.
type AdminStats struct {
	Users               int64   `json:"users"`
	ActiveSubscriptions int64   `json:"activeSubscriptions"`
	CompletedPayments   int64   `json:"completedPayments"`
	Revenue             float64 `json:"revenue"`
	NewContacts         int64   `json:"newContacts"`
}
