package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SubscriptionPending   = "pending"
	SubscriptionActive    = "active"
	SubscriptionInactive  = "inactive"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

// Change types carried by payment sessions and payment metadata.
const (
	ChangeNew     = "new"
	ChangeUpgrade = "upgrade"
	ChangeRenewal = "renewal"
)

// Subscription belongs to one user and owns a copy of the plan fields taken
// at purchase time. Later plan edits never rewrite existing subscriptions.
type Subscription struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID           primitive.ObjectID  `bson:"userId" json:"userId"`
	PlanID           primitive.ObjectID  `bson:"planId" json:"planId"`
	PlanName         string              `bson:"planName" json:"planName"`
	PlanPrice        string              `bson:"planPrice" json:"planPrice"`
	PlanPeriod       string              `bson:"planPeriod" json:"planPeriod"`
	Status           string              `bson:"status" json:"status"`
	StartDate        time.Time           `bson:"startDate" json:"startDate"`
	EndDate          time.Time           `bson:"endDate" json:"endDate"`
	AffiliationCode  string              `bson:"affiliationCode,omitempty" json:"affiliationCode,omitempty"`
	AffiliatedUserID *primitive.ObjectID `bson:"affiliatedUserId,omitempty" json:"affiliatedUserId,omitempty"`
	SaleValue        float64             `bson:"saleValue,omitempty" json:"saleValue,omitempty"`
	LastPaymentID    *primitive.ObjectID `bson:"lastPaymentId,omitempty" json:"lastPaymentId,omitempty"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// ApplyPlan copies the plan fields onto the subscription.
func (s *Subscription) ApplyPlan(p *Plan) {
	s.PlanID = p.ID
	s.PlanName = p.Name
	s.PlanPrice = p.Price
	s.PlanPeriod = p.Period
}

// Normalize fills EndDate from StartDate and the plan period when it is unset.
func (s *Subscription) Normalize() {
	if s.EndDate.IsZero() && !s.StartDate.IsZero() {
		s.EndDate = ComputeEndDate(s.StartDate, s.PlanPeriod)
	}
}

// ChangeRequest starts an upgrade, renewal or first purchase.
type ChangeRequest struct {
	Type           string `json:"type" validate:"required,oneof=new upgrade renewal"`
	PlanID         string `json:"planId" validate:"required,len=24,hexadecimal"`
	SubscriptionID string `json:"subscriptionId" validate:"omitempty,len=24,hexadecimal"`
	Provider       string `json:"provider" validate:"omitempty,oneof=stripe mollie"`
}

// Quote is the outcome of the cost calculation for a change.
type Quote struct {
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	CurrentPrice  float64 `json:"currentPrice"`
	TargetPrice   float64 `json:"targetPrice"`
	DaysRemaining int     `json:"daysRemaining"` // informational, never prorated
}

// CompleteRequest identifies a payment by internal or provider id.
type CompleteRequest struct {
	PaymentID       string `json:"paymentId" validate:"omitempty,len=24,hexadecimal"`
	PaymentIntentID string `json:"paymentIntentId"`
	MolliePaymentID string `json:"molliePaymentId"`
}

type SubscriptionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active inactive cancelled expired"`
}
