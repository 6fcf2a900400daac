package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Funnel steps an attribution event may be recorded for.
const (
	StepVisit    = "visit"
	StepSignup   = "signup"
	StepCheckout = "checkout"
	StepPurchase = "purchase"
)

// MarketingAttribution is an append-only record of where a visitor came from.
type MarketingAttribution struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SessionID   string              `bson:"sessionId" json:"sessionId"`
	UserID      *primitive.ObjectID `bson:"userId,omitempty" json:"userId,omitempty"`
	Step        string              `bson:"step" json:"step"`
	UTMSource   string              `bson:"utmSource,omitempty" json:"utmSource,omitempty"`
	UTMMedium   string              `bson:"utmMedium,omitempty" json:"utmMedium,omitempty"`
	UTMCampaign string              `bson:"utmCampaign,omitempty" json:"utmCampaign,omitempty"`
	UTMTerm     string              `bson:"utmTerm,omitempty" json:"utmTerm,omitempty"`
	UTMContent  string              `bson:"utmContent,omitempty" json:"utmContent,omitempty"`
	Referrer    string              `bson:"referrer,omitempty" json:"referrer,omitempty"`
	LandingPage string              `bson:"landingPage,omitempty" json:"landingPage,omitempty"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
}

type AttributionRequest struct {
	SessionID   string `json:"sessionId" validate:"required,max=100"`
	Step        string `json:"step" validate:"required,oneof=visit signup checkout purchase"`
	UTMSource   string `json:"utmSource" validate:"max=200"`
	UTMMedium   string `json:"utmMedium" validate:"max=200"`
	UTMCampaign string `json:"utmCampaign" validate:"max=200"`
	UTMTerm     string `json:"utmTerm" validate:"max=200"`
	UTMContent  string `json:"utmContent" validate:"max=200"`
	Referrer    string `json:"referrer" validate:"max=2000"`
	LandingPage string `json:"landingPage" validate:"max=2000"`
}

// AttributionStat is one (source, step) bucket of the funnel report.
type AttributionStat struct {
	Source string `bson:"source" json:"source"`
	Step   string `bson:"step" json:"step"`
	Count  int64  `bson:"count" json:"count"`
}
