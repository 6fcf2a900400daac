package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GatewayConfig holds provider credentials. Secret fields are stored
// encrypted and are only decrypted when a provider client is built.
type GatewayConfig struct {
	PublishableKey string `bson:"publishableKey,omitempty" json:"publishableKey,omitempty"`
	SecretKey      string `bson:"secretKey,omitempty" json:"secretKey,omitempty"`
	WebhookSecret  string `bson:"webhookSecret,omitempty" json:"webhookSecret,omitempty"`
	APIKey         string `bson:"apiKey,omitempty" json:"apiKey,omitempty"`
	ProfileID      string `bson:"profileId,omitempty" json:"profileId,omitempty"`
}

// PaymentGateway is the admin-managed configuration of one provider. At most
// one gateway is active and at most one is the default.
type PaymentGateway struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Provider  string             `bson:"provider" json:"provider"`
	Name      string             `bson:"name" json:"name"`
	Mode      string             `bson:"mode" json:"mode"` // test | live
	IsActive  bool               `bson:"isActive" json:"isActive"`
	IsDefault bool               `bson:"isDefault" json:"isDefault"`
	Config    GatewayConfig      `bson:"config" json:"config"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// GatewayRequest is the validated input for creating or updating a gateway.
// Empty secret fields on update keep the stored value.
type GatewayRequest struct {
	Provider  string        `json:"provider" validate:"required,oneof=stripe mollie paypal"`
	Name      string        `json:"name" validate:"required,max=100"`
	Mode      string        `json:"mode" validate:"omitempty,oneof=test live"`
	IsActive  bool          `json:"isActive"`
	IsDefault bool          `json:"isDefault"`
	Config    GatewayConfig `json:"config"`
}

// PublicGateway is what anonymous visitors may see of a gateway.
type PublicGateway struct {
	ID             string `json:"id"`
	Provider       string `json:"provider"`
	Name           string `json:"name"`
	Mode           string `json:"mode"`
	IsDefault      bool   `json:"isDefault"`
	PublishableKey string `json:"publishableKey,omitempty"`
	ProfileID      string `json:"profileId,omitempty"`
}

// Masked returns a copy with every secret replaced by a hint of its plaintext.
func (g *PaymentGateway) Masked(plain GatewayConfig) *PaymentGateway {
	out := *g
	out.Config = GatewayConfig{
		PublishableKey: plain.PublishableKey,
		SecretKey:      MaskSecret(plain.SecretKey),
		WebhookSecret:  MaskSecret(plain.WebhookSecret),
		APIKey:         MaskSecret(plain.APIKey),
		ProfileID:      plain.ProfileID,
	}
	return &out
}

// Public strips everything but the client-safe fields.
func (g *PaymentGateway) Public() *PublicGateway {
	return &PublicGateway{
		ID:             g.ID.Hex(),
		Provider:       g.Provider,
		Name:           g.Name,
		Mode:           g.Mode,
		IsDefault:      g.IsDefault,
		PublishableKey: g.Config.PublishableKey,
		ProfileID:      g.Config.ProfileID,
	}
}

// MaskSecret keeps the first and last four characters of long secrets.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return strings.Repeat("*", len(s))
	default:
		return s[:4] + strings.Repeat("*", 4) + s[len(s)-4:]
	}
}

// IsMasked reports whether s looks like a value produced by MaskSecret, so an
// update echoing masked secrets back does not overwrite the stored ones.
func IsMasked(s string) bool {
	return strings.Contains(s, "****")
}
