package domain

import (
	"strings"
	"time"
	"unicode"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Plan is an entry of the public pricing page. Price and Period are kept as
// the human-readable strings the back-office enters ("120,99€", "12 mois").
type Plan struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Slug        string             `bson:"slug" json:"slug"`
	Price       string             `bson:"price" json:"price"`
	Period      string             `bson:"period" json:"period"`
	Description string             `bson:"description" json:"description"`
	Features    []string           `bson:"features" json:"features"`
	IsActive    bool               `bson:"isActive" json:"isActive"`
	Highlight   bool               `bson:"highlight" json:"highlight"` // at most one plan
	Order       int                `bson:"order" json:"order"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// PriceValue returns the parsed numeric price.
func (p *Plan) PriceValue() float64 {
	return ParsePrice(p.Price)
}

// PlanRequest is the validated input for creating or updating a plan.
type PlanRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Price       string   `json:"price" validate:"required,max=30"`
	Period      string   `json:"period" validate:"required,max=50"`
	Description string   `json:"description" validate:"max=1000"`
	Features    []string `json:"features" validate:"dive,max=200"`
	IsActive    *bool    `json:"isActive"`
	Highlight   bool     `json:"highlight"`
	Order       int      `json:"order" validate:"gte=0"`
}

// DefaultPlans is the catalog seeded when the plans collection is empty.
func DefaultPlans() []Plan {
	return []Plan{
		{
			Name:        "Essentiel",
			Price:       "15€",
			Period:      "mois",
			Description: "Pour démarrer sans engagement.",
			Features:    []string{"1 site", "Support par email", "Statistiques de base"},
			IsActive:    true,
			Order:       1,
		},
		{
			Name:        "Business",
			Price:       "120,99€",
			Period:      "12 mois",
			Description: "Un an d'accompagnement complet.",
			Features:    []string{"5 sites", "Support prioritaire", "Statistiques avancées", "Export des données"},
			IsActive:    true,
			Order:       2,
		},
		{
			Name:        "Pro",
			Price:       "199€",
			Period:      "24 mois",
			Description: "Deux ans, le meilleur rapport qualité-prix.",
			Features:    []string{"Sites illimités", "Support dédié", "Statistiques avancées", "Export des données", "Accès API"},
			IsActive:    true,
			Highlight:   true,
			Order:       3,
		},
	}
}

// Slugify lower-cases name, drops diacritics and joins words with dashes.
// "Offre Été" becomes "offre-ete".
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "plan"
	}
	return slug
}
