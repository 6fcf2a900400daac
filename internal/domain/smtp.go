package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SmtpSettings is an admin-managed outbound mail transport. At most one is
// active and at most one is the default.
type SmtpSettings struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Host      string             `bson:"host" json:"host"`
	Port      int                `bson:"port" json:"port"`
	Username  string             `bson:"username" json:"username"`
	Password  string             `bson:"password" json:"password,omitempty"` // encrypted at rest
	FromEmail string             `bson:"fromEmail" json:"fromEmail"`
	FromName  string             `bson:"fromName" json:"fromName"`
	Secure    bool               `bson:"secure" json:"secure"` // implicit TLS (port 465)
	IsActive  bool               `bson:"isActive" json:"isActive"`
	IsDefault bool               `bson:"isDefault" json:"isDefault"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

type SmtpRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	Host      string `json:"host" validate:"required,hostname|ip"`
	Port      int    `json:"port" validate:"required,min=1,max=65535"`
	Username  string `json:"username" validate:"max=200"`
	Password  string `json:"password" validate:"max=500"`
	FromEmail string `json:"fromEmail" validate:"required,email"`
	FromName  string `json:"fromName" validate:"max=100"`
	Secure    bool   `json:"secure"`
	IsActive  bool   `json:"isActive"`
	IsDefault bool   `json:"isDefault"`
}

type SmtpTestRequest struct {
	To string `json:"to" validate:"omitempty,email"`
}
