package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ContactNew     = "new"
	ContactRead    = "read"
	ContactReplied = "replied"
	ContactClosed  = "closed"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

type ContactNote struct {
	Author    string    `bson:"author" json:"author"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Contact is a message sent through the public contact form.
type Contact struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Phone     string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Company   string             `bson:"company,omitempty" json:"company,omitempty"`
	Subject   string             `bson:"subject" json:"subject"`
	Message   string             `bson:"message" json:"message"`
	Status    string             `bson:"status" json:"status"`
	Priority  string             `bson:"priority" json:"priority"`
	Tags      []string           `bson:"tags" json:"tags"`
	Notes     []ContactNote      `bson:"notes" json:"notes"`
	IsSpam    bool               `bson:"isSpam" json:"isSpam"`
	IP        string             `bson:"ip,omitempty" json:"ip,omitempty"`
	UserAgent string             `bson:"userAgent,omitempty" json:"userAgent,omitempty"`
	RepliedAt *time.Time         `bson:"repliedAt,omitempty" json:"repliedAt,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

type ContactRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"omitempty,max=30"`
	Company string `json:"company" validate:"omitempty,max=100"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,min=10,max=5000"`
}

// ContactUpdate changes triage fields; nil fields are left untouched.
type ContactUpdate struct {
	Status   *string  `json:"status" validate:"omitempty,oneof=new read replied closed"`
	Priority *string  `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Tags     []string `json:"tags" validate:"omitempty,dive,max=50"`
}

type ContactNoteRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

type ContactReplyRequest struct {
	Subject string `json:"subject" validate:"omitempty,max=200"`
	Message string `json:"message" validate:"required,max=10000"`
}

// ContactFilter narrows the admin contact list.
type ContactFilter struct {
	Status string
	Search string
	Page   int
	Limit  int
}

// ContactPage is one page of contacts plus the total matching count.
type ContactPage struct {
	Items []*Contact `json:"items"`
	Total int64      `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}
