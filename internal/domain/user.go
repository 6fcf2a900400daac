package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleAdmin    = "admin"
	RoleUser     = "user"
	RoleCustomer = "customer"
)

// User represents a registered account. Users are never hard-deleted.
type User struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email           string             `bson:"email" json:"email"`
	Password        string             `bson:"password" json:"-"` // bcrypt hash, never serialized
	FirstName       string             `bson:"firstName" json:"firstName"`
	LastName        string             `bson:"lastName" json:"lastName"`
	Role            string             `bson:"role" json:"role"`
	AffiliationCode string             `bson:"affiliationCode,omitempty" json:"affiliationCode,omitempty"`

	IsVerified            bool       `bson:"isVerified" json:"isVerified"`
	VerificationTokenHash string     `bson:"verificationTokenHash,omitempty" json:"-"`
	VerificationExpires   *time.Time `bson:"verificationExpires,omitempty" json:"-"`

	FailedLoginAttempts int        `bson:"failedLoginAttempts" json:"-"`
	LockUntil           *time.Time `bson:"lockUntil,omitempty" json:"-"`

	ResetPasswordTokenHash string     `bson:"resetPasswordTokenHash,omitempty" json:"-"`
	ResetPasswordExpires   *time.Time `bson:"resetPasswordExpires,omitempty" json:"-"`

	LastLoginAt *time.Time `bson:"lastLoginAt,omitempty" json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// IsLocked reports whether login is currently blocked after repeated failures.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// HasRole reports whether the user's role is one of roles.
func (u *User) HasRole(roles ...string) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// JWTClaims represents the JWT payload.
type JWTClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// RegisterRequest is the validated input for self-service signup.
type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	FirstName       string `json:"firstName" validate:"required,max=100"`
	LastName        string `json:"lastName" validate:"required,max=100"`
	PlanID          string `json:"planId" validate:"omitempty,len=24,hexadecimal"`
	AffiliationCode string `json:"affiliationCode" validate:"omitempty,len=4,numeric"`
}

// LoginRequest is the validated input for logging in.
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=1"`
	RememberMe bool   `json:"rememberMe"`
}

// LoginResponse is the API response after successful login. The tokens are
// also set as httpOnly cookies by the handler.
type LoginResponse struct {
	Token        string        `json:"token"`
	RefreshToken string        `json:"-"`
	TokenTTL     time.Duration `json:"-"`
	User         *UserResponse `json:"user"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// UserResponse is the safe API response for a user (no password).
type UserResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Role            string     `json:"role"`
	AffiliationCode string     `json:"affiliationCode,omitempty"`
	IsVerified      bool       `json:"isVerified"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ToResponse strips credentials and internal fields.
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:              u.ID.Hex(),
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Role:            u.Role,
		AffiliationCode: u.AffiliationCode,
		IsVerified:      u.IsVerified,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}

// MeResponse is returned by /api/auth/me.
type MeResponse struct {
	User         *UserResponse `json:"user"`
	Subscription *Subscription `json:"subscription"`
}
