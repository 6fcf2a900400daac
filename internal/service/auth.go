package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/logger"
	"github.com/tarifly/backend/internal/mail"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	resetTokenTTL        = time.Hour
	verificationTokenTTL = 24 * time.Hour
)

// AuthConfig carries the settings AuthService needs.
type AuthConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	RememberMeTTL    time.Duration
	RefreshTTL       time.Duration
	MaxLoginAttempts int
	LockDuration     time.Duration
	AdminEmail       string
	AdminPassword    string
	FrontendURL      string
}

// AuthService handles authentication, JWT, and user management.
type AuthService struct {
	cfg      AuthConfig
	users    UserStore
	plans    PlanStore
	subs     SubscriptionStore
	mailer   Mailer
	validate *validator.Validate
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg AuthConfig, users UserStore, plans PlanStore, subs SubscriptionStore, mailer Mailer) *AuthService {
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 5
	}
	return &AuthService{
		cfg:      cfg,
		users:    users,
		plans:    plans,
		subs:     subs,
		mailer:   mailer,
		validate: newValidator(),
		now:      time.Now,
	}
}

// SeedAdmin creates the default admin user if it doesn't exist.
func (s *AuthService) SeedAdmin(ctx context.Context) error {
	if s.cfg.AdminPassword == "" {
		logger.Log.Warn("ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}
	existing, err := s.users.FindByEmail(ctx, s.cfg.AdminEmail)
	if err != nil {
		return fmt.Errorf("failed to check admin existence: %w", err)
	}
	if existing != nil {
		logger.Log.Infof("admin user already exists (%s)", s.cfg.AdminEmail)
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(s.cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := s.now()
	admin := &domain.User{
		Email:      s.cfg.AdminEmail,
		Password:   string(hashed),
		FirstName:  "Admin",
		Role:       domain.RoleAdmin,
		IsVerified: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Log.Infof("admin user created (%s)", s.cfg.AdminEmail)
	return nil
}

// Register creates a customer account. With a plan it also opens a pending
// subscription, carrying the referring affiliate when a code is given.
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.UserResponse, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	email := normalizeEmail(req.Email)

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, domain.ErrInternal("failed to check user", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("email already registered")
	}

	var plan *domain.Plan
	if req.PlanID != "" {
		if plan, err = s.activePlan(ctx, req.PlanID); err != nil {
			return nil, err
		}
	}

	var affiliate *domain.User
	if req.AffiliationCode != "" {
		affiliate, err = s.users.FindByAffiliationCode(ctx, req.AffiliationCode)
		if err != nil {
			return nil, domain.ErrInternal("failed to check affiliation code", err)
		}
		if affiliate == nil {
			return nil, domain.ErrValidation([]domain.FieldError{{Field: "affiliationCode", Message: "unknown affiliation code"}})
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("failed to hash password", err)
	}
	verifyToken, verifyHash, err := newOpaqueToken()
	if err != nil {
		return nil, domain.ErrInternal("failed to create verification token", err)
	}

	now := s.now()
	verifyExpires := now.Add(verificationTokenTTL)
	user := &domain.User{
		Email:                 email,
		Password:              string(hashed),
		FirstName:             strings.TrimSpace(req.FirstName),
		LastName:              strings.TrimSpace(req.LastName),
		Role:                  domain.RoleCustomer,
		VerificationTokenHash: verifyHash,
		VerificationExpires:   &verifyExpires,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.ErrConflict("email already registered")
		}
		return nil, domain.ErrInternal("failed to create user", err)
	}

	if plan != nil {
		sub := &domain.Subscription{
			UserID:    user.ID,
			Status:    domain.SubscriptionPending,
			StartDate: now,
		}
		sub.ApplyPlan(plan)
		if affiliate != nil {
			sub.AffiliationCode = affiliate.AffiliationCode
			sub.AffiliatedUserID = &affiliate.ID
			sub.SaleValue = plan.PriceValue()
		}
		if err := s.subs.Create(ctx, sub); err != nil {
			return nil, domain.ErrInternal("failed to create subscription", err)
		}
	}

	link := fmt.Sprintf("%s/verify-email?token=%s", s.cfg.FrontendURL, verifyToken)
	if err := s.mailer.Send(ctx, mail.Verification(user.Email, user.FirstName, link)); err != nil {
		logger.WithUser(user.ID.Hex()).WithError(err).Warn("verification email not sent")
	}

	logger.WithUser(user.ID.Hex()).Info("user registered")
	return user.ToResponse(), nil
}

// Login validates credentials and returns a signed token. Repeated failures
// lock the account for LockDuration.
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	now := s.now()
	if user.IsLocked(now) {
		return nil, domain.ErrUnauthorized("account temporarily locked, try again later")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		user.FailedLoginAttempts++
		if user.FailedLoginAttempts >= s.cfg.MaxLoginAttempts {
			until := now.Add(s.cfg.LockDuration)
			user.LockUntil = &until
			user.FailedLoginAttempts = 0
			logger.WithUser(user.ID.Hex()).Warn("account locked after repeated login failures")
		}
		if uerr := s.users.Update(ctx, user); uerr != nil {
			logger.WithUser(user.ID.Hex()).WithError(uerr).Error("failed to record login failure")
		}
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	user.FailedLoginAttempts = 0
	user.LockUntil = nil
	user.LastLoginAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, domain.ErrInternal("failed to update user", err)
	}

	ttl := s.cfg.TokenTTL
	if req.RememberMe {
		ttl = s.cfg.RememberMeTTL
	}
	return s.issue(user, ttl)
}

// Refresh exchanges a refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.LoginResponse, error) {
	claims, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, claims.Sub)
	if err != nil {
		return nil, err
	}
	return s.issue(user, s.cfg.TokenTTL)
}

func (s *AuthService) issue(user *domain.User, ttl time.Duration) (*domain.LoginResponse, error) {
	access, err := s.sign(user, ttl, tokenTypeAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user, s.cfg.RefreshTTL, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResponse{
		Token:        access,
		RefreshToken: refresh,
		TokenTTL:     ttl,
		User:         user.ToResponse(),
	}, nil
}

func (s *AuthService) sign(user *domain.User, ttl time.Duration, typ string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   user.ID.Hex(),
		"email": user.Email,
		"role":  user.Role,
		"typ":   typ,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", domain.ErrInternal("failed to sign token", err)
	}
	return signed, nil
}

// VerifyToken validates an access token and returns the claims.
func (s *AuthService) VerifyToken(tokenStr string) (*domain.JWTClaims, error) {
	return s.parse(tokenStr, tokenTypeAccess)
}

func (s *AuthService) parse(tokenStr, wantType string) (*domain.JWTClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized("invalid token claims")
	}
	if getClaimString(claims, "typ") != wantType {
		return nil, domain.ErrUnauthorized("invalid token type")
	}

	return &domain.JWTClaims{
		Sub:   getClaimString(claims, "sub"),
		Email: getClaimString(claims, "email"),
		Role:  getClaimString(claims, "role"),
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// Authenticate verifies an access token and loads its user. The role is
// taken from the stored user, not the token, so demotions apply at once.
func (s *AuthService) Authenticate(ctx context.Context, tokenStr string) (*domain.User, error) {
	claims, err := s.VerifyToken(tokenStr)
	if err != nil {
		return nil, err
	}
	return s.loadUser(ctx, claims.Sub)
}

func (s *AuthService) loadUser(ctx context.Context, hexID string) (*domain.User, error) {
	id, err := primitive.ObjectIDFromHex(hexID)
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid token subject")
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to load user", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthorized("user no longer exists")
	}
	return user, nil
}

// ForgotPassword mails a reset link. Unknown emails succeed silently so the
// endpoint cannot be used to enumerate accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, req *domain.ForgotPasswordRequest) error {
	if err := validate(s.validate, req); err != nil {
		return err
	}
	user, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil
	}

	token, hash, err := newOpaqueToken()
	if err != nil {
		return domain.ErrInternal("failed to create reset token", err)
	}
	expires := s.now().Add(resetTokenTTL)
	user.ResetPasswordTokenHash = hash
	user.ResetPasswordExpires = &expires
	if err := s.users.Update(ctx, user); err != nil {
		return domain.ErrInternal("failed to store reset token", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.FrontendURL, token)
	if err := s.mailer.Send(ctx, mail.PasswordReset(user.Email, user.FirstName, link)); err != nil {
		logger.WithUser(user.ID.Hex()).WithError(err).Error("password reset email not sent")
	}
	return nil
}

// ResetPassword sets a new password from a valid reset token. The token is
// single use and the lockout is cleared.
func (s *AuthService) ResetPassword(ctx context.Context, req *domain.ResetPasswordRequest) error {
	if err := validate(s.validate, req); err != nil {
		return err
	}
	user, err := s.users.FindByResetToken(ctx, hashToken(req.Token), s.now())
	if err != nil {
		return domain.ErrInternal("failed to find reset token", err)
	}
	if user == nil {
		return domain.ErrBadRequest("invalid or expired reset token")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.ErrInternal("failed to hash password", err)
	}
	user.Password = string(hashed)
	user.ResetPasswordTokenHash = ""
	user.ResetPasswordExpires = nil
	user.FailedLoginAttempts = 0
	user.LockUntil = nil
	if err := s.users.Update(ctx, user); err != nil {
		return domain.ErrInternal("failed to update password", err)
	}
	logger.WithUser(user.ID.Hex()).Info("password reset")
	return nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return domain.ErrBadRequest("missing verification token")
	}
	user, err := s.users.FindByVerificationToken(ctx, hashToken(token), s.now())
	if err != nil {
		return domain.ErrInternal("failed to find verification token", err)
	}
	if user == nil {
		return domain.ErrBadRequest("invalid or expired verification token")
	}
	user.IsVerified = true
	user.VerificationTokenHash = ""
	user.VerificationExpires = nil
	if err := s.users.Update(ctx, user); err != nil {
		return domain.ErrInternal("failed to verify email", err)
	}
	return nil
}

// Me returns the profile and current subscription of the caller.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.MeResponse, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub, err := currentSubscription(ctx, s.subs, user.ID)
	if err != nil {
		return nil, err
	}
	return &domain.MeResponse{User: user.ToResponse(), Subscription: sub}, nil
}

// ListUsers returns all users (admin only).
func (s *AuthService) ListUsers(ctx context.Context) ([]*domain.UserResponse, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list users", err)
	}
	out := make([]*domain.UserResponse, len(users))
	for i, u := range users {
		out[i] = u.ToResponse()
	}
	return out, nil
}

const affiliationAttempts = 20

// AssignAffiliationCode gives a user a random unused 4-digit code. An
// existing code is kept.
func (s *AuthService) AssignAffiliationCode(ctx context.Context, userID string) (*domain.UserResponse, error) {
	id, err := parseID(userID, "user")
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}
	if user.AffiliationCode != "" {
		return user.ToResponse(), nil
	}

	for i := 0; i < affiliationAttempts; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10000))
		if err != nil {
			return nil, domain.ErrInternal("failed to generate code", err)
		}
		code := fmt.Sprintf("%04d", n.Int64())

		taken, err := s.users.FindByAffiliationCode(ctx, code)
		if err != nil {
			return nil, domain.ErrInternal("failed to check code", err)
		}
		if taken != nil {
			continue
		}

		user.AffiliationCode = code
		err = s.users.Update(ctx, user)
		if errors.Is(err, domain.ErrDuplicate) {
			user.AffiliationCode = ""
			continue
		}
		if err != nil {
			return nil, domain.ErrInternal("failed to save code", err)
		}
		return user.ToResponse(), nil
	}
	return nil, domain.ErrInternal("no free affiliation code found", nil)
}

// ValidateAffiliationCode reports whether code belongs to an affiliate.
func (s *AuthService) ValidateAffiliationCode(ctx context.Context, code string) (bool, error) {
	if len(code) != 4 {
		return false, nil
	}
	user, err := s.users.FindByAffiliationCode(ctx, code)
	if err != nil {
		return false, domain.ErrInternal("failed to check code", err)
	}
	return user != nil, nil
}

func (s *AuthService) activePlan(ctx context.Context, planID string) (*domain.Plan, error) {
	id, err := parseID(planID, "plan")
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find plan", err)
	}
	if plan == nil || !plan.IsActive {
		return nil, domain.ErrNotFound("plan not found")
	}
	return plan, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// newOpaqueToken returns a random token for a link and the hash to store.
func newOpaqueToken() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token := hex.EncodeToString(buf)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
