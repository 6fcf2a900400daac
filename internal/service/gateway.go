package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/logger"
	"github.com/tarifly/backend/pkg/payment"
)

// ProviderResolver builds a client for the active gateway of a provider.
type ProviderResolver interface {
	Provider(ctx context.Context, name string) (payment.Provider, error)
}

// ProviderFactory builds a provider client from decrypted credentials.
type ProviderFactory func(provider string, creds payment.Credentials) (payment.Provider, error)

// GatewayService manages payment gateway configuration and resolves the
// provider clients the payment flows run against.
type GatewayService struct {
	gateways GatewayStore
	box      SecretBox
	factory  ProviderFactory
	validate *validator.Validate
	now      func() time.Time
}

// NewGatewayService creates a GatewayService whose providers are built with
// payment.New and opts.
func NewGatewayService(gateways GatewayStore, box SecretBox, opts ...payment.Option) *GatewayService {
	return &GatewayService{
		gateways: gateways,
		box:      box,
		factory: func(provider string, creds payment.Credentials) (payment.Provider, error) {
			return payment.New(provider, creds, opts...)
		},
		validate: newValidator(),
		now:      time.Now,
	}
}

// SetProviderFactory replaces how provider clients are built.
func (s *GatewayService) SetProviderFactory(f ProviderFactory) {
	s.factory = f
}

// Provider returns a client for the active gateway of name.
func (s *GatewayService) Provider(ctx context.Context, name string) (payment.Provider, error) {
	_, p, err := s.Active(ctx, name)
	return p, err
}

// Active returns the active gateway of provider name and a client for it.
func (s *GatewayService) Active(ctx context.Context, name string) (*domain.PaymentGateway, payment.Provider, error) {
	g, err := s.gateways.FindActive(ctx, name)
	if err != nil {
		return nil, nil, domain.ErrInternal("failed to find gateway", err)
	}
	if g == nil {
		return nil, nil, domain.ErrBadRequest(name + " gateway not configured")
	}
	p, err := s.client(g)
	if err != nil {
		return nil, nil, err
	}
	return g, p, nil
}

func (s *GatewayService) client(g *domain.PaymentGateway) (payment.Provider, error) {
	plain, err := s.open(g.Config)
	if err != nil {
		return nil, domain.ErrInternal("failed to decrypt gateway credentials", err)
	}
	p, err := s.factory(g.Provider, payment.Credentials{
		SecretKey:      plain.SecretKey,
		PublishableKey: plain.PublishableKey,
		WebhookSecret:  plain.WebhookSecret,
		APIKey:         plain.APIKey,
		ProfileID:      plain.ProfileID,
	})
	switch {
	case errors.Is(err, payment.ErrUnsupportedProvider):
		return nil, domain.ErrBadRequest(g.Provider + " payments are not supported")
	case errors.Is(err, payment.ErrMissingCredentials):
		return nil, domain.ErrBadRequest(g.Provider + " gateway is missing credentials")
	case err != nil:
		return nil, domain.ErrInternal("failed to build provider", err)
	}
	return p, nil
}

// PublicList returns the client-safe view of active gateways.
func (s *GatewayService) PublicList(ctx context.Context) ([]*domain.PublicGateway, error) {
	gateways, err := s.gateways.ListActive(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list gateways", err)
	}
	out := make([]*domain.PublicGateway, 0, len(gateways))
	for _, g := range gateways {
		out = append(out, g.Public())
	}
	return out, nil
}

// List returns every gateway with its secrets masked.
func (s *GatewayService) List(ctx context.Context) ([]*domain.PaymentGateway, error) {
	gateways, err := s.gateways.List(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list gateways", err)
	}
	out := make([]*domain.PaymentGateway, 0, len(gateways))
	for _, g := range gateways {
		out = append(out, s.masked(g))
	}
	return out, nil
}

func (s *GatewayService) Get(ctx context.Context, gatewayID string) (*domain.PaymentGateway, error) {
	g, err := s.find(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	return s.masked(g), nil
}

func (s *GatewayService) find(ctx context.Context, gatewayID string) (*domain.PaymentGateway, error) {
	id, err := parseID(gatewayID, "gateway")
	if err != nil {
		return nil, err
	}
	g, err := s.gateways.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find gateway", err)
	}
	if g == nil {
		return nil, domain.ErrNotFound("gateway not found")
	}
	return g, nil
}

// Create stores a new gateway. Each provider may be configured once.
func (s *GatewayService) Create(ctx context.Context, req *domain.GatewayRequest) (*domain.PaymentGateway, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	existing, err := s.gateways.FindByProvider(ctx, req.Provider)
	if err != nil {
		return nil, domain.ErrInternal("failed to check gateway", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict(req.Provider + " gateway already exists")
	}

	sealed, err := s.seal(req.Config, domain.GatewayConfig{})
	if err != nil {
		return nil, err
	}
	g := &domain.PaymentGateway{
		Provider:  req.Provider,
		Name:      strings.TrimSpace(req.Name),
		Mode:      modeOrDefault(req.Mode),
		IsActive:  req.IsActive,
		IsDefault: req.IsDefault,
		Config:    sealed,
	}
	if err := s.gateways.Create(ctx, g); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.ErrConflict(req.Provider + " gateway already exists")
		}
		return nil, domain.ErrInternal("failed to create gateway", err)
	}
	logger.WithComponent("gateways").Infof("gateway %s created (%s)", g.Provider, g.Mode)
	return s.masked(g), nil
}

// Update rewrites a gateway. Secrets sent empty or still masked keep their
// stored value.
func (s *GatewayService) Update(ctx context.Context, gatewayID string, req *domain.GatewayRequest) (*domain.PaymentGateway, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	g, err := s.find(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	if req.Provider != g.Provider {
		other, err := s.gateways.FindByProvider(ctx, req.Provider)
		if err != nil {
			return nil, domain.ErrInternal("failed to check gateway", err)
		}
		if other != nil {
			return nil, domain.ErrConflict(req.Provider + " gateway already exists")
		}
	}

	sealed, err := s.seal(req.Config, g.Config)
	if err != nil {
		return nil, err
	}
	g.Provider = req.Provider
	g.Name = strings.TrimSpace(req.Name)
	g.Mode = modeOrDefault(req.Mode)
	g.IsActive = req.IsActive
	g.IsDefault = req.IsDefault
	g.Config = sealed
	if err := s.save(ctx, g); err != nil {
		return nil, err
	}
	return s.masked(g), nil
}

func (s *GatewayService) Delete(ctx context.Context, gatewayID string) error {
	id, err := parseID(gatewayID, "gateway")
	if err != nil {
		return err
	}
	deleted, err := s.gateways.Delete(ctx, id)
	if err != nil {
		return domain.ErrInternal("failed to delete gateway", err)
	}
	if !deleted {
		return domain.ErrNotFound("gateway not found")
	}
	return nil
}

// Activate makes the gateway the only active one.
func (s *GatewayService) Activate(ctx context.Context, gatewayID string) (*domain.PaymentGateway, error) {
	return s.setActive(ctx, gatewayID, true)
}

func (s *GatewayService) Deactivate(ctx context.Context, gatewayID string) (*domain.PaymentGateway, error) {
	return s.setActive(ctx, gatewayID, false)
}

func (s *GatewayService) setActive(ctx context.Context, gatewayID string, active bool) (*domain.PaymentGateway, error) {
	g, err := s.find(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	g.IsActive = active
	if err := s.save(ctx, g); err != nil {
		return nil, err
	}
	logger.WithComponent("gateways").Infof("gateway %s active=%t", g.Provider, active)
	return s.masked(g), nil
}

// Test checks the stored credentials against the provider.
func (s *GatewayService) Test(ctx context.Context, gatewayID string) error {
	g, err := s.find(ctx, gatewayID)
	if err != nil {
		return err
	}
	p, err := s.client(g)
	if err != nil {
		return err
	}
	if err := p.Ping(ctx); err != nil {
		return domain.ErrProvider(g.Provider, err)
	}
	return nil
}

func (s *GatewayService) save(ctx context.Context, g *domain.PaymentGateway) error {
	g.UpdatedAt = s.now()
	if err := s.gateways.Update(ctx, g); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.ErrConflict(g.Provider + " gateway already exists")
		}
		return domain.ErrInternal("failed to update gateway", err)
	}
	return nil
}

// seal encrypts the secret fields of in, keeping the matching field of
// stored when the incoming one is empty or masked.
func (s *GatewayService) seal(in, stored domain.GatewayConfig) (domain.GatewayConfig, error) {
	out := domain.GatewayConfig{
		PublishableKey: in.PublishableKey,
		ProfileID:      in.ProfileID,
	}
	fields := []struct {
		in, stored string
		out        *string
	}{
		{in.SecretKey, stored.SecretKey, &out.SecretKey},
		{in.WebhookSecret, stored.WebhookSecret, &out.WebhookSecret},
		{in.APIKey, stored.APIKey, &out.APIKey},
	}
	for _, f := range fields {
		if f.in == "" || domain.IsMasked(f.in) {
			*f.out = f.stored
			continue
		}
		sealed, err := s.box.Seal(f.in)
		if err != nil {
			return out, domain.ErrInternal("failed to encrypt gateway secret", err)
		}
		*f.out = sealed
	}
	return out, nil
}

func (s *GatewayService) open(c domain.GatewayConfig) (domain.GatewayConfig, error) {
	out := c
	var err error
	if out.SecretKey, err = s.box.Open(c.SecretKey); err != nil {
		return out, fmt.Errorf("secretKey: %w", err)
	}
	if out.WebhookSecret, err = s.box.Open(c.WebhookSecret); err != nil {
		return out, fmt.Errorf("webhookSecret: %w", err)
	}
	if out.APIKey, err = s.box.Open(c.APIKey); err != nil {
		return out, fmt.Errorf("apiKey: %w", err)
	}
	return out, nil
}

// masked hides the secrets of g. Values that fail to decrypt are shown as
// fully masked rather than failing the whole listing.
func (s *GatewayService) masked(g *domain.PaymentGateway) *domain.PaymentGateway {
	plain, err := s.open(g.Config)
	if err != nil {
		logger.WithComponent("gateways").WithError(err).Warnf("cannot decrypt %s gateway secrets", g.Provider)
		plain = domain.GatewayConfig{
			PublishableKey: g.Config.PublishableKey,
			ProfileID:      g.Config.ProfileID,
			SecretKey:      nonEmptyPlaceholder(g.Config.SecretKey),
			WebhookSecret:  nonEmptyPlaceholder(g.Config.WebhookSecret),
			APIKey:         nonEmptyPlaceholder(g.Config.APIKey),
		}
	}
	return g.Masked(plain)
}

func nonEmptyPlaceholder(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func modeOrDefault(mode string) string {
	if mode == "" {
		return "test"
	}
	return mode
}
