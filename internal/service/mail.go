package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/logger"
	"github.com/tarifly/backend/internal/mail"
	"github.com/tarifly/backend/internal/metrics"
)

// Mailer sends a transactional email.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// SendFunc delivers one message through a resolved transport.
type SendFunc func(ctx context.Context, cfg mail.Config, msg mail.Message) error

// MailService sends email through the SMTP settings managed in the
// back-office, falling back to the environment configuration.
type MailService struct {
	settings SmtpStore
	box      SecretBox
	fallback mail.Config
	adminTo  string
	send     SendFunc
	validate *validator.Validate
	now      func() time.Time
}

// NewMailService creates a new MailService.
func NewMailService(settings SmtpStore, box SecretBox, fallback mail.Config, adminTo string) *MailService {
	return &MailService{
		settings: settings,
		box:      box,
		fallback: fallback,
		adminTo:  adminTo,
		send:     mail.Send,
		validate: newValidator(),
		now:      time.Now,
	}
}

// SetSender replaces the SMTP delivery function.
func (s *MailService) SetSender(f SendFunc) {
	s.send = f
}

// AdminRecipient is where back-office notifications go.
func (s *MailService) AdminRecipient() string {
	if s.adminTo != "" {
		return s.adminTo
	}
	return s.fallback.FromEmail
}

// Send delivers msg with the active settings, else the default ones, else
// the environment configuration.
func (s *MailService) Send(ctx context.Context, msg mail.Message) error {
	cfg, err := s.transport(ctx)
	if err != nil {
		metrics.EmailsSent.WithLabelValues("error").Inc()
		return err
	}
	return s.deliver(ctx, cfg, msg)
}

func (s *MailService) deliver(ctx context.Context, cfg mail.Config, msg mail.Message) error {
	err := s.send(ctx, cfg, msg)
	switch {
	case errors.Is(err, mail.ErrNotConfigured):
		metrics.EmailsSent.WithLabelValues("skipped").Inc()
		logger.WithComponent("mail").Warnf("no smtp transport, dropping %q to %s", msg.Subject, msg.To)
		return err
	case err != nil:
		metrics.EmailsSent.WithLabelValues("error").Inc()
		return err
	}
	metrics.EmailsSent.WithLabelValues("sent").Inc()
	return nil
}

func (s *MailService) transport(ctx context.Context) (mail.Config, error) {
	st, err := s.settings.FindActive(ctx)
	if err != nil {
		return mail.Config{}, err
	}
	if st == nil {
		if st, err = s.settings.FindDefault(ctx); err != nil {
			return mail.Config{}, err
		}
	}
	if st == nil {
		return s.fallback, nil
	}
	return s.configFor(st)
}

func (s *MailService) configFor(st *domain.SmtpSettings) (mail.Config, error) {
	password, err := s.box.Open(st.Password)
	if err != nil {
		return mail.Config{}, err
	}
	return mail.Config{
		Host:      st.Host,
		Port:      st.Port,
		Username:  st.Username,
		Password:  password,
		FromEmail: st.FromEmail,
		FromName:  st.FromName,
		Secure:    st.Secure,
	}, nil
}

func (s *MailService) List(ctx context.Context) ([]*domain.SmtpSettings, error) {
	list, err := s.settings.List(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list smtp settings", err)
	}
	for _, st := range list {
		maskPassword(st)
	}
	return list, nil
}

func (s *MailService) Create(ctx context.Context, req *domain.SmtpRequest) (*domain.SmtpSettings, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	st := &domain.SmtpSettings{}
	if err := s.apply(st, req); err != nil {
		return nil, err
	}
	if err := s.settings.Create(ctx, st); err != nil {
		return nil, domain.ErrInternal("failed to create smtp settings", err)
	}
	maskPassword(st)
	return st, nil
}

// Update rewrites settings. An empty or masked password keeps the stored one.
func (s *MailService) Update(ctx context.Context, settingsID string, req *domain.SmtpRequest) (*domain.SmtpSettings, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	st, err := s.find(ctx, settingsID)
	if err != nil {
		return nil, err
	}
	if err := s.apply(st, req); err != nil {
		return nil, err
	}
	if err := s.settings.Update(ctx, st); err != nil {
		return nil, domain.ErrInternal("failed to update smtp settings", err)
	}
	maskPassword(st)
	return st, nil
}

func (s *MailService) apply(st *domain.SmtpSettings, req *domain.SmtpRequest) error {
	st.Name = strings.TrimSpace(req.Name)
	st.Host = strings.TrimSpace(req.Host)
	st.Port = req.Port
	st.Username = req.Username
	st.FromEmail = req.FromEmail
	st.FromName = req.FromName
	st.Secure = req.Secure
	st.IsActive = req.IsActive
	st.IsDefault = req.IsDefault
	st.UpdatedAt = s.now()
	if req.Password != "" && !domain.IsMasked(req.Password) {
		sealed, err := s.box.Seal(req.Password)
		if err != nil {
			return domain.ErrInternal("failed to encrypt smtp password", err)
		}
		st.Password = sealed
	}
	return nil
}

func (s *MailService) Delete(ctx context.Context, settingsID string) error {
	id, err := parseID(settingsID, "smtp settings")
	if err != nil {
		return err
	}
	deleted, err := s.settings.Delete(ctx, id)
	if err != nil {
		return domain.ErrInternal("failed to delete smtp settings", err)
	}
	if !deleted {
		return domain.ErrNotFound("smtp settings not found")
	}
	return nil
}

// Test sends a test message through the given settings.
func (s *MailService) Test(ctx context.Context, settingsID, to string) error {
	st, err := s.find(ctx, settingsID)
	if err != nil {
		return err
	}
	cfg, err := s.configFor(st)
	if err != nil {
		return domain.ErrInternal("failed to decrypt smtp password", err)
	}
	if err := s.deliver(ctx, cfg, mail.SmtpTest(to)); err != nil {
		return domain.ErrBadRequest("smtp test failed: " + err.Error())
	}
	return nil
}

func (s *MailService) find(ctx context.Context, settingsID string) (*domain.SmtpSettings, error) {
	id, err := parseID(settingsID, "smtp settings")
	if err != nil {
		return nil, err
	}
	st, err := s.settings.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find smtp settings", err)
	}
	if st == nil {
		return nil, domain.ErrNotFound("smtp settings not found")
	}
	return st, nil
}

func maskPassword(st *domain.SmtpSettings) {
	if st.Password != "" {
		st.Password = "********"
	}
}
