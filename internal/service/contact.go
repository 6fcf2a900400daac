package service

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/logger"
	"github.com/tarifly/backend/internal/mail"
)

const (
	defaultContactLimit = 20
	maxContactLimit     = 100
	maxContactLinks     = 2
)

var spamKeywords = []string{
	"viagra", "cialis", "casino", "bitcoin", "crypto", "forex", "loan",
	"porn", "make money", "seo services", "click here", "cliquez ici",
	"gagner de l'argent", "backlinks",
}

// ContactService handles the public contact form and its back-office triage.
type ContactService struct {
	contacts ContactStore
	mailer   Mailer
	adminTo  string
	validate *validator.Validate
	now      func() time.Time
}

func NewContactService(contacts ContactStore, mailer Mailer, adminTo string) *ContactService {
	return &ContactService{
		contacts: contacts,
		mailer:   mailer,
		adminTo:  adminTo,
		validate: newValidator(),
		now:      time.Now,
	}
}

// Submit stores a contact message. Messages that look like spam are kept
// but flagged, and nobody is emailed about them.
func (s *ContactService) Submit(ctx context.Context, req *domain.ContactRequest, ip, userAgent string) (*domain.Contact, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	now := s.now()
	c := &domain.Contact{
		Name:      strings.TrimSpace(req.Name),
		Email:     normalizeEmail(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Company:   strings.TrimSpace(req.Company),
		Subject:   strings.TrimSpace(req.Subject),
		Message:   strings.TrimSpace(req.Message),
		Status:    domain.ContactNew,
		Priority:  domain.PriorityNormal,
		Tags:      []string{},
		Notes:     []domain.ContactNote{},
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if IsSpam(c.Subject, c.Message) {
		c.IsSpam = true
		c.Priority = domain.PriorityLow
		c.Tags = append(c.Tags, "spam")
	}
	if err := s.contacts.Create(ctx, c); err != nil {
		return nil, domain.ErrInternal("failed to save contact", err)
	}

	log := logger.WithComponent("contact").WithField("contact_id", c.ID.Hex())
	if c.IsSpam {
		log.Info("contact flagged as spam")
		return c, nil
	}
	if err := s.mailer.Send(ctx, mail.ContactConfirmation(c.Email, c.Name, c.Subject)); err != nil {
		log.WithError(err).Warn("contact confirmation not sent")
	}
	if s.adminTo != "" {
		if err := s.mailer.Send(ctx, mail.ContactNotification(s.adminTo, c.Name, c.Email, c.Subject, c.Message)); err != nil {
			log.WithError(err).Warn("contact notification not sent")
		}
	}
	return c, nil
}

// IsSpam flags messages with a known spam keyword, too many links, or a
// shouted subject.
func IsSpam(subject, message string) bool {
	text := strings.ToLower(subject + " " + message)
	for _, kw := range spamKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	links := strings.Count(text, "http://") + strings.Count(text, "https://") + strings.Count(text, "www.")
	if links > maxContactLinks {
		return true
	}
	return isShouting(subject)
}

func isShouting(s string) bool {
	letters := 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if unicode.IsLower(r) {
			return false
		}
		letters++
	}
	return letters >= 10
}

// List returns one page of contacts. Items and total are read concurrently.
func (s *ContactService) List(ctx context.Context, f domain.ContactFilter) (*domain.ContactPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultContactLimit
	}
	if f.Limit > maxContactLimit {
		f.Limit = maxContactLimit
	}

	var (
		items []*domain.Contact
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.contacts.List(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.contacts.Count(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, domain.ErrInternal("failed to list contacts", err)
	}
	return &domain.ContactPage{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Get returns a contact, marking it read the first time it is opened.
func (s *ContactService) Get(ctx context.Context, contactID string) (*domain.Contact, error) {
	c, err := s.find(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.ContactNew {
		c.Status = domain.ContactRead
		if err := s.save(ctx, c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (s *ContactService) Update(ctx context.Context, contactID string, req *domain.ContactUpdate) (*domain.Contact, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	c, err := s.find(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if req.Status != nil {
		c.Status = *req.Status
	}
	if req.Priority != nil {
		c.Priority = *req.Priority
	}
	if req.Tags != nil {
		c.Tags = req.Tags
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ContactService) AddNote(ctx context.Context, contactID, author string, req *domain.ContactNoteRequest) (*domain.Contact, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	c, err := s.find(ctx, contactID)
	if err != nil {
		return nil, err
	}
	note := domain.ContactNote{Author: author, Content: req.Content, CreatedAt: s.now()}
	if err := s.contacts.AddNote(ctx, c.ID, note); err != nil {
		return nil, domain.ErrInternal("failed to add note", err)
	}
	c.Notes = append(c.Notes, note)
	return c, nil
}

// Reply emails the contact and records the reply as a note.
func (s *ContactService) Reply(ctx context.Context, contactID, author string, req *domain.ContactReplyRequest) (*domain.Contact, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	c, err := s.find(ctx, contactID)
	if err != nil {
		return nil, err
	}

	subject := req.Subject
	if subject == "" {
		subject = "Re: " + c.Subject
	}
	if err := s.mailer.Send(ctx, mail.ContactReply(c.Email, subject, req.Message)); err != nil {
		return nil, domain.ErrInternal("failed to send reply", err)
	}

	now := s.now()
	c.Notes = append(c.Notes, domain.ContactNote{Author: author, Content: "Réponse envoyée : " + req.Message, CreatedAt: now})
	c.Status = domain.ContactReplied
	c.RepliedAt = &now
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ContactService) Delete(ctx context.Context, contactID string) error {
	id, err := parseID(contactID, "contact")
	if err != nil {
		return err
	}
	deleted, err := s.contacts.Delete(ctx, id)
	if err != nil {
		return domain.ErrInternal("failed to delete contact", err)
	}
	if !deleted {
		return domain.ErrNotFound("contact not found")
	}
	return nil
}

func (s *ContactService) find(ctx context.Context, contactID string) (*domain.Contact, error) {
	id, err := parseID(contactID, "contact")
	if err != nil {
		return nil, err
	}
	c, err := s.contacts.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find contact", err)
	}
	if c == nil {
		return nil, domain.ErrNotFound("contact not found")
	}
	return c, nil
}

func (s *ContactService) save(ctx context.Context, c *domain.Contact) error {
	c.UpdatedAt = s.now()
	if err := s.contacts.Update(ctx, c); err != nil {
		return domain.ErrInternal("failed to update contact", err)
	}
	return nil
}
