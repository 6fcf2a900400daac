package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/mail"
	"github.com/tarifly/backend/internal/testutils"
)

type recordingSender struct {
	mu    sync.Mutex
	hosts []string
	pass  []string
	err   error
}

func (r *recordingSender) send(_ context.Context, cfg mail.Config, _ mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts = append(r.hosts, cfg.Host)
	r.pass = append(r.pass, cfg.Password)
	return r.err
}

func newMailService(t *testing.T) (*MailService, *testutils.SmtpStore, *recordingSender) {
	t.Helper()
	store := testutils.NewSmtpStore()
	svc := NewMailService(store, testutils.NewEncryptor(), mail.Config{Host: "env.smtp.test", Port: 25, FromEmail: "no-reply@example.com"}, "")
	rec := &recordingSender{}
	svc.SetSender(rec.send)
	return svc, store, rec
}

func smtpRequest(name, host string) *domain.SmtpRequest {
	return &domain.SmtpRequest{
		Name:      name,
		Host:      host,
		Port:      587,
		Username:  "mailer",
		Password:  "s3cret-password",
		FromEmail: "billing@example.com",
	}
}

func TestMailService_TransportResolution(t *testing.T) {
	svc, _, rec := newMailService(t)
	ctx := context.Background()
	msg := mail.Message{To: "ada@example.com", Subject: "Hi"}

	require.NoError(t, svc.Send(ctx, msg))

	def := smtpRequest("Default", "default.smtp.test")
	def.IsDefault = true
	_, err := svc.Create(ctx, def)
	require.NoError(t, err)
	require.NoError(t, svc.Send(ctx, msg))

	act := smtpRequest("Active", "active.smtp.test")
	act.IsActive = true
	_, err = svc.Create(ctx, act)
	require.NoError(t, err)
	require.NoError(t, svc.Send(ctx, msg))

	assert.Equal(t, []string{"env.smtp.test", "default.smtp.test", "active.smtp.test"}, rec.hosts)
	assert.Equal(t, "s3cret-password", rec.pass[2], "password is decrypted for delivery")
}

func TestMailService_PasswordIsSealedAndMasked(t *testing.T) {
	svc, store, rec := newMailService(t)
	ctx := context.Background()

	req := smtpRequest("Main", "smtp.example.com")
	req.IsActive = true
	created, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "********", created.Password)

	stored, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-password", stored.Password)

	// Echoing the masked value back keeps the stored password.
	req.Password = created.Password
	req.Port = 465
	req.Secure = true
	updated, err := svc.Update(ctx, created.ID.Hex(), req)
	require.NoError(t, err)
	assert.Equal(t, 465, updated.Port)

	require.NoError(t, svc.Send(ctx, mail.Message{To: "x@example.com"}))
	assert.Equal(t, "s3cret-password", rec.pass[0])

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "********", list[0].Password)
}

func TestMailService_Test(t *testing.T) {
	svc, _, rec := newMailService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, smtpRequest("Main", "smtp.example.com"))
	require.NoError(t, err)

	require.NoError(t, svc.Test(ctx, created.ID.Hex(), "ops@example.com"))

	rec.err = errors.New("535 authentication failed")
	err = svc.Test(ctx, created.ID.Hex(), "ops@example.com")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
	assert.Contains(t, err.Error(), "535")
}

func TestMailService_Validation(t *testing.T) {
	svc, _, _ := newMailService(t)
	_, err := svc.Create(context.Background(), &domain.SmtpRequest{Name: "x", Host: "not a host!", Port: 0, FromEmail: "nope"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
}

func TestMailService_Delete(t *testing.T) {
	svc, _, _ := newMailService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, smtpRequest("Main", "smtp.example.com"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID.Hex()))
	assert.Equal(t, http.StatusNotFound, appCode(t, svc.Delete(ctx, created.ID.Hex())))
}

func TestMailService_AdminRecipient(t *testing.T) {
	svc, _, _ := newMailService(t)
	assert.Equal(t, "no-reply@example.com", svc.AdminRecipient())

	svc.adminTo = "team@example.com"
	assert.Equal(t, "team@example.com", svc.AdminRecipient())
}
