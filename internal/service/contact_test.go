package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarifly/backend/internal/domain"
)

func contactRequest(subject, message string) *domain.ContactRequest {
	return &domain.ContactRequest{
		Name:    "Jeanne",
		Email:   "Jeanne@Example.com",
		Subject: subject,
		Message: message,
	}
}

func TestIsSpam(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		message string
		want    bool
	}{
		{"ordinary", "Question sur l'offre Pro", "Bonjour, est-ce que l'offre inclut le support ?", false},
		{"keyword", "Partenariat", "Best SEO services for your site", true},
		{"keyword in subject", "CASINO bonus", "Rien de spécial ici, juste un message.", true},
		{"two links", "Liens", "Voir https://a.example et https://b.example merci", false},
		{"three links", "Liens", "https://a.example https://b.example www.c.example", true},
		{"shouted subject", "URGENT REPONDEZ VITE", "Bonjour, merci de me rappeler.", true},
		{"short caps subject", "SAV", "Bonjour, merci de me rappeler.", false},
		{"mixed case subject", "URGENT Question", "Bonjour, merci de me rappeler.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSpam(tt.subject, tt.message))
		})
	}
}

func TestSubmit_NotifiesAndConfirms(t *testing.T) {
	e := newTestEnv(t)
	c, err := e.contactSvc.Submit(context.Background(), contactRequest("Question", "Bonjour, une question sur la facturation."), "10.0.0.1", "curl/8")
	require.NoError(t, err)

	assert.Equal(t, "jeanne@example.com", c.Email)
	assert.Equal(t, domain.ContactNew, c.Status)
	assert.Equal(t, domain.PriorityNormal, c.Priority)
	assert.False(t, c.IsSpam)
	assert.Equal(t, "10.0.0.1", c.IP)

	assert.Len(t, e.sentTo("jeanne@example.com"), 1)
	require.Len(t, e.sentTo("team@example.com"), 1)
	assert.Equal(t, "jeanne@example.com", e.sentTo("team@example.com")[0].ReplyTo)
}

func TestSubmit_SpamIsFlaggedQuietly(t *testing.T) {
	e := newTestEnv(t)
	c, err := e.contactSvc.Submit(context.Background(), contactRequest("Offre", "Cheap viagra, click here now!"), "", "")
	require.NoError(t, err)

	assert.True(t, c.IsSpam)
	assert.Equal(t, domain.PriorityLow, c.Priority)
	assert.Contains(t, c.Tags, "spam")
	assert.Empty(t, e.mailer.Messages())
}

func TestSubmit_MailFailureStillStores(t *testing.T) {
	e := newTestEnv(t)
	e.mailer.Err = errors.New("smtp down")

	c, err := e.contactSvc.Submit(context.Background(), contactRequest("Question", "Bonjour, une question sur la facturation."), "", "")
	require.NoError(t, err)
	stored, err := e.contacts.FindByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestSubmit_Validation(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.contactSvc.Submit(context.Background(), &domain.ContactRequest{Email: "nope", Message: "court"}, "", "")
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	fields := map[string]bool{}
	for _, d := range appErr.Details {
		fields[d.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["email"])
	assert.True(t, fields["subject"])
	assert.True(t, fields["message"])
}

func TestContactList_PaginatesAndFilters(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		_, err := e.contactSvc.Submit(ctx, contactRequest(fmt.Sprintf("Question %d", i), "Bonjour, une question sur la facturation."), "", "")
		require.NoError(t, err)
		e.clock.Advance(time.Minute)
	}

	page, err := e.contactSvc.List(ctx, domain.ContactFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 20, page.Limit)
	assert.Len(t, page.Items, 20)
	assert.Equal(t, "Question 24", page.Items[0].Subject, "newest first")

	page, err = e.contactSvc.List(ctx, domain.ContactFilter{Page: 2, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)

	page, err = e.contactSvc.List(ctx, domain.ContactFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)

	page, err = e.contactSvc.List(ctx, domain.ContactFilter{Search: "question 7"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestContactGet_MarksRead(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c, err := e.contactSvc.Submit(ctx, contactRequest("Question", "Bonjour, une question sur la facturation."), "", "")
	require.NoError(t, err)

	got, err := e.contactSvc.Get(ctx, c.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, domain.ContactRead, got.Status)

	page, err := e.contactSvc.List(ctx, domain.ContactFilter{Status: domain.ContactNew})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestContactUpdateAndNotes(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c, err := e.contactSvc.Submit(ctx, contactRequest("Question", "Bonjour, une question sur la facturation."), "", "")
	require.NoError(t, err)

	high := domain.PriorityHigh
	updated, err := e.contactSvc.Update(ctx, c.ID.Hex(), &domain.ContactUpdate{Priority: &high, Tags: []string{"billing"}})
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, updated.Priority)
	assert.Equal(t, domain.ContactNew, updated.Status)
	assert.Equal(t, []string{"billing"}, updated.Tags)

	bogus := "escalated"
	_, err = e.contactSvc.Update(ctx, c.ID.Hex(), &domain.ContactUpdate{Status: &bogus})
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))

	noted, err := e.contactSvc.AddNote(ctx, c.ID.Hex(), "admin@example.com", &domain.ContactNoteRequest{Content: "Rappeler lundi"})
	require.NoError(t, err)
	require.Len(t, noted.Notes, 1)
	assert.Equal(t, "admin@example.com", noted.Notes[0].Author)

	stored, _ := e.contacts.FindByID(ctx, c.ID)
	assert.Len(t, stored.Notes, 1)
}

func TestContactReply(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c, err := e.contactSvc.Submit(ctx, contactRequest("Facture", "Bonjour, je n'ai pas reçu ma facture."), "", "")
	require.NoError(t, err)

	replied, err := e.contactSvc.Reply(ctx, c.ID.Hex(), "admin@example.com", &domain.ContactReplyRequest{Message: "Elle vient de partir."})
	require.NoError(t, err)
	assert.Equal(t, domain.ContactReplied, replied.Status)
	require.NotNil(t, replied.RepliedAt)
	require.Len(t, replied.Notes, 1)
	assert.True(t, strings.HasPrefix(replied.Notes[0].Content, "Réponse envoyée : "))

	sent := e.sentTo("jeanne@example.com")
	require.Len(t, sent, 2)
	assert.Equal(t, "Re: Facture", sent[1].Subject)
	assert.Contains(t, sent[1].Body, "Elle vient de partir.")

	e.mailer.Err = errors.New("smtp down")
	_, err = e.contactSvc.Reply(ctx, c.ID.Hex(), "admin@example.com", &domain.ContactReplyRequest{Message: "Encore"})
	assert.Equal(t, http.StatusInternalServerError, appCode(t, err))
}

func TestContactDelete(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c, err := e.contactSvc.Submit(ctx, contactRequest("Question", "Bonjour, une question sur la facturation."), "", "")
	require.NoError(t, err)

	require.NoError(t, e.contactSvc.Delete(ctx, c.ID.Hex()))
	_, err = e.contactSvc.Get(ctx, c.ID.Hex())
	assert.Equal(t, http.StatusNotFound, appCode(t, err))
}
