package mail

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuild(t *testing.T) {
	cfg := Config{FromEmail: "no-reply@tarifly.fr", FromName: "Tarifly"}
	msg := Message{To: "jane@example.com", ReplyTo: "ops@tarifly.fr", Subject: "Réinitialisation", Body: "ligne 1\nligne 2"}

	raw := string(Build(cfg, msg, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	assert.Contains(t, raw, "From: Tarifly <no-reply@tarifly.fr>\r\n")
	assert.Contains(t, raw, "To: jane@example.com\r\n")
	assert.Contains(t, raw, "Reply-To: ops@tarifly.fr\r\n")
	assert.Contains(t, raw, "Subject: =?utf-8?q?R=C3=A9initialisation?=\r\n")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nligne 1\r\nligne 2"))
}

func TestSendWithoutHost(t *testing.T) {
	err := Send(context.Background(), Config{}, Message{To: "x@example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
