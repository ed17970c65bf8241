package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/kasuganosora/baycode/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const resetURL = "https://baycode.org/reset-password.html"

func TestResetLink(t *testing.T) {
	assert.Equal(t, resetURL+"?token=abc123", ResetLink(resetURL, "abc123"))
	assert.Equal(t, "https://x.test/r?lang=en&token=t1", ResetLink("https://x.test/r?lang=en", "t1"))
}

func TestLogSender_RecordsLink(t *testing.T) {
	s := NewLogSender("noreply@baycode.org", resetURL, zap.NewNop())
	require.NoError(t, s.SendPasswordResetLink(context.Background(), "alice@x.com", "tok", time.Hour))

	sent := s.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@x.com", sent[0].To)
	assert.Equal(t, "noreply@baycode.org", sent[0].From)
	assert.Equal(t, ResetSubject, sent[0].Subject)
	assert.Equal(t, resetURL+"?token=tok", sent[0].Link)
	assert.Contains(t, sent[0].Body, sent[0].Link)
	assert.False(t, sent[0].SentAt.IsZero())
	assert.Contains(t, sent[0].Body, "expire in 1 hour")

	s.Clear()
	assert.Empty(t, s.Sent())
}

func TestNew_Modes(t *testing.T) {
	s, err := New(config.MailConfig{Mode: ModeLog}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	s, err = New(config.MailConfig{Mode: ModeSMTP, SMTPAddr: "mail.test:587"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)

	_, err = New(config.MailConfig{Mode: ModeSMTP}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(config.MailConfig{Mode: "carrier-pigeon"}, zap.NewNop())
	assert.Error(t, err)
}

func TestSMTPSender_Send(t *testing.T) {
	s, err := NewSMTPSender(config.MailConfig{
		SMTPAddr:     "mail.test:587",
		SMTPUsername: "u",
		SMTPPassword: "p",
		From:         "noreply@baycode.org",
		ResetURL:     resetURL,
	}, zap.NewNop())
	require.NoError(t, err)

	var gotTo []string
	var gotMsg string
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "mail.test:587", addr)
		assert.NotNil(t, a)
		assert.Equal(t, "noreply@baycode.org", from)
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	require.NoError(t, s.SendPasswordResetLink(context.Background(), "bob@x.com", "zz9", 30*time.Minute))
	assert.Equal(t, []string{"bob@x.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: noreply@baycode.org\r\nTo: bob@x.com\r\n"))
	assert.Contains(t, gotMsg, "Subject: "+ResetSubject)
	assert.Contains(t, gotMsg, resetURL+"?token=zz9")
	assert.Contains(t, gotMsg, "expire in 30 minutes")
}

func TestSMTPSender_Failure(t *testing.T) {
	s, err := NewSMTPSender(config.MailConfig{SMTPAddr: "mail.test:25"}, zap.NewNop())
	require.NoError(t, err)
	relayDown := errors.New("connection refused")
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return relayDown }

	err = s.SendPasswordResetLink(context.Background(), "bob@x.com", "t", time.Hour)
	assert.ErrorIs(t, err, relayDown)
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	s, err := NewSMTPSender(config.MailConfig{SMTPAddr: "mail.test:25"}, zap.NewNop())
	require.NoError(t, err)
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send called with cancelled context")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SendPasswordResetLink(ctx, "bob@x.com", "t", time.Hour), context.Canceled)
}

func TestValidity(t *testing.T) {
	cases := map[time.Duration]string{
		time.Hour:                    "1 hour",
		2 * time.Hour:                "2 hours",
		90 * time.Minute:             "90 minutes",
		30*time.Minute + time.Second: "30 minutes",
		24 * time.Hour:               "1 day",
		72 * time.Hour:               "3 days",
		25 * time.Hour:               "25 hours",
		45 * time.Second:             "45 seconds",
		time.Millisecond:             "1 second",
	}
	for d, want := range cases {
		assert.Equal(t, want, Validity(d), d.String())
	}
}

func TestResetEmail_StatesConfiguredTTL(t *testing.T) {
	s := NewLogSender("noreply@baycode.org", resetURL, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.SendPasswordResetLink(ctx, "a@x.com", "t1", 15*time.Minute))
	require.NoError(t, s.SendPasswordResetLink(ctx, "b@x.com", "t2", 0))

	sent := s.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Body, "expire in 15 minutes")
	assert.NotContains(t, sent[0].Body, "1 hour")
	assert.NotContains(t, sent[1].Body, "expire")
}
