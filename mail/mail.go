// Package mail delivers password reset links.
package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kasuganosora/baycode/config"
	"go.uber.org/zap"
)

const (
	ModeLog  = "log"
	ModeSMTP = "smtp"

	ResetSubject = "Bay Code - Password Reset Request"
)

// Sender is the email delivery collaborator of the account store.
type Sender interface {
	// validFor is how long the token stays usable; it is stated in the email.
	SendPasswordResetLink(ctx context.Context, email, token string, validFor time.Duration) error
}

// Message is a composed outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	Link    string
	SentAt  time.Time
}

// ResetLink appends the token to base as the "token" query parameter.
func ResetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Validity renders d for the reset email, rounding down so the email never
// promises more time than the token has: "1 hour", "90 minutes", "2 days".
func Validity(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(max(int(d/time.Second), 1), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func composeReset(from, to, link string, validFor time.Duration) Message {
	var b strings.Builder
	b.WriteString("Hello!\r\n\r\n")
	b.WriteString("We received a request to reset your password for your Bay Code account.\r\n")
	b.WriteString("If you didn't make this request, you can safely ignore this email.\r\n\r\n")
	b.WriteString("Reset your password: ")
	b.WriteString(link)
	b.WriteString("\r\n")
	if validFor > 0 {
		fmt.Fprintf(&b, "\r\nThis link will expire in %s for security reasons.\r\n", Validity(validFor))
	}
	return Message{From: from, To: to, Subject: ResetSubject, Body: b.String(), Link: link}
}

// New returns the Sender selected by cfg.Mode.
func New(cfg config.MailConfig, log *zap.Logger) (Sender, error) {
	switch cfg.Mode {
	case "", ModeLog:
		return NewLogSender(cfg.From, cfg.ResetURL, log), nil
	case ModeSMTP:
		return NewSMTPSender(cfg, log)
	default:
		return nil, fmt.Errorf("mail: unknown mode %q", cfg.Mode)
	}
}
