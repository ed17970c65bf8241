package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/kasuganosora/baycode/config"
	"go.uber.org/zap"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers reset links through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	addr     string
	from     string
	resetURL string
	auth     smtp.Auth
	log      *zap.Logger
	send     sendFunc
}

func NewSMTPSender(cfg config.MailConfig, log *zap.Logger) (*SMTPSender, error) {
	if cfg.SMTPAddr == "" {
		return nil, errors.New("mail: smtp mode requires mail.smtp_addr")
	}
	host, _, err := net.SplitHostPort(cfg.SMTPAddr)
	if err != nil {
		return nil, fmt.Errorf("mail: smtp_addr: %w", err)
	}
	s := &SMTPSender{
		addr:     cfg.SMTPAddr,
		from:     cfg.From,
		resetURL: cfg.ResetURL,
		log:      log,
		send:     smtp.SendMail,
	}
	if cfg.SMTPUsername != "" {
		s.auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, host)
	}
	return s, nil
}

func (s *SMTPSender) SendPasswordResetLink(ctx context.Context, email, token string, validFor time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := composeReset(s.from, email, ResetLink(s.resetURL, token), validFor)
	if err := s.send(s.addr, s.auth, s.from, []string{email}, encode(msg)); err != nil {
		s.log.Warn("smtp send failed", zap.String("to", email), zap.Error(err))
		return fmt.Errorf("mail: smtp: %w", err)
	}
	s.log.Info("password reset email sent", zap.String("to", email))
	return nil
}

func encode(m Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(m.Body)
	return []byte(b.String())
}
