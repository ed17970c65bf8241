package mail

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LogSender logs reset links instead of sending them and keeps every
// composed message for inspection. It never fails.
type LogSender struct {
	from     string
	resetURL string
	log      *zap.Logger

	mu   sync.Mutex
	sent []Message
}

func NewLogSender(from, resetURL string, log *zap.Logger) *LogSender {
	return &LogSender{from: from, resetURL: resetURL, log: log}
}

func (s *LogSender) SendPasswordResetLink(_ context.Context, email, token string, validFor time.Duration) error {
	msg := composeReset(s.from, email, ResetLink(s.resetURL, token), validFor)
	msg.SentAt = time.Now()

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	s.log.Info("password reset email",
		zap.String("to", email),
		zap.String("link", msg.Link),
	)
	return nil
}

// Sent returns a copy of every message sent so far.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

// Clear forgets sent messages.
func (s *LogSender) Clear() {
	s.mu.Lock()
	s.sent = nil
	s.mu.Unlock()
}
