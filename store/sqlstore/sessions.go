package sqlstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kasuganosora/baycode/clock"
	"github.com/kasuganosora/baycode/community"
	"github.com/kasuganosora/baycode/model"
)

// Sessions keeps login sessions in the sessions table, so they outlive
// the process when no Redis is configured.
type Sessions struct {
	db  *gorm.DB
	clk clock.Clock
}

func NewSessions(db *gorm.DB, clk clock.Clock) *Sessions {
	if clk == nil {
		clk = clock.New()
	}
	return &Sessions{db: db, clk: clk}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Put stores the session. ttl <= 0 falls back to a day.
func (s *Sessions) Put(ctx context.Context, token, accountID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := s.clk.Now()
	row := model.Session{
		TokenHash: hashToken(token),
		AccountID: accountID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("session: put: %w", err)
	}
	return nil
}

// Get returns community.ErrNoSession for unknown or expired tokens.
// Expired rows are removed on the way out.
func (s *Sessions) Get(ctx context.Context, token string) (string, error) {
	var row model.Session
	err := s.db.WithContext(ctx).Where("token_hash = ?", hashToken(token)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", community.ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("session: get: %w", err)
	}
	if s.clk.Now().After(row.ExpiresAt) {
		_ = s.Delete(ctx, token)
		return "", community.ErrNoSession
	}
	return row.AccountID, nil
}

func (s *Sessions) Delete(ctx context.Context, token string) error {
	err := s.db.WithContext(ctx).Where("token_hash = ?", hashToken(token)).Delete(&model.Session{}).Error
	if err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// DeleteExpired removes every session past its expiry.
func (s *Sessions) DeleteExpired(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", s.clk.Now()).Delete(&model.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("session: sweep: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}
