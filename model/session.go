package model

import "time"

// Session maps a login token to its account. Only the SHA-256 of the
// token is stored.
type Session struct {
	TokenHash string    `gorm:"primaryKey;size:64"`
	AccountID string    `gorm:"index:idx_session_account;size:36;not null"`
	ExpiresAt time.Time `gorm:"index:idx_session_expires;not null"`
	CreatedAt time.Time
}
