// Package community holds the error values shared by the Bay Code domain
// packages (accounts, guilds, chat and sessions).
package community

import "errors"

var (
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrWeakCredential    = errors.New("password is too short")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidCredential = errors.New("incorrect password")
	ErrInvalidToken      = errors.New("invalid reset token")
	ErrTokenExpired      = errors.New("reset token has expired")
	ErrDeliveryFailed    = errors.New("failed to send email")
	ErrPersistence       = errors.New("persistence failure")

	ErrNoSession      = errors.New("no active session")
	ErrUnknownGuild   = errors.New("unknown guild")
	ErrUnknownProblem = errors.New("unknown problem")
	ErrMissingField   = errors.New("username and email are required")
)
