// Package account owns Bay Code member records: registration, credential
// checks, password reset and solved-problem bookkeeping.
package account

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kasuganosora/baycode/clock"
	"github.com/kasuganosora/baycode/community"
	"github.com/kasuganosora/baycode/community/rank"
	"github.com/kasuganosora/baycode/config"
	"github.com/kasuganosora/baycode/hook"
	"github.com/kasuganosora/baycode/mail"
	"github.com/kasuganosora/baycode/model"
	"github.com/kasuganosora/baycode/password"
	"github.com/kasuganosora/baycode/random"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ResetTokenLen is the length of password reset tokens.
const ResetTokenLen = 32

// Registration is the sign-up form.
type Registration struct {
	Username string
	Email    string
	Password string
	FullName string
	School   string
	BayArea  bool
}

// Store holds every account in memory. Reads return copies.
//
// Hooks are triggered after mu is released, so handlers may call back
// into the Store.
type Store struct {
	cfg    config.CommunityConfig
	hasher password.Hasher
	mailer mail.Sender
	hooks  *hook.Center
	clock  clock.Clock
	rand   random.Random
	logger *zap.Logger

	mu         sync.RWMutex
	byID       map[string]*model.Account
	order      []string // registration order
	byUsername map[string]string
	byEmail    map[string]string
	byToken    map[string]string
}

// New creates an empty Store. hooks may be nil.
func New(cfg config.CommunityConfig, hasher password.Hasher, mailer mail.Sender, hooks *hook.Center,
	clk clock.Clock, rnd random.Random, logger *zap.Logger) *Store {
	s := &Store{
		cfg:    cfg,
		hasher: hasher,
		mailer: mailer,
		hooks:  hooks,
		clock:  clk,
		rand:   rnd,
		logger: logger,
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.byID = make(map[string]*model.Account)
	s.order = nil
	s.byUsername = make(map[string]string)
	s.byEmail = make(map[string]string)
	s.byToken = make(map[string]string)
}

func (s *Store) trigger(ctx context.Context, event string, data any) {
	if s.hooks == nil {
		return
	}
	if _, err := s.hooks.Trigger(ctx, event, data); err != nil {
		s.logger.Warn("account hook failed", zap.String("event", event), zap.Error(err))
	}
}

// checkUnique must be called with mu held.
func (s *Store) checkUnique(username, email string) error {
	if _, ok := s.byUsername[username]; ok {
		return community.ErrDuplicateUsername
	}
	if _, ok := s.byEmail[email]; ok {
		return community.ErrDuplicateEmail
	}
	return nil
}

func (s *Store) weak(pw string) bool {
	return utf8.RuneCountInString(pw) < s.cfg.MinPasswordLen
}

// Register creates an account in a random guild. Duplicate username is
// checked before duplicate email, which is checked before credential
// strength.
func (s *Store) Register(ctx context.Context, reg Registration) (model.Account, error) {
	username := strings.TrimSpace(reg.Username)
	email := strings.TrimSpace(reg.Email)
	if username == "" || email == "" {
		return model.Account{}, community.ErrMissingField
	}

	s.mu.RLock()
	err := s.checkUnique(username, email)
	s.mu.RUnlock()
	if err != nil {
		return model.Account{}, err
	}
	if s.weak(reg.Password) {
		return model.Account{}, community.ErrWeakCredential
	}
	if len(s.cfg.Guilds) == 0 {
		return model.Account{}, community.ErrUnknownGuild
	}

	// Hashing is slow; do it unlocked and re-check uniqueness afterwards.
	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return model.Account{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	if err := s.checkUnique(username, email); err != nil {
		s.mu.Unlock()
		return model.Account{}, err
	}
	acc := &model.Account{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		PasswordHash:   hash,
		FullName:       reg.FullName,
		School:         reg.School,
		BayArea:        reg.BayArea,
		Guild:          s.cfg.Guilds[s.rand.Intn(len(s.cfg.Guilds))],
		JoinedAt:       s.clock.Now(),
		SolvedProblems: datatypes.JSONSlice[string]{},
		RespectRank:    rank.First(),
	}
	s.insert(acc)
	out := acc.Clone()
	s.mu.Unlock()

	s.logger.Info("account registered",
		zap.String("account_id", out.ID),
		zap.String("username", out.Username),
		zap.String("guild", out.Guild),
	)
	s.trigger(ctx, hook.OnAccountRegistered, out)
	return out, nil
}

// insert must be called with mu held.
func (s *Store) insert(acc *model.Account) {
	s.byID[acc.ID] = acc
	s.order = append(s.order, acc.ID)
	s.byUsername[acc.Username] = acc.ID
	s.byEmail[acc.Email] = acc.ID
	if acc.ResetToken != "" {
		s.byToken[acc.ResetToken] = acc.ID
	}
}

// Authenticate checks username and password.
func (s *Store) Authenticate(ctx context.Context, username, pw string) (model.Account, error) {
	s.mu.RLock()
	acc, ok := s.lookupUsername(strings.TrimSpace(username))
	var out model.Account
	if ok {
		out = acc.Clone()
	}
	s.mu.RUnlock()

	if !ok {
		s.trigger(ctx, hook.OnLoginFailed, username)
		return model.Account{}, community.ErrUserNotFound
	}
	match, err := password.Verify(out.PasswordHash, pw)
	if err != nil {
		return model.Account{}, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		s.trigger(ctx, hook.OnLoginFailed, username)
		return model.Account{}, community.ErrInvalidCredential
	}
	s.trigger(ctx, hook.OnAccountLogin, out)
	return out, nil
}

func (s *Store) lookupUsername(username string) (*model.Account, bool) {
	id, ok := s.byUsername[username]
	if !ok {
		return nil, false
	}
	return s.byID[id], true
}

// RequestPasswordReset stores a fresh token on the account registered with
// email and mails it. When delivery fails the token stays stored and the
// error wraps community.ErrDeliveryFailed.
func (s *Store) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token := s.rand.String(ResetTokenLen, random.TokenAlphabet)
	expiry := s.clock.Now().Add(s.cfg.ResetTokenTTL)

	s.mu.Lock()
	id, ok := s.byEmail[strings.TrimSpace(email)]
	if !ok {
		s.mu.Unlock()
		return "", community.ErrUserNotFound
	}
	acc := s.byID[id]
	if acc.ResetToken != "" {
		delete(s.byToken, acc.ResetToken)
	}
	acc.ResetToken = token
	acc.ResetTokenExpiry = &expiry
	s.byToken[token] = id
	out := acc.Clone()
	s.mu.Unlock()

	s.trigger(ctx, hook.OnPasswordResetAsked, out)
	if err := s.mailer.SendPasswordResetLink(ctx, out.Email, token, s.cfg.ResetTokenTTL); err != nil {
		s.logger.Warn("reset email not delivered", zap.String("account_id", id), zap.Error(err))
		return token, fmt.Errorf("%w: %w", community.ErrDeliveryFailed, err)
	}
	return token, nil
}

// validToken must be called with mu held.
func (s *Store) validToken(token string) (*model.Account, error) {
	if token == "" {
		return nil, community.ErrInvalidToken
	}
	id, ok := s.byToken[token]
	if !ok {
		return nil, community.ErrInvalidToken
	}
	acc := s.byID[id]
	if acc.ResetTokenExpiry == nil || s.clock.Now().After(*acc.ResetTokenExpiry) {
		return nil, community.ErrTokenExpired
	}
	return acc, nil
}

// ResetPassword replaces the credential of the account holding token and
// clears the token. An expired token leaves the credential unchanged.
func (s *Store) ResetPassword(ctx context.Context, token, newPassword string) error {
	s.mu.RLock()
	_, err := s.validToken(token)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if s.weak(newPassword) {
		return community.ErrWeakCredential
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	acc, err := s.validToken(token)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	acc.PasswordHash = hash
	acc.ResetToken = ""
	acc.ResetTokenExpiry = nil
	delete(s.byToken, token)
	out := acc.Clone()
	s.mu.Unlock()

	s.logger.Info("password reset", zap.String("account_id", out.ID))
	s.trigger(ctx, hook.OnPasswordReset, out)
	return nil
}

// RecordSolvedProblem adds problemID to the account's solved set and awards
// points and respect. It returns false without changes when the problem was
// already solved. Negative awards count as zero.
func (s *Store) RecordSolvedProblem(ctx context.Context, accountID, problemID string, respectAward int) (bool, error) {
	if problemID == "" {
		return false, community.ErrUnknownProblem
	}
	s.mu.Lock()
	acc, ok := s.byID[accountID]
	if !ok {
		s.mu.Unlock()
		return false, community.ErrUserNotFound
	}
	if acc.HasSolved(problemID) {
		s.mu.Unlock()
		return false, nil
	}
	award := max(respectAward, 0)
	acc.SolvedProblems = append(acc.SolvedProblems, problemID)
	acc.Points += s.cfg.PointsPerProblem
	acc.RespectPoints += award
	acc.RespectRank = rank.Of(acc.RespectPoints)
	out := acc.Clone()
	s.mu.Unlock()

	s.trigger(ctx, hook.OnProblemSolved, hook.SolvedEvent{AccountID: accountID, ProblemID: problemID, Respect: award})
	s.trigger(ctx, hook.OnRespectChanged, out)
	return true, nil
}

// Get returns the account with id.
func (s *Store) Get(id string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byID[id]
	if !ok {
		return model.Account{}, community.ErrUserNotFound
	}
	return acc.Clone(), nil
}

// ByUsername returns the account registered as username.
func (s *Store) ByUsername(username string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.lookupUsername(username)
	if !ok {
		return model.Account{}, community.ErrUserNotFound
	}
	return acc.Clone(), nil
}

// All returns every account in registration order.
func (s *Store) All() []model.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Account, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Len returns the number of accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot is All under the persistence name.
func (s *Store) Snapshot() []model.Account { return s.All() }

// Restore replaces every account with accounts. Duplicate solved entries
// are dropped and ranks recomputed so restored data satisfies the same
// invariants as registered data. Later duplicates of an id, username or
// email are skipped.
func (s *Store) Restore(accounts []model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	for _, a := range accounts {
		acc := a.Clone()
		if acc.ID == "" {
			acc.ID = uuid.NewString()
		}
		if _, dup := s.byID[acc.ID]; dup {
			s.logger.Warn("skipping duplicate account id", zap.String("account_id", acc.ID))
			continue
		}
		if err := s.checkUnique(acc.Username, acc.Email); err != nil {
			s.logger.Warn("skipping duplicate account", zap.String("username", acc.Username), zap.Error(err))
			continue
		}
		acc.SolvedProblems = dedupe(acc.SolvedProblems)
		acc.Points = max(acc.Points, 0)
		acc.RespectPoints = max(acc.RespectPoints, 0)
		acc.RespectRank = rank.Of(acc.RespectPoints)
		s.insert(&acc)
	}
}

func dedupe(ids datatypes.JSONSlice[string]) datatypes.JSONSlice[string] {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SweepExpiredResetTokens clears reset tokens that expired before now and
// returns how many were cleared.
func (s *Store) SweepExpiredResetTokens(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, id := range s.byToken {
		acc := s.byID[id]
		if acc.ResetTokenExpiry != nil && !now.After(*acc.ResetTokenExpiry) {
			continue
		}
		acc.ResetToken = ""
		acc.ResetTokenExpiry = nil
		delete(s.byToken, token)
		n++
	}
	return n
}
