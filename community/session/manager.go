// Package session is the façade over the community components. Callers
// identify themselves with the bearer token returned by Register or Login.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kasuganosora/baycode/auth"
	"github.com/kasuganosora/baycode/clock"
	"github.com/kasuganosora/baycode/community"
	"github.com/kasuganosora/baycode/community/account"
	"github.com/kasuganosora/baycode/community/chat"
	"github.com/kasuganosora/baycode/community/guild"
	"github.com/kasuganosora/baycode/community/problem"
	"github.com/kasuganosora/baycode/config"
	"github.com/kasuganosora/baycode/hook"
	"github.com/kasuganosora/baycode/mail"
	"github.com/kasuganosora/baycode/model"
	"github.com/kasuganosora/baycode/password"
	"github.com/kasuganosora/baycode/random"
	"github.com/kasuganosora/baycode/store"
	"go.uber.org/zap"
)

// Deps are the collaborators of a Manager. Config, Adapter and Logger are
// required; the rest fall back to production defaults.
type Deps struct {
	Config   *config.Config
	Adapter  store.Adapter
	Sessions Store
	Hooks    *hook.Center
	Hasher   password.Hasher
	Mailer   mail.Sender
	Problems *problem.Catalogue
	Clock    clock.Clock
	Random   random.Random
	Logger   *zap.Logger
}

// Session is an authenticated caller.
type Session struct {
	Token     string
	Account   model.Account
	ExpiresAt time.Time
}

// Dashboard is the signed-in landing page.
type Dashboard struct {
	Account   model.Account
	Guild     model.Guild
	AllGuilds []guild.Standing
	GuildRank int
}

// Manager coordinates accounts, guilds and chat, and persists the
// snapshot after every mutation.
type Manager struct {
	cfg      config.CommunityConfig
	accounts *account.Store
	guilds   *guild.Ledger
	chat     *chat.Log
	problems *problem.Catalogue
	adapter  store.Adapter
	sessions Store
	issuer   *auth.Issuer
	hooks    *hook.Center
	clock    clock.Clock
	logger   *zap.Logger

	mu     sync.RWMutex
	active map[string]string // token → account id

	saveMu sync.Mutex
}

// New builds the community components from d and wires them together.
func New(d Deps) (*Manager, error) {
	if d.Config == nil || d.Adapter == nil || d.Logger == nil {
		return nil, errors.New("session: Config, Adapter and Logger are required")
	}
	if d.Hooks == nil {
		d.Hooks = hook.NewCenter()
	}
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Random == nil {
		d.Random = random.New()
	}
	if d.Problems == nil {
		d.Problems = problem.Builtin()
	}
	if d.Sessions == nil {
		d.Sessions = newMemoryStore()
	}
	if d.Hasher == nil {
		h, err := password.New(d.Config.Security.PasswordHasher, d.Config.Security.BcryptCost)
		if err != nil {
			return nil, err
		}
		d.Hasher = h
	}
	if d.Mailer == nil {
		m, err := mail.New(d.Config.Mail, d.Logger)
		if err != nil {
			return nil, err
		}
		d.Mailer = m
	}

	cfg := d.Config.Community
	if len(cfg.Guilds) == 0 {
		cfg.Guilds = config.DefaultGuilds
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = 20
	}

	accounts := account.New(cfg, d.Hasher, d.Mailer, d.Hooks, d.Clock, d.Random, d.Logger.Named("account"))
	ledger := guild.New(cfg.Guilds, accounts, d.Logger.Named("guild"))
	ledger.Attach(d.Hooks)
	chat.NewValidator().Attach(d.Hooks)

	return &Manager{
		cfg:      cfg,
		accounts: accounts,
		guilds:   ledger,
		chat:     chat.New(cfg.ChatHistory, d.Clock),
		problems: d.Problems,
		adapter:  d.Adapter,
		sessions: d.Sessions,
		issuer:   auth.NewIssuer(d.Config.Security.JWTSecret, d.Config.Security.JWTTTLH, d.Clock),
		hooks:    d.Hooks,
		clock:    d.Clock,
		logger:   d.Logger,
		active:   make(map[string]string),
	}, nil
}

func (m *Manager) Accounts() *account.Store     { return m.accounts }
func (m *Manager) Guilds() *guild.Ledger        { return m.guilds }
func (m *Manager) Chat() *chat.Log              { return m.chat }
func (m *Manager) Problems() *problem.Catalogue { return m.problems }
func (m *Manager) Hooks() *hook.Center          { return m.hooks }

// Load restores the persisted snapshot. With nothing stored the default
// guilds start empty at tier I. Either way the result is saved back.
func (m *Manager) Load(ctx context.Context) error {
	snap, err := m.adapter.Load(ctx)
	if err != nil {
		return fmt.Errorf("session: load snapshot: %w", err)
	}
	if snap == nil {
		m.logger.Info("no stored community data, starting fresh",
			zap.Strings("guilds", m.guilds.Names()))
	} else {
		m.accounts.Restore(snap.Accounts)
		m.guilds.Restore(snap.Guilds)
		m.chat.Restore(snap.ChatMessages)
		removed, added := m.guilds.Reconcile()
		m.logger.Info("community data restored",
			zap.Int("accounts", m.accounts.Len()),
			zap.Int("chat_messages", m.chat.Len()),
			zap.Int("members_removed", removed),
			zap.Int("members_added", added),
		)
	}
	m.persist(ctx)
	return nil
}

// Snapshot captures the current community state.
func (m *Manager) Snapshot() *store.Snapshot {
	return &store.Snapshot{
		Accounts:     m.accounts.Snapshot(),
		Guilds:       m.guilds.Snapshot(),
		ChatMessages: m.chat.Snapshot(),
	}
}

// Save writes the snapshot through the adapter. Saves are serialised.
func (m *Manager) Save(ctx context.Context) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	err := m.adapter.Save(ctx, m.Snapshot())
	if _, herr := m.hooks.Trigger(ctx, hook.OnSnapshotSaved, err); herr != nil {
		m.logger.Warn("snapshot hook failed", zap.Error(herr))
	}
	return err
}

// persist saves after a mutation. A failed save is logged, never returned:
// in-memory state stays authoritative.
func (m *Manager) persist(ctx context.Context) {
	if err := m.Save(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("persist snapshot", zap.Error(err))
	}
}

func (m *Manager) startSession(ctx context.Context, acc model.Account) (*Session, error) {
	token, err := m.issuer.Issue(acc.ID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.active[token] = acc.ID
	m.mu.Unlock()
	if err := m.sessions.Put(ctx, token, acc.ID, m.issuer.TTL()); err != nil {
		m.logger.Warn("session not persisted", zap.String("account_id", acc.ID), zap.Error(err))
	}
	return &Session{Token: token, Account: acc, ExpiresAt: m.clock.Now().Add(m.issuer.TTL())}, nil
}

// Register creates an account and signs it in.
func (m *Manager) Register(ctx context.Context, reg account.Registration) (*Session, error) {
	acc, err := m.accounts.Register(ctx, reg)
	if err != nil {
		return nil, err
	}
	m.persist(ctx)
	return m.startSession(ctx, acc)
}

// Login authenticates and starts a session.
func (m *Manager) Login(ctx context.Context, username, pw string) (*Session, error) {
	acc, err := m.accounts.Authenticate(ctx, username, pw)
	if err != nil {
		return nil, err
	}
	return m.startSession(ctx, acc)
}

// Resolve returns the account id behind token. A token missing from
// memory is looked up in the session store, which covers restarts.
func (m *Manager) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", community.ErrNoSession
	}
	claims, err := m.issuer.Parse(token)
	if err != nil {
		m.forget(token)
		return "", fmt.Errorf("%w: %w", community.ErrNoSession, err)
	}

	m.mu.RLock()
	id, ok := m.active[token]
	m.mu.RUnlock()
	if !ok {
		id, err = m.sessions.Get(ctx, token)
		if err != nil {
			if errors.Is(err, community.ErrNoSession) {
				return "", err
			}
			return "", fmt.Errorf("%w: %w", community.ErrNoSession, err)
		}
		m.mu.Lock()
		m.active[token] = id
		m.mu.Unlock()
	}
	if id != claims.AccountID {
		return "", community.ErrNoSession
	}
	if _, err := m.accounts.Get(id); err != nil {
		return "", community.ErrNoSession
	}
	return id, nil
}

func (m *Manager) forget(token string) {
	m.mu.Lock()
	delete(m.active, token)
	m.mu.Unlock()
}

// CurrentAccount returns the signed-in account for token.
func (m *Manager) CurrentAccount(ctx context.Context, token string) (model.Account, error) {
	id, err := m.Resolve(ctx, token)
	if err != nil {
		return model.Account{}, err
	}
	acc, err := m.accounts.Get(id)
	if err != nil {
		return model.Account{}, community.ErrNoSession
	}
	return acc, nil
}

// Logout ends the session in memory and in the session store.
func (m *Manager) Logout(ctx context.Context, token string) error {
	id, err := m.Resolve(ctx, token)
	if err != nil {
		return err
	}
	m.forget(token)
	if err := m.sessions.Delete(ctx, token); err != nil {
		m.logger.Warn("session not removed from store", zap.String("account_id", id), zap.Error(err))
	}
	if _, err := m.hooks.Trigger(ctx, hook.OnAccountLogout, id); err != nil {
		m.logger.Warn("logout hook failed", zap.Error(err))
	}
	return nil
}

// expiringStore is a session Store that can drop expired entries in bulk.
// Cache-backed stores expire keys on their own.
type expiringStore interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// PruneSessions drops in-memory sessions whose token has expired and
// sweeps the session store when it supports it. It reports the number
// of in-memory sessions dropped.
func (m *Manager) PruneSessions() int {
	m.mu.Lock()
	n := 0
	for token := range m.active {
		if _, err := m.issuer.Parse(token); err != nil {
			delete(m.active, token)
			n++
		}
	}
	m.mu.Unlock()

	if es, ok := m.sessions.(expiringStore); ok {
		if swept, err := es.DeleteExpired(context.Background()); err != nil {
			m.logger.Warn("session sweep failed", zap.Error(err))
		} else if swept > 0 {
			m.logger.Debug("expired sessions removed", zap.Int("count", swept))
		}
	}
	return n
}

// ActiveSessions returns the number of sessions held in memory.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Dashboard assembles the caller's account, guild and the guild standings.
func (m *Manager) Dashboard(ctx context.Context, token string) (*Dashboard, error) {
	acc, err := m.CurrentAccount(ctx, token)
	if err != nil {
		return nil, err
	}
	g, ok := m.guilds.Guild(acc.Guild)
	if !ok {
		return nil, community.ErrUnknownGuild
	}
	standings := m.guilds.Standings()
	d := &Dashboard{Account: acc, Guild: g, AllGuilds: standings}
	for _, s := range standings {
		if s.Name == acc.Guild {
			d.GuildRank = s.Rank
			break
		}
	}
	return d, nil
}

func (m *Manager) leaderboard(score func(model.Account) int) []model.Account {
	all := m.accounts.All()
	sort.SliceStable(all, func(i, j int) bool {
		return score(all[i]) > score(all[j])
	})
	if len(all) > m.cfg.LeaderboardSize {
		all = all[:m.cfg.LeaderboardSize]
	}
	return all
}

// IndividualLeaderboard ranks accounts by respect. Ties keep
// registration order.
func (m *Manager) IndividualLeaderboard() []model.Account {
	return m.leaderboard(func(a model.Account) int { return a.RespectPoints })
}

// ProblemSolvingLeaderboard ranks accounts by number of solved problems.
func (m *Manager) ProblemSolvingLeaderboard() []model.Account {
	return m.leaderboard(func(a model.Account) int { return len(a.SolvedProblems) })
}

// SolveProblem records a catalogue problem as solved by the caller. It
// returns false if the caller had already solved it.
func (m *Manager) SolveProblem(ctx context.Context, token, problemID string) (bool, error) {
	id, err := m.Resolve(ctx, token)
	if err != nil {
		return false, err
	}
	if _, ok := m.problems.Get(problemID); !ok {
		return false, community.ErrUnknownProblem
	}
	solved, err := m.accounts.RecordSolvedProblem(ctx, id, problemID, m.cfg.SolveRespectAward)
	if err != nil {
		return false, err
	}
	if solved {
		m.persist(ctx)
	}
	return solved, nil
}

// SendChat posts body as the caller, tagged with the caller's guild.
// OnChatSend handlers may rewrite or reject the body.
func (m *Manager) SendChat(ctx context.Context, token, body string) (model.ChatMessage, error) {
	acc, err := m.CurrentAccount(ctx, token)
	if err != nil {
		return model.ChatMessage{}, err
	}
	out, err := m.hooks.Trigger(ctx, hook.OnChatSend, body)
	if errors.Is(err, hook.ErrInterrupt) {
		return model.ChatMessage{}, err
	}
	if err != nil {
		m.logger.Warn("chat hook failed", zap.Error(err))
	}
	if s, ok := out.(string); ok {
		body = s
	}

	msg := m.chat.Append(acc.Username, body, acc.Guild)
	if _, err := m.hooks.Trigger(ctx, hook.AfterChatSend, msg); err != nil {
		m.logger.Warn("after chat hook failed", zap.Error(err))
	}
	m.persist(ctx)
	return msg, nil
}

// Messages lists chat messages for guild. An empty guild means the
// caller's guild when token is valid and every message otherwise.
func (m *Manager) Messages(ctx context.Context, token, guildName string) []model.ChatMessage {
	if guildName == "" && token != "" {
		if acc, err := m.CurrentAccount(ctx, token); err == nil {
			guildName = acc.Guild
		}
	}
	return m.chat.MessagesFor(guildName)
}

// RequestPasswordReset stores and mails a reset token. The token is
// persisted even when delivery fails.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token, err := m.accounts.RequestPasswordReset(ctx, email)
	if err == nil || errors.Is(err, community.ErrDeliveryFailed) {
		m.persist(ctx)
	}
	return token, err
}

// ResetPassword sets a new credential for the holder of token.
func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := m.accounts.ResetPassword(ctx, token, newPassword); err != nil {
		return err
	}
	m.persist(ctx)
	return nil
}

// SweepResetTokens clears expired reset tokens and persists if any were
// cleared.
func (m *Manager) SweepResetTokens(ctx context.Context) int {
	n := m.accounts.SweepExpiredResetTokens(m.clock.Now())
	if n > 0 {
		m.persist(ctx)
	}
	return n
}
