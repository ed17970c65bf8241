// Package guild keeps the fixed set of Bay Code guilds, their members and
// their aggregate respect.
package guild

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/kasuganosora/baycode/community"
	"github.com/kasuganosora/baycode/community/rank"
	"github.com/kasuganosora/baycode/hook"
	"github.com/kasuganosora/baycode/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// AccountLookup is the part of the account store the ledger reads.
type AccountLookup interface {
	Get(id string) (model.Account, error)
	All() []model.Account
}

// Stats is the leaderboard view of one guild.
type Stats struct {
	MemberCount   int    `json:"memberCount"`
	RespectPoints int    `json:"respectPoints"`
	RespectRank   string `json:"respectRank"`
	Points        int    `json:"points"`
}

// Standing is a guild with its 1-based leaderboard position.
type Standing struct {
	Name string `json:"name"`
	Rank int    `json:"rank"`
	Stats
}

// Ledger owns guild records. Members are referenced by account id only.
type Ledger struct {
	accounts AccountLookup
	logger   *zap.Logger

	mu     sync.RWMutex
	names  []string // definition order, also the tie-break order
	guilds map[string]*model.Guild
}

// New creates a ledger with one empty guild per name.
func New(names []string, accounts AccountLookup, logger *zap.Logger) *Ledger {
	l := &Ledger{accounts: accounts, logger: logger}
	l.init(names)
	return l
}

func (l *Ledger) init(names []string) {
	l.names = nil
	l.guilds = make(map[string]*model.Guild, len(names))
	for _, n := range names {
		l.add(fresh(n))
	}
}

func fresh(name string) *model.Guild {
	return &model.Guild{
		Name:        name,
		Members:     datatypes.JSONSlice[string]{},
		RespectRank: rank.First(),
	}
}

// add must be called with mu held.
func (l *Ledger) add(g *model.Guild) {
	if _, ok := l.guilds[g.Name]; ok {
		return
	}
	g.Position = len(l.names)
	l.names = append(l.names, g.Name)
	l.guilds[g.Name] = g
}

// Attach subscribes the ledger to account events so membership and respect
// totals follow the account store.
func (l *Ledger) Attach(h *hook.Center) {
	h.Register(hook.OnAccountRegistered, 10, "guild", func(_ context.Context, _ string, data any) (any, error) {
		acc := data.(model.Account)
		return data, l.Join(acc.Guild, acc.ID)
	})
	h.Register(hook.OnRespectChanged, 10, "guild", func(_ context.Context, _ string, data any) (any, error) {
		acc := data.(model.Account)
		return data, l.RecomputeRespectTotal(acc.Guild)
	})
}

// Join adds accountID to the named guild. Joining twice is a no-op.
func (l *Ledger) Join(name, accountID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.guilds[name]
	if !ok {
		return community.ErrUnknownGuild
	}
	if !slices.Contains(g.Members, accountID) {
		g.Members = append(g.Members, accountID)
		l.logger.Debug("guild member joined", zap.String("guild", name), zap.String("account_id", accountID))
	}
	l.recompute(g)
	return nil
}

// memberRespect sums the live respect of g's members. Members that no
// longer resolve to an account count as zero.
func (l *Ledger) memberRespect(g *model.Guild) int {
	total := 0
	for _, id := range g.Members {
		acc, err := l.accounts.Get(id)
		if err != nil {
			continue
		}
		total += acc.RespectPoints
	}
	return total
}

// recompute must be called with mu held.
func (l *Ledger) recompute(g *model.Guild) {
	g.RespectPoints = l.memberRespect(g)
	g.RespectRank = rank.Of(g.RespectPoints)
}

// RecomputeRespectTotal refreshes the cached respect total and rank of name.
func (l *Ledger) RecomputeRespectTotal(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.guilds[name]
	if !ok {
		return community.ErrUnknownGuild
	}
	l.recompute(g)
	return nil
}

func (l *Ledger) stats(g *model.Guild) Stats {
	respect := l.memberRespect(g)
	return Stats{
		MemberCount:   len(g.Members),
		RespectPoints: respect,
		RespectRank:   rank.Of(respect),
		Points:        g.Points,
	}
}

// Stats returns every guild's stats computed from current member respect.
func (l *Ledger) Stats() map[string]Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Stats, len(l.names))
	for _, n := range l.names {
		out[n] = l.stats(l.guilds[n])
	}
	return out
}

// Standings returns all guilds by descending respect. Ties keep
// definition order.
func (l *Ledger) Standings() []Standing {
	l.mu.RLock()
	out := make([]Standing, 0, len(l.names))
	for _, n := range l.names {
		out = append(out, Standing{Name: n, Stats: l.stats(l.guilds[n])})
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RespectPoints > out[j].RespectPoints
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// RankOf returns the 1-based leaderboard position of name, or 0 if there
// is no such guild.
func (l *Ledger) RankOf(name string) int {
	for _, s := range l.Standings() {
		if s.Name == name {
			return s.Rank
		}
	}
	return 0
}

// Guild returns a copy of the named guild record.
func (l *Ledger) Guild(name string) (model.Guild, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.guilds[name]
	if !ok {
		return model.Guild{}, false
	}
	return g.Clone(), true
}

// Names returns guild names in definition order.
func (l *Ledger) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.names)
}

// Snapshot returns copies of every guild in definition order.
func (l *Ledger) Snapshot() []model.Guild {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Guild, 0, len(l.names))
	for _, n := range l.names {
		out = append(out, l.guilds[n].Clone())
	}
	return out
}

// Restore loads persisted guilds. Configured guilds keep their definition
// order; a stored guild that is no longer configured is kept after them so
// its members are not orphaned.
func (l *Ledger) Restore(guilds []model.Guild) {
	l.mu.Lock()
	defer l.mu.Unlock()
	configured := slices.Clone(l.names)
	stored := make(map[string]model.Guild, len(guilds))
	for _, g := range guilds {
		stored[g.Name] = g
	}

	l.names = nil
	l.guilds = make(map[string]*model.Guild, len(configured)+len(guilds))
	for _, n := range configured {
		if g, ok := stored[n]; ok {
			c := g.Clone()
			l.add(&c)
			continue
		}
		l.add(fresh(n))
	}
	for _, g := range guilds {
		if _, ok := l.guilds[g.Name]; ok || g.Name == "" {
			continue
		}
		l.logger.Warn("restoring guild missing from configuration", zap.String("guild", g.Name))
		c := g.Clone()
		l.add(&c)
	}
	for _, g := range l.guilds {
		l.recompute(g)
	}
}

// Reconcile enforces that every member id names an existing account of
// that guild and that every account is listed in its guild. It returns the
// number of member entries removed and added.
func (l *Ledger) Reconcile() (removed, added int) {
	accounts := l.accounts.All()
	guildOf := make(map[string]string, len(accounts))
	for _, a := range accounts {
		guildOf[a.ID] = a.Guild
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range l.names {
		g := l.guilds[n]
		kept := g.Members[:0]
		seen := make(map[string]struct{}, len(g.Members))
		for _, id := range g.Members {
			if _, dup := seen[id]; dup || guildOf[id] != n {
				removed++
				continue
			}
			seen[id] = struct{}{}
			kept = append(kept, id)
		}
		g.Members = kept
	}
	for _, a := range accounts {
		g, ok := l.guilds[a.Guild]
		if !ok {
			l.logger.Warn("account references unknown guild",
				zap.String("account_id", a.ID), zap.String("guild", a.Guild))
			continue
		}
		if !slices.Contains(g.Members, a.ID) {
			g.Members = append(g.Members, a.ID)
			added++
		}
	}
	for _, g := range l.guilds {
		l.recompute(g)
	}
	return removed, added
}
