// Package store defines how the community snapshot is persisted.
package store

import (
	"context"
	"sync"

	"github.com/kasuganosora/baycode/model"
)

// Snapshot is the whole persisted community state.
type Snapshot struct {
	Accounts     []model.Account     `json:"users"`
	Guilds       []model.Guild       `json:"guilds"`
	ChatMessages []model.ChatMessage `json:"chatMessages"`
}

// Clone deep-copies s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		Accounts:     make([]model.Account, len(s.Accounts)),
		Guilds:       make([]model.Guild, len(s.Guilds)),
		ChatMessages: append([]model.ChatMessage(nil), s.ChatMessages...),
	}
	for i, a := range s.Accounts {
		out.Accounts[i] = a.Clone()
	}
	for i, g := range s.Guilds {
		out.Guilds[i] = g.Clone()
	}
	return out
}

// Adapter loads and saves snapshots.
type Adapter interface {
	// Load returns (nil, nil) when nothing has been stored yet.
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Memory keeps the last saved snapshot in process memory.
type Memory struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), nil
}

func (m *Memory) Save(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
