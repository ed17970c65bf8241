// Package kvstore persists the community snapshot as one JSON document in
// the cache, the server-side counterpart of the browser's localStorage.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kasuganosora/baycode/cache"
	"github.com/kasuganosora/baycode/community"
	"github.com/kasuganosora/baycode/model"
	"github.com/kasuganosora/baycode/store"
)

// DefaultKey matches the storage key of the original browser build.
const DefaultKey = "bayCodeData"

// Store keeps the snapshot under a single cache key with no expiry.
type Store struct {
	cache cache.Cache
	key   string
}

func New(c cache.Cache, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{cache: c, key: key}
}

var _ store.Adapter = (*Store)(nil)

// The API views of these models hide credentials and ordering columns.
// The stored document needs them, so the records re-expose those fields.
type accountRecord struct {
	model.Account
	PasswordHash     string     `json:"passwordHash"`
	ResetToken       string     `json:"resetToken,omitempty"`
	ResetTokenExpiry *time.Time `json:"resetTokenExpiry,omitempty"`
}

type guildRecord struct {
	model.Guild
	Position int `json:"position"`
}

type chatRecord struct {
	model.ChatMessage
	Seq int64 `json:"seq"`
}

type document struct {
	Users        []accountRecord `json:"users"`
	Guilds       []guildRecord   `json:"guilds"`
	ChatMessages []chatRecord    `json:"chatMessages"`
}

func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	raw, err := s.cache.Get(ctx, s.key)
	if cache.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: kv load: %w", community.ErrPersistence, err)
	}
	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: kv decode: %w", community.ErrPersistence, err)
	}

	snap := &store.Snapshot{
		Accounts:     make([]model.Account, len(doc.Users)),
		Guilds:       make([]model.Guild, len(doc.Guilds)),
		ChatMessages: make([]model.ChatMessage, len(doc.ChatMessages)),
	}
	for i, r := range doc.Users {
		a := r.Account
		a.PasswordHash = r.PasswordHash
		a.ResetToken = r.ResetToken
		a.ResetTokenExpiry = r.ResetTokenExpiry
		snap.Accounts[i] = a
	}
	for i, r := range doc.Guilds {
		g := r.Guild
		g.Position = r.Position
		snap.Guilds[i] = g
	}
	for i, r := range doc.ChatMessages {
		m := r.ChatMessage
		m.Seq = r.Seq
		snap.ChatMessages[i] = m
	}
	return snap, nil
}

func (s *Store) Save(ctx context.Context, snap *store.Snapshot) error {
	doc := document{
		Users:        make([]accountRecord, len(snap.Accounts)),
		Guilds:       make([]guildRecord, len(snap.Guilds)),
		ChatMessages: make([]chatRecord, len(snap.ChatMessages)),
	}
	for i, a := range snap.Accounts {
		doc.Users[i] = accountRecord{Account: a, PasswordHash: a.PasswordHash, ResetToken: a.ResetToken, ResetTokenExpiry: a.ResetTokenExpiry}
	}
	for i, g := range snap.Guilds {
		doc.Guilds[i] = guildRecord{Guild: g, Position: g.Position}
	}
	for i, m := range snap.ChatMessages {
		doc.ChatMessages[i] = chatRecord{ChatMessage: m, Seq: m.Seq}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: kv encode: %w", community.ErrPersistence, err)
	}
	if err := s.cache.Set(ctx, s.key, string(raw), 0); err != nil {
		return fmt.Errorf("%w: kv save: %w", community.ErrPersistence, err)
	}
	return nil
}
