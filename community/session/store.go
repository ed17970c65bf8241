package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kasuganosora/baycode/cache"
	"github.com/kasuganosora/baycode/community"
)

// Store persists token to account id mappings so sessions survive a
// process restart.
type Store interface {
	Put(ctx context.Context, token, accountID string, ttl time.Duration) error
	// Get returns community.ErrNoSession for unknown or expired tokens.
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

// KeyPrefix prefixes session keys in the cache.
const KeyPrefix = "session:"

// CacheStore keeps sessions in a cache.Cache under session:<token>.
type CacheStore struct {
	cache cache.Cache
}

func NewCacheStore(c cache.Cache) *CacheStore {
	return &CacheStore{cache: c}
}

func (s *CacheStore) Put(ctx context.Context, token, accountID string, ttl time.Duration) error {
	if err := s.cache.Set(ctx, KeyPrefix+token, accountID, ttl); err != nil {
		return fmt.Errorf("session: put: %w", err)
	}
	return nil
}

func (s *CacheStore) Get(ctx context.Context, token string) (string, error) {
	id, err := s.cache.Get(ctx, KeyPrefix+token)
	if cache.IsNotFound(err) {
		return "", community.ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("session: get: %w", err)
	}
	return id, nil
}

func (s *CacheStore) Delete(ctx context.Context, token string) error {
	if err := s.cache.Del(ctx, KeyPrefix+token); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// memoryStore is used when no Store is configured. Sessions then end
// with the process.
type memoryStore struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemoryStore() *memoryStore { return &memoryStore{m: make(map[string]string)} }

func (s *memoryStore) Put(_ context.Context, token, accountID string, _ time.Duration) error {
	s.mu.Lock()
	s.m[token] = accountID
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.m[token]
	if !ok {
		return "", community.ErrNoSession
	}
	return id, nil
}

func (s *memoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.m, token)
	s.mu.Unlock()
	return nil
}
