// Package local is the in-process cache backend used when no Redis
// address is configured.
package local

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kasuganosora/baycode/clock"
)

var ErrNotFound = errors.New("cache: key not found")

// Options configure a Store. Zero values pick the defaults.
type Options struct {
	GCInterval time.Duration
	Clock      clock.Clock
}

type item struct {
	value    string
	deadline time.Time // zero: no expiry
}

// Store keeps session and snapshot values in memory. Expired items are
// invisible immediately and reclaimed by a background sweep.
type Store struct {
	clk   clock.Clock
	mu    sync.RWMutex
	items map[string]item
	quit  chan struct{}
	once  sync.Once
}

// New starts a Store and its sweeper. Close stops the sweeper.
func New(opts Options) *Store {
	if opts.GCInterval <= 0 {
		opts.GCInterval = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	s := &Store{
		clk:   opts.Clock,
		items: make(map[string]item),
		quit:  make(chan struct{}),
	}
	go s.sweepEvery(opts.GCInterval)
	return s
}

// Close stops the sweeper. It never fails and may be called twice.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.quit) })
	return nil
}

func (s *Store) sweepEvery(d time.Duration) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-t.C:
			s.Sweep()
		}
	}
}

// Sweep drops expired items and reports how many went.
func (s *Store) Sweep() int {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for k, it := range s.items {
		if it.expiredAt(now) {
			delete(s.items, k)
			dropped++
		}
	}
	return dropped
}

func (it item) expiredAt(now time.Time) bool {
	return !it.deadline.IsZero() && now.After(it.deadline)
}

// Len counts stored items, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || it.expiredAt(s.clk.Now()) {
		return "", ErrNotFound
	}
	return it.value, nil
}

// Set stores value under key. ttl <= 0 keeps it until deleted.
func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	it := item{value: value}
	if ttl > 0 {
		it.deadline = s.clk.Now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = it
	s.mu.Unlock()
	return nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.items, k)
	}
	s.mu.Unlock()
	return nil
}
