// Package chat keeps the bounded community chat log.
package chat

import (
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kasuganosora/baycode/clock"
	"github.com/kasuganosora/baycode/model"
)

const (
	// DefaultCapacity is the number of messages retained across all guilds.
	DefaultCapacity = 100
	// UnknownGuild tags messages sent without a resolvable guild.
	UnknownGuild = "Unknown"
)

// Log is an append-only message buffer. Once it holds capacity messages
// the oldest is evicted first, whatever its guild.
type Log struct {
	capacity int
	clock    clock.Clock

	mu       sync.RWMutex
	messages []model.ChatMessage
	seq      int64
}

// New creates an empty log. capacity <= 0 uses DefaultCapacity.
func New(capacity int, clk clock.Clock) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, clock: clk}
}

// Capacity returns the retention bound.
func (l *Log) Capacity() int { return l.capacity }

// Append stores a message and evicts the oldest entries beyond capacity.
func (l *Log) Append(author, body, guildTag string) model.ChatMessage {
	if guildTag == "" {
		guildTag = UnknownGuild
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	msg := model.ChatMessage{
		ID:        uuid.NewString(),
		Seq:       l.seq,
		Username:  author,
		Body:      body,
		Timestamp: l.clock.Now(),
		Guild:     guildTag,
	}
	l.messages = append(l.messages, msg)
	l.trim()
	return msg
}

// trim must be called with mu held.
func (l *Log) trim() {
	if over := len(l.messages) - l.capacity; over > 0 {
		l.messages = slices.Delete(l.messages, 0, over)
	}
}

// MessagesFor returns the messages tagged guild in insertion order, or all
// messages when guild is empty.
func (l *Log) MessagesFor(guild string) []model.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if guild == "" {
		return slices.Clone(l.messages)
	}
	out := make([]model.ChatMessage, 0, len(l.messages))
	for _, m := range l.messages {
		if m.Guild == guild {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of retained messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Snapshot returns every retained message in insertion order.
func (l *Log) Snapshot() []model.ChatMessage { return l.MessagesFor("") }

// Restore replaces the log with msgs ordered by Seq. Entries with no Seq
// keep their slice position after the sequenced ones.
func (l *Log) Restore(msgs []model.ChatMessage) {
	restored := slices.Clone(msgs)
	sort.SliceStable(restored, func(i, j int) bool {
		a, b := restored[i].Seq, restored[j].Seq
		if a == 0 || b == 0 {
			return a != 0 && b == 0
		}
		return a < b
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = restored
	l.seq = 0
	for i := range l.messages {
		if l.messages[i].ID == "" {
			l.messages[i].ID = uuid.NewString()
		}
		if l.messages[i].Guild == "" {
			l.messages[i].Guild = UnknownGuild
		}
		if l.messages[i].Seq <= l.seq {
			l.messages[i].Seq = l.seq + 1
		}
		l.seq = l.messages[i].Seq
	}
	l.trim()
}
