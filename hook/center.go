package hook

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrInterrupt signals that a handler wants to stop further processing.
// For "before" style events (OnChatSend) the caller treats it as a rejection.
var ErrInterrupt = errors.New("hook interrupted")

// Handler receives the event payload and returns it, possibly modified.
type Handler func(ctx context.Context, event string, data any) (any, error)

type entry struct {
	priority int
	name     string
	fn       Handler
}

// Center dispatches community events to registered handlers.
type Center struct {
	mu    sync.RWMutex
	hooks map[string][]*entry
}

// NewCenter creates an empty Center.
func NewCenter() *Center {
	return &Center{hooks: make(map[string][]*entry)}
}

// Register adds fn for event. Lower priority runs first; equal priorities
// keep registration order. name is used for Unregister.
func (c *Center) Register(event string, priority int, name string, fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := append(c.hooks[event], &entry{priority: priority, name: name, fn: fn})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	c.hooks[event] = entries
}

// Unregister removes every handler called name from event.
func (c *Center) Unregister(event, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[event] = without(c.hooks[event], name)
}

// UnregisterAll removes every handler called name from all events.
func (c *Center) UnregisterAll(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for event, entries := range c.hooks {
		c.hooks[event] = without(entries, name)
	}
}

func without(entries []*entry, name string) []*entry {
	n := 0
	for _, e := range entries {
		if e.name != name {
			entries[n] = e
			n++
		}
	}
	return entries[:n]
}

// Trigger runs the handlers for event in priority order, threading data
// through them. ErrInterrupt stops the chain and is returned as is. Other
// handler errors do not stop the chain; they are joined and returned once
// every handler has run.
func (c *Center) Trigger(ctx context.Context, event string, data any) (any, error) {
	c.mu.RLock()
	entries := make([]*entry, len(c.hooks[event]))
	copy(entries, c.hooks[event])
	c.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		out, err := e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return out, err
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		data = out
	}
	return data, errors.Join(errs...)
}

// Count returns the number of handlers registered for event.
func (c *Center) Count(event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hooks[event])
}

// Community events. Payloads are documented next to each name.
const (
	OnAccountRegistered  = "on_account_registered"   // model.Account
	OnRespectChanged     = "on_respect_changed"      // model.Account
	OnAccountLogin       = "on_account_login"        // model.Account
	OnAccountLogout      = "on_account_logout"       // string account id
	OnLoginFailed        = "on_login_failed"         // string username
	OnPasswordResetAsked = "on_password_reset_asked" // model.Account
	OnPasswordReset      = "on_password_reset"       // model.Account
	OnProblemSolved      = "on_problem_solved"       // SolvedEvent
	OnChatSend           = "on_chat_send"            // string body, may be rewritten
	AfterChatSend        = "after_chat_send"         // model.ChatMessage
	OnSnapshotSaved      = "on_snapshot_saved"       // error (nil on success)
)

// SolvedEvent is the OnProblemSolved payload.
type SolvedEvent struct {
	AccountID string
	ProblemID string
	Respect   int
}
