package local

import (
	"context"
	"sync"
)

// Message is one published payload.
type Message struct {
	Channel string
	Payload string
}

type listener struct {
	out chan Message
}

// Bus delivers chat events between goroutines of one process. Each
// listener has a bounded queue; when it is full new messages for that
// listener are dropped and the publisher never blocks.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[*listener]struct{}
	queue  int
}

// NewBus returns a Bus whose listeners buffer queue messages.
func NewBus(queue int) *Bus {
	if queue <= 0 {
		queue = 256
	}
	return &Bus{topics: make(map[string]map[*listener]struct{}), queue: queue}
}

// Publish never fails.
func (b *Bus) Publish(_ context.Context, channel, payload string) error {
	msg := Message{Channel: channel, Payload: payload}
	// Held across the sends so unsubscribe cannot close a queue mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.topics[channel] {
		select {
		case l.out <- msg:
		default:
		}
	}
	return nil
}

// Subscribe listens on channels until the returned stop func is called.
// stop closes the message channel and may be called more than once.
func (b *Bus) Subscribe(_ context.Context, channels ...string) (<-chan Message, func(), error) {
	l := &listener{out: make(chan Message, b.queue)}
	b.mu.Lock()
	for _, ch := range channels {
		set, ok := b.topics[ch]
		if !ok {
			set = make(map[*listener]struct{})
			b.topics[ch] = set
		}
		set[l] = struct{}{}
	}
	b.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, ch := range channels {
				delete(b.topics[ch], l)
				if len(b.topics[ch]) == 0 {
					delete(b.topics, ch)
				}
			}
			close(l.out)
		})
	}
	return l.out, stop, nil
}

// Listeners returns the number of live subscriptions on channel.
func (b *Bus) Listeners(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[channel])
}
