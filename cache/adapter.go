// Package cache selects the session/snapshot key-value store and the
// chat pub/sub bus: Redis when an address is configured, otherwise the
// in-process backend.
package cache

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/kasuganosora/baycode/cache/local"
	cacheredis "github.com/kasuganosora/baycode/cache/redis"
)

// ErrNotFound marks a missing or expired key. Use IsNotFound to test
// errors from either backend.
var ErrNotFound = errors.New("cache: key not found")

type Cache interface {
	io.Closer
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub fans chat events out to stream subscribers. The stop func
// returned by Subscribe closes the message channel.
type PubSub interface {
	io.Closer
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

type CacheConfig struct {
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	LocalGCInterval time.Duration
	LocalPubSubBuf  int
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, local.ErrNotFound) ||
		errors.Is(err, cacheredis.ErrNotFound)
}

// NewCache returns a Redis client when RedisAddr is set and a local
// store otherwise. The caller closes it.
func NewCache(cfg CacheConfig) (Cache, error) {
	if cfg.RedisAddr == "" {
		return local.New(local.Options{GCInterval: cfg.LocalGCInterval}), nil
	}
	client, err := cacheredis.Dial(context.Background(), redisOptions(cfg))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func NewPubSub(cfg CacheConfig) (PubSub, error) {
	buf := cfg.LocalPubSubBuf
	if buf <= 0 {
		buf = 256
	}
	if cfg.RedisAddr == "" {
		bus := local.NewBus(buf)
		return bridge[local.Message]{
			publish:   bus.Publish,
			subscribe: bus.Subscribe,
			convert:   func(m local.Message) *Message { return &Message{Channel: m.Channel, Payload: m.Payload} },
			close:     func() error { return nil },
			buf:       buf,
		}, nil
	}
	client, err := cacheredis.Dial(context.Background(), redisOptions(cfg))
	if err != nil {
		return nil, err
	}
	return bridge[cacheredis.Message]{
		publish:   client.Publish,
		subscribe: client.Subscribe,
		convert:   func(m cacheredis.Message) *Message { return &Message{Channel: m.Channel, Payload: m.Payload} },
		close:     client.Close,
		buf:       buf,
	}, nil
}

func redisOptions(cfg CacheConfig) cacheredis.Options {
	return cacheredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// bridge adapts a backend's message type to *Message.
type bridge[M any] struct {
	publish   func(ctx context.Context, channel, payload string) error
	subscribe func(ctx context.Context, channels ...string) (<-chan M, func(), error)
	convert   func(M) *Message
	close     func() error
	buf       int
}

func (b bridge[M]) Close() error { return b.close() }

func (b bridge[M]) Publish(ctx context.Context, channel, message string) error {
	return b.publish(ctx, channel, message)
}

func (b bridge[M]) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, stop, err := b.subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, b.buf)
	go func() {
		defer close(out)
		for m := range in {
			out <- b.convert(m)
		}
	}()
	return out, stop, nil
}
