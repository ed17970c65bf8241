// Package redis is the Redis cache backend. Sessions and snapshot blobs
// live as plain string keys; chat fan out uses Redis pub/sub so several
// server processes can share one stream.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("cache: key not found")

const defaultDialTimeout = 5 * time.Second

type Options struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// Message is one payload received from a subscription.
type Message struct {
	Channel string
	Payload string
}

// Client wraps a go-redis pool.
type Client struct {
	rdb *goredis.Client
}

// Dial connects and pings the server, failing fast when it is unreachable.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: timeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

// Set stores value under key. ttl <= 0 keeps it until deleted.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Publish(ctx context.Context, channel, payload string) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so nothing
// published after it returns is missed. stop is idempotent and closes the
// returned channel.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (<-chan Message, func(), error) {
	sub := c.rdb.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}
	out := make(chan Message, 64)
	go func() {
		defer close(out)
		for m := range sub.Channel() {
			out <- Message{Channel: m.Channel, Payload: m.Payload}
		}
	}()

	var once sync.Once
	stop := func() { once.Do(func() { _ = sub.Close() }) }
	return out, stop, nil
}
