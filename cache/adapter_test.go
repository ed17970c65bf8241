package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/baycode/cache/local"
	cacheredis "github.com/kasuganosora/baycode/cache/redis"
)

func backends(t *testing.T) map[string]CacheConfig {
	mr := miniredis.RunT(t)
	return map[string]CacheConfig{
		"local": {LocalGCInterval: time.Hour, LocalPubSubBuf: 4},
		"redis": {RedisAddr: mr.Addr()},
	}
}

func TestNewCache_Backends(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c, err := NewCache(cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = c.Close() })
			ctx := context.Background()

			require.NoError(t, c.Set(ctx, "session:t1", "acc-1", time.Hour))
			v, err := c.Get(ctx, "session:t1")
			require.NoError(t, err)
			assert.Equal(t, "acc-1", v)

			require.NoError(t, c.Del(ctx, "session:t1"))
			_, err = c.Get(ctx, "session:t1")
			assert.True(t, IsNotFound(err), "got %v", err)
		})
	}
}

func TestNewPubSub_Backends(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ps, err := NewPubSub(cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = ps.Close() })
			ctx := context.Background()

			ch, stop, err := ps.Subscribe(ctx, "chat:Red Guild")
			require.NoError(t, err)
			defer stop()
			require.NoError(t, ps.Publish(ctx, "chat:Red Guild", "payload"))

			select {
			case msg := <-ch:
				assert.Equal(t, &Message{Channel: "chat:Red Guild", Payload: "payload"}, msg)
			case <-time.After(2 * time.Second):
				t.Fatal("no message")
			}
		})
	}
}

func TestNewCache_UnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	c, err := NewCache(CacheConfig{RedisAddr: addr})
	assert.Error(t, err)
	assert.Nil(t, c)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("load: %w", local.ErrNotFound)))
	assert.True(t, IsNotFound(cacheredis.ErrNotFound))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(context.Canceled))
}
