package sse

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kasuganosora/baycode/cache"
	"github.com/kasuganosora/baycode/hook"
	mw "github.com/kasuganosora/baycode/middleware"
	"github.com/kasuganosora/baycode/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// accounts doubles as the session resolver and the account lookup.
type accounts map[string]model.Account

func (a accounts) Resolve(_ context.Context, token string) (string, error) {
	acc, ok := a[token]
	if !ok {
		return "", errors.New("no session")
	}
	return acc.ID, nil
}

func (a accounts) CurrentAccount(_ context.Context, token string) (model.Account, error) {
	acc, ok := a[token]
	if !ok {
		return model.Account{}, errors.New("no session")
	}
	return acc, nil
}

func newServer(t *testing.T) (*httptest.Server, cache.PubSub) {
	t.Helper()
	ps, err := cache.NewPubSub(cache.CacheConfig{})
	require.NoError(t, err)

	accs := accounts{"tok": {ID: "acc-1", Username: "alice", Guild: "Red Guild"}}
	h := NewHandler(ps, accs, zap.NewNop())
	h.keepalive = 20 * time.Millisecond

	r := gin.New()
	r.GET("/sse/chat", mw.Auth(accs), h.ServeChat)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, ps
}

// readUntil returns the first line with prefix.
func readUntil(t *testing.T, rd *bufio.Reader, prefix string) string {
	t.Helper()
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line)
		}
	}
}

func TestServeChat_RequiresSession(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/sse/chat?token=bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeChat_StreamsOwnGuild(t *testing.T) {
	srv, ps := newServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/chat?token=tok", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	assert.Equal(t, "event: connected", readUntil(t, rd, "event:"))
	assert.Contains(t, readUntil(t, rd, "data:"), "Red Guild")

	hooks := hook.NewCenter()
	NewPublisher(ps, zap.NewNop()).Attach(hooks)
	_, err = hooks.Trigger(ctx, hook.AfterChatSend, model.ChatMessage{ID: "m0", Username: "bob", Body: "elsewhere", Guild: "Blue Guild"})
	require.NoError(t, err)
	_, err = hooks.Trigger(ctx, hook.AfterChatSend, model.ChatMessage{ID: "m1", Username: "carol", Body: "hi reds", Guild: "Red Guild"})
	require.NoError(t, err)

	assert.Equal(t, "event: chat", readUntil(t, rd, "event: chat"))
	data := readUntil(t, rd, "data:")
	assert.Contains(t, data, `"message":"hi reds"`)
	assert.NotContains(t, data, "elsewhere")

	assert.Equal(t, ": keepalive", readUntil(t, rd, ": keepalive"))
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "chat:Blue Guild", Channel("Blue Guild"))
}
