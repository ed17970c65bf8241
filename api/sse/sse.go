package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/baycode/cache"
	"github.com/kasuganosora/baycode/hook"
	mw "github.com/kasuganosora/baycode/middleware"
	"github.com/kasuganosora/baycode/model"
)

// ChannelPrefix prefixes the pub/sub channel of each guild's chat.
const ChannelPrefix = "chat:"

// Channel returns the pub/sub channel carrying guild's chat.
func Channel(guild string) string { return ChannelPrefix + guild }

// Accounts resolves the caller of a stream.
type Accounts interface {
	CurrentAccount(ctx context.Context, token string) (model.Account, error)
}

// Handler streams guild chat as server-sent events.
type Handler struct {
	pubsub    cache.PubSub
	accounts  Accounts
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(pubsub cache.PubSub, accounts Accounts, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, accounts: accounts, keepalive: 30 * time.Second, logger: logger}
}

// ServeChat handles GET /sse/chat?token=<jwt>. It must run behind
// middleware.Auth, and streams the caller's guild chat until the client
// goes away.
func (h *Handler) ServeChat(c *gin.Context) {
	acc, err := h.accounts.CurrentAccount(c.Request.Context(), mw.GetToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, Channel(acc.Guild))
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("guild", acc.Guild), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stream unavailable"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"guild\":%q}\n\n", acc.Guild)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: chat\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// Publisher forwards accepted chat messages to their guild channel.
type Publisher struct {
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(pubsub cache.PubSub, logger *zap.Logger) *Publisher {
	return &Publisher{pubsub: pubsub, logger: logger}
}

// Attach publishes on AfterChatSend. Publish failures are logged and do
// not affect the sender.
func (p *Publisher) Attach(hooks *hook.Center) {
	hooks.Register(hook.AfterChatSend, 50, "sse", func(ctx context.Context, _ string, data any) (any, error) {
		msg, ok := data.(model.ChatMessage)
		if !ok {
			return data, nil
		}
		if err := p.Publish(ctx, msg); err != nil {
			p.logger.Warn("chat publish failed", zap.String("guild", msg.Guild), zap.Error(err))
		}
		return data, nil
	})
}

// Publish sends msg as JSON on its guild channel.
func (p *Publisher) Publish(ctx context.Context, msg model.ChatMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.pubsub.Publish(ctx, Channel(msg.Guild), string(raw))
}
