package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/baycode/community/session"
	mw "github.com/kasuganosora/baycode/middleware"
)

// ChatHandler serves the guild chat log.
type ChatHandler struct {
	mgr *session.Manager
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(mgr *session.Manager) *ChatHandler {
	return &ChatHandler{mgr: mgr}
}

type sendRequest struct {
	Message string `json:"message" binding:"required"`
}

// List handles GET /api/chat?guild=. Without a guild the caller's own
// guild is listed.
func (h *ChatHandler) List(c *gin.Context) {
	msgs := h.mgr.Messages(c.Request.Context(), mw.GetToken(c), c.Query("guild"))
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Send handles POST /api/chat.
func (h *ChatHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.mgr.SendChat(c.Request.Context(), mw.GetToken(c), req.Message)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
