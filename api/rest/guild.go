package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/baycode/community"
	"github.com/kasuganosora/baycode/community/session"
)

// GuildHandler serves the guild leaderboard.
type GuildHandler struct {
	mgr *session.Manager
}

// NewGuildHandler creates a GuildHandler.
func NewGuildHandler(mgr *session.Manager) *GuildHandler {
	return &GuildHandler{mgr: mgr}
}

// List handles GET /api/guilds, guilds by descending respect.
func (h *GuildHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"guilds": h.mgr.Guilds().Standings()})
}

// Get handles GET /api/guilds/:name.
func (h *GuildHandler) Get(c *gin.Context) {
	name := c.Param("name")
	g, ok := h.mgr.Guilds().Guild(name)
	if !ok {
		abortWith(c, community.ErrUnknownGuild)
		return
	}
	for _, s := range h.mgr.Guilds().Standings() {
		if s.Name == name {
			c.JSON(http.StatusOK, GuildView{Standing: s, Members: memberNames(h.mgr, g.Members)})
			return
		}
	}
	abortWith(c, community.ErrUnknownGuild)
}
