package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/baycode/community/guild"
	"github.com/kasuganosora/baycode/community/session"
	mw "github.com/kasuganosora/baycode/middleware"
)

// AccountHandler serves the signed-in account and dashboard.
type AccountHandler struct {
	mgr *session.Manager
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(mgr *session.Manager) *AccountHandler {
	return &AccountHandler{mgr: mgr}
}

// Me handles GET /api/me.
func (h *AccountHandler) Me(c *gin.Context) {
	acc, err := h.mgr.CurrentAccount(c.Request.Context(), mw.GetToken(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, accountView(acc))
}

type dashboardResponse struct {
	User      AccountView      `json:"user"`
	Guild     GuildView        `json:"guild"`
	AllGuilds []guild.Standing `json:"allGuilds"`
	GuildRank int              `json:"guildRank"`
}

// Dashboard handles GET /api/me/dashboard.
func (h *AccountHandler) Dashboard(c *gin.Context) {
	d, err := h.mgr.Dashboard(c.Request.Context(), mw.GetToken(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	var own guild.Standing
	for _, s := range d.AllGuilds {
		if s.Name == d.Guild.Name {
			own = s
			break
		}
	}
	c.JSON(http.StatusOK, dashboardResponse{
		User:      accountView(d.Account),
		Guild:     GuildView{Standing: own, Members: memberNames(h.mgr, d.Guild.Members)},
		AllGuilds: d.AllGuilds,
		GuildRank: d.GuildRank,
	})
}

func memberNames(mgr *session.Manager, ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if acc, err := mgr.Accounts().Get(id); err == nil {
			names = append(names, acc.Username)
		}
	}
	return names
}
