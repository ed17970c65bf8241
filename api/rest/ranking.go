package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/baycode/community/session"
)

// RankingHandler serves the individual leaderboards.
type RankingHandler struct {
	mgr *session.Manager
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(mgr *session.Manager) *RankingHandler {
	return &RankingHandler{mgr: mgr}
}

// Respect handles GET /api/ranking/respect.
func (h *RankingHandler) Respect(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": rankEntries(h.mgr.IndividualLeaderboard())})
}

// Solved handles GET /api/ranking/solved.
func (h *RankingHandler) Solved(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": rankEntries(h.mgr.ProblemSolvingLeaderboard())})
}
