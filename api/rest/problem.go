package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/baycode/community/problem"
	"github.com/kasuganosora/baycode/community/session"
	mw "github.com/kasuganosora/baycode/middleware"
)

// ProblemHandler serves the practice-problem catalogue.
type ProblemHandler struct {
	mgr *session.Manager
}

// NewProblemHandler creates a ProblemHandler.
func NewProblemHandler(mgr *session.Manager) *ProblemHandler {
	return &ProblemHandler{mgr: mgr}
}

type problemView struct {
	problem.Problem
	Solved bool `json:"solved"`
}

// List handles GET /api/problems?difficulty=&q=. Problems the caller has
// solved are marked when a session is presented.
func (h *ProblemHandler) List(c *gin.Context) {
	found := h.mgr.Problems().Find(c.Query("difficulty"), c.Query("q"))

	solved := map[string]bool{}
	if id := mw.GetAccountID(c); id != "" {
		if acc, err := h.mgr.Accounts().Get(id); err == nil {
			for _, p := range acc.SolvedProblems {
				solved[p] = true
			}
		}
	}

	out := make([]problemView, len(found))
	for i, p := range found {
		out[i] = problemView{Problem: p, Solved: solved[p.ID]}
	}
	c.JSON(http.StatusOK, gin.H{"problems": out, "total": len(out)})
}

// Solve handles POST /api/problems/:id/solve.
func (h *ProblemHandler) Solve(c *gin.Context) {
	ctx := c.Request.Context()
	token := mw.GetToken(c)
	newly, err := h.mgr.SolveProblem(ctx, token, c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	acc, err := h.mgr.CurrentAccount(ctx, token)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"solved": newly, "user": accountView(acc)})
}
