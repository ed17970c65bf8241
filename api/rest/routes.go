package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/baycode/community/session"
	mw "github.com/kasuganosora/baycode/middleware"
)

// Mount registers the community API on r. Every route resolves sessions
// through mgr.
func Mount(r gin.IRouter, mgr *session.Manager, logger *zap.Logger) {
	authH := NewAuthHandler(mgr, logger)
	accountH := NewAccountHandler(mgr)
	guildH := NewGuildHandler(mgr)
	rankH := NewRankingHandler(mgr)
	problemH := NewProblemHandler(mgr)
	chatH := NewChatHandler(mgr)
	required := mw.Auth(mgr)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"accounts": mgr.Accounts().Len(),
			"sessions": mgr.ActiveSessions(),
		})
	})

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/register", authH.Register)
		authG.POST("/login", authH.Login)
		authG.POST("/logout", required, authH.Logout)
		authG.POST("/password/forgot", authH.ForgotPassword)
		authG.POST("/password/reset", authH.ResetPassword)

		meG := api.Group("/me", required)
		meG.GET("", accountH.Me)
		meG.GET("/dashboard", accountH.Dashboard)

		api.GET("/guilds", guildH.List)
		api.GET("/guilds/:name", guildH.Get)

		rankG := api.Group("/ranking")
		rankG.GET("/respect", rankH.Respect)
		rankG.GET("/solved", rankH.Solved)

		api.GET("/problems", mw.OptionalAuth(mgr), problemH.List)
		api.POST("/problems/:id/solve", required, problemH.Solve)

		api.GET("/chat", required, chatH.List)
		api.POST("/chat", required, chatH.Send)
	}
}
