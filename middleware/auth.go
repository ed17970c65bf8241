package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccountIDKey = "account_id"
	TokenKey     = "session_token"
)

// SessionResolver maps a bearer token to the signed-in account id.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// BearerToken returns the token from "Authorization: Bearer <token>", or
// from the token query parameter for clients that cannot set headers
// (EventSource).
func BearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

func resolve(c *gin.Context, r SessionResolver) (string, string, bool) {
	token := BearerToken(c)
	if token == "" {
		return "", "", false
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	id, err := r.Resolve(ctx, token)
	if err != nil {
		return token, "", false
	}
	return token, id, true
}

// Auth rejects requests without a live session.
func Auth(r SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, id, ok := resolve(c, r)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}
		c.Set(AccountIDKey, id)
		c.Set(TokenKey, token)
		c.Next()
	}
}

// OptionalAuth records the session when one is presented and valid, and
// lets anonymous requests through.
func OptionalAuth(r SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, id, ok := resolve(c, r); ok {
			c.Set(AccountIDKey, id)
			c.Set(TokenKey, token)
		}
		c.Next()
	}
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) string {
	return c.GetString(AccountIDKey)
}

// GetToken retrieves the session token accepted by Auth or OptionalAuth.
func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}
