package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/baycode/community"
	"github.com/kasuganosora/baycode/community/chat"
)

var statusByErr = []struct {
	err    error
	status int
}{
	{community.ErrDuplicateUsername, http.StatusConflict},
	{community.ErrDuplicateEmail, http.StatusConflict},
	{community.ErrWeakCredential, http.StatusBadRequest},
	{community.ErrMissingField, http.StatusBadRequest},
	{community.ErrUserNotFound, http.StatusNotFound},
	{community.ErrInvalidCredential, http.StatusUnauthorized},
	{community.ErrInvalidToken, http.StatusBadRequest},
	{community.ErrTokenExpired, http.StatusBadRequest},
	{community.ErrDeliveryFailed, http.StatusBadGateway},
	{community.ErrNoSession, http.StatusUnauthorized},
	{community.ErrUnknownGuild, http.StatusNotFound},
	{community.ErrUnknownProblem, http.StatusNotFound},
	{chat.ErrEmptyMessage, http.StatusBadRequest},
	{chat.ErrMessageTooLong, http.StatusBadRequest},
}

// statusOf maps a community error to its HTTP status. Anything unknown is
// a server error.
func statusOf(err error) int {
	for _, e := range statusByErr {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func abortWith(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	} else {
		for _, e := range statusByErr {
			if errors.Is(err, e.err) {
				msg = e.err.Error()
				break
			}
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
