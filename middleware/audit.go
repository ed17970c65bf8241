package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/baycode/audit"
)

// AuditContext stamps the request context with the trace id and client IP
// so audit entries raised while handling it can carry them. It must run
// after TraceID.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := audit.RequestInfo{TraceID: GetTraceID(c), IP: c.ClientIP()}
		c.Request = c.Request.WithContext(audit.WithRequestInfo(c.Request.Context(), info))
		c.Next()
	}
}
