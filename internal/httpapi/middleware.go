package httpapi

import (
	"ops-platform/internal/audit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const headerCorrelationID = "X-Correlation-Id"

// CaptureAuditMeta resolves the inbound request's ambient metadata once and
// attaches it to the request context for the audit recorder. Callers further
// down never look at HTTP primitives for audit purposes.
//
// Correlation id precedence: inbound X-Correlation-Id, then the request id
// assigned by the logging middleware, then a fresh uuid. The resolved value
// is echoed on the response so clients can chain follow-up requests.
func CaptureAuditMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(headerCorrelationID)
		if cid == "" {
			cid = c.Writer.Header().Get("X-Request-Id")
		}
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Writer.Header().Set(headerCorrelationID, cid)

		meta := audit.RequestMeta{
			IPAddress:     c.ClientIP(),
			UserAgent:     c.Request.UserAgent(),
			Method:        c.Request.Method,
			Path:          c.Request.URL.Path,
			CorrelationID: cid,
		}
		c.Request = c.Request.WithContext(audit.WithRequestMeta(c.Request.Context(), meta))
		c.Next()
	}
}
