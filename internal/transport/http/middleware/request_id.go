package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/karanb192/reddit-mcp-buddy/internal/infra/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags every request with a correlation id, echoed in the response
// header and carried on the context for the access log and error payloads.
// An id supplied by the caller is kept so gateway logs line up with theirs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, reqID)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
