package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/karanb192/reddit-mcp-buddy/internal/infra/logger"
)

// ErrorResponse represents a generic error payload with the request id for
// correlation.
type ErrorResponse struct {
	Error     string `json:"error"`
	Guidance  string `json:"guidance,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// NewErrorResponse creates an error response carrying the request id.
func NewErrorResponse(c *gin.Context, errorMsg, guidance string) ErrorResponse {
	requestID, _ := c.Request.Context().Value(logger.RequestIDKey{}).(string)
	return ErrorResponse{
		Error:     errorMsg,
		Guidance:  guidance,
		RequestID: requestID,
	}
}

// HealthResponse describes the liveness payload.
type HealthResponse struct {
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	Authenticated bool      `json:"authenticated"`
	Tier          string    `json:"tier"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
