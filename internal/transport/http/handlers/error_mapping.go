package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/karanb192/reddit-mcp-buddy/internal/core/domain"
	appLogger "github.com/karanb192/reddit-mcp-buddy/internal/infra/logger"
	"github.com/karanb192/reddit-mcp-buddy/internal/reddit"
)

// statusForKind translates the gateway error taxonomy to HTTP status codes.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindAuthUnavailable:
		return http.StatusBadGateway
	case domain.KindUpstreamOverloaded:
		return http.StatusServiceUnavailable
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindUpstreamDegraded, domain.KindUpstreamError, domain.KindNetworkUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError maps validation and gateway failures onto HTTP responses.
// Rate-limited responses carry a Retry-After header. Unclassified errors are
// logged with the request id before the generic 500.
func RespondWithError(c *gin.Context, err error) {
	if reddit.IsInvalidInput(err) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error(), ""))
		return
	}

	var gerr *domain.Error
	if errors.As(err, &gerr) {
		status := statusForKind(gerr.Kind)
		if gerr.Kind == domain.KindRateLimited && gerr.RetryAfter > 0 {
			seconds := int(math.Ceil(gerr.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		c.JSON(status, NewErrorResponse(c, string(gerr.Kind), gerr.Guidance))
		return
	}

	appLogger.WithContext(c.Request.Context()).Error("unclassified handler error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "internal error", ""))
}
