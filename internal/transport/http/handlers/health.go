package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadinessCheck probes one dependency.
type ReadinessCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	startedAt     time.Time
	authenticated func() bool
	tier          func() string
	checks        []ReadinessCheck
}

// HealthOption customizes the health handler.
type HealthOption func(*HealthHandler)

// WithAuthStatus wires the auth state reported by /healthz.
func WithAuthStatus(authenticated func() bool, tier func() string) HealthOption {
	return func(h *HealthHandler) {
		h.authenticated = authenticated
		h.tier = tier
	}
}

// WithReadinessCheck adds a named dependency probe to /readyz.
func WithReadinessCheck(name string, probe func(ctx context.Context) error) HealthOption {
	return func(h *HealthHandler) {
		h.checks = append(h.checks, ReadinessCheck{Name: name, Probe: probe})
	}
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{startedAt: time.Now().UTC()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Status reports liveness plus the active auth tier.
func (h *HealthHandler) Status(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
		Tier:      "anonymous",
	}
	if h.authenticated != nil {
		resp.Authenticated = h.authenticated()
	}
	if h.tier != nil {
		resp.Tier = h.tier()
	}
	c.JSON(http.StatusOK, resp)
}

// Readiness probes every registered dependency.
func (h *HealthHandler) Readiness(c *gin.Context) {
	resp := ReadinessResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		err := check.Probe(ctx)
		cancel()
		if err != nil {
			resp.Checks[check.Name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[check.Name] = "ok"
	}

	c.JSON(status, resp)
}
