// Package api provides the gateway's HTTP handlers.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/frateto/gateway/agent"
	"github.com/frateto/gateway/config"
	"github.com/frateto/gateway/queryguard"
	"github.com/frateto/gateway/ratelimit"
	"github.com/frateto/gateway/session"
	"github.com/frateto/gateway/store"
)

// Handler handles HTTP requests.
type Handler struct {
	registry *session.Registry
	limiter  *ratelimit.Limiter
	guard    *queryguard.Guard
	executor *store.Executor
	producer agent.Producer
	config   *config.Config
}

// NewHandler creates a new handler.
func NewHandler(cfg *config.Config, registry *session.Registry, limiter *ratelimit.Limiter, guard *queryguard.Guard, executor *store.Executor, producer agent.Producer) *Handler {
	return &Handler{
		registry: registry,
		limiter:  limiter,
		guard:    guard,
		executor: executor,
		producer: producer,
		config:   cfg,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Chat front-end
	e.POST("/api/chat", h.Chat)

	// Agent runtime callbacks
	e.POST("/v1/tools/sql", h.ExecuteSQL)
	e.GET("/v1/schema", h.GetSchema)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
