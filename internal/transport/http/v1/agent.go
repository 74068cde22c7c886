package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/bridge"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// AgentCallback resolves a pending command. It acknowledges every
// authenticated request, matched or not, so the agent never retries.
// POST /v1/agent/callback
func (h *Handler) AgentCallback(c echo.Context) error {
	var req domain.CallbackRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("unreadable agent callback", "error", err)
		return c.JSON(http.StatusOK, domain.CallbackResponse{Received: true})
	}
	if req.CorrelationID == "" {
		h.logger.Warn("agent callback without correlation id")
		return c.JSON(http.StatusOK, domain.CallbackResponse{Received: true})
	}

	if !h.bridge.Resolve(req.CorrelationID, req.Result, req.Error) {
		h.logger.Info("agent callback ignored", "correlation_id", req.CorrelationID)
	}
	return c.JSON(http.StatusOK, domain.CallbackResponse{Received: true})
}

// ListPendingTasks shows the commands still waiting for a callback.
// GET /v1/agent/pending
func (h *Handler) ListPendingTasks(c echo.Context) error {
	tasks := h.bridge.PendingTasks()
	if tasks == nil {
		tasks = []bridge.PendingTask{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pending": tasks,
		"count":   len(tasks),
	})
}

// PingAgent sends a fire-and-forget ping through the outbound channel.
// POST /v1/agent/ping
func (h *Handler) PingAgent(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	if err := h.bridge.Ping(ctx); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
