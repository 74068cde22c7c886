// Package v1 provides the HTTP handlers for the pipeline API.
package v1

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/storefront"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/bridge"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// Header names for the two shared secrets.
const (
	AdminKeyHeader = "X-Admin-Key"
	AgentKeyHeader = "X-API-Key"
)

// Pipeline is the orchestrator surface the handlers need.
type Pipeline interface {
	Start(ctx context.Context, kind domain.RunKind, limits domain.Limits, triggeredBy domain.Trigger) (*domain.Run, error)
	Status(ctx context.Context) (*domain.StatusResponse, error)
	History(ctx context.Context, page, limit int) (*domain.HistoryResponse, error)
	Get(ctx context.Context, runID string) (*domain.Run, error)
	Cancel(ctx context.Context, runID string) (*domain.Run, error)
}

// Bridge is the agent bridge surface the handlers need.
type Bridge interface {
	Resolve(correlationID string, result json.RawMessage, errMsg string) bool
	PendingTasks() []bridge.PendingTask
	Ping(ctx context.Context) error
}

// Storefront is the proxy surface exposed to operators. Every call goes
// through the agent and may come back as a pending placeholder.
type Storefront interface {
	ListingCount(ctx context.Context) (domain.Outcome[int], error)
	GetListing(ctx context.Context, listingID string) (domain.Outcome[storefront.ListingResult], error)
	UpdateListing(ctx context.Context, listingID string, update storefront.ListingUpdate) (domain.Outcome[storefront.ListingResult], error)
	DeleteListing(ctx context.Context, listingID string) (domain.Outcome[storefront.DeleteResult], error)
	CreateFulfillment(ctx context.Context, in storefront.FulfillmentInput) (domain.Outcome[storefront.FulfillmentResult], error)
}

// SocketEndpoint upgrades agent connections. Nil when the webhook transport
// is in use.
type SocketEndpoint interface {
	HandleWebSocket(c echo.Context) error
}

// Auth holds the shared secrets. An empty key leaves its routes open.
type Auth struct {
	AdminKey string
	AgentKey string
}

// Handler handles HTTP requests.
type Handler struct {
	pipeline   Pipeline
	bridge     Bridge
	storefront Storefront
	socket     SocketEndpoint
	logger     *slog.Logger
}

// NewHandler creates a new handler. A nil storefront leaves the storefront
// routes unregistered.
func NewHandler(pipeline Pipeline, bridge Bridge, storefront Storefront, socket SocketEndpoint, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline:   pipeline,
		bridge:     bridge,
		storefront: storefront,
		socket:     socket,
		logger:     logger.With("component", "http"),
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo, auth Auth) {
	// Operator API
	admin := e.Group("/v1", requireKey(AdminKeyHeader, auth.AdminKey))
	admin.POST("/pipeline/runs", h.TriggerRun)
	admin.GET("/pipeline/runs", h.ListRuns)
	admin.GET("/pipeline/runs/:run_id", h.GetRun)
	admin.POST("/pipeline/runs/:run_id/cancel", h.CancelRun)
	admin.GET("/pipeline/status", h.GetStatus)
	admin.GET("/agent/pending", h.ListPendingTasks)
	admin.POST("/agent/ping", h.PingAgent)
	if h.storefront != nil {
		admin.GET("/storefront/count", h.ListingCount)
		admin.GET("/storefront/listings/:listing_id", h.GetListing)
		admin.PATCH("/storefront/listings/:listing_id", h.UpdateListing)
		admin.DELETE("/storefront/listings/:listing_id", h.DeleteListing)
		admin.POST("/storefront/fulfillments", h.CreateFulfillment)
	}

	// Agent API
	agent := e.Group("/v1/agent", requireKey(AgentKeyHeader, auth.AgentKey))
	agent.POST("/callback", h.AgentCallback)
	if h.socket != nil {
		agent.GET("/ws", h.socket.HandleWebSocket)
	}

	e.GET("/health", h.Health)
}

// requireKey checks a shared secret header; an empty secret disables it.
func requireKey(header, secret string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + header,
		Skipper: func(echo.Context) bool {
			return secret == ""
		},
		Validator: func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(secret)) == 1, nil
		},
	})
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
