// Package http provides the HTTP server implementation for the pipeline.
package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	v1 "github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server: the operator API, the
// agent callback and socket endpoints, health and metrics.
func NewServer(handler *v1.Handler, auth v1.Auth, metrics http.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	// Register Routes
	handler.RegisterRoutes(e, auth)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	return e
}
