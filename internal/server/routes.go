package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewEcho builds the configured Echo instance with all routes registered.
func NewEcho(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	RegisterRoutes(e, h)
	return e
}

// RegisterRoutes wires the API surface onto the Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/health", h.HandleHealth)

	docs := e.Group("/api/documents")
	docs.POST("/extract", h.HandleExtract)

	entities := e.Group("/api/entities")
	entities.GET("", h.HandleListEntities)
	entities.GET("/search", h.HandleSearchEntities)
	entities.GET("/export", h.HandleExportEntities)
	entities.GET("/:id", h.HandleGetEntity)
	entities.DELETE("/:id", h.HandleDeleteEntity)
}
