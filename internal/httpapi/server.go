// Package httpapi provides the HTTP surface: WebSocket upgrade, history
// and health queries, and static serving of persisted frames.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/Necoverse/awa/internal/hub"
	"github.com/Necoverse/awa/internal/store"
	"github.com/Necoverse/awa/internal/ws"
)

const maxHistoryLimit = 500

// Handler handles HTTP requests.
type Handler struct {
	store        store.Store
	hub          *hub.Hub
	defaultLimit int
	log          zerolog.Logger
}

// NewHandler creates a handler.
func NewHandler(st store.Store, h *hub.Hub, defaultLimit int, log zerolog.Logger) *Handler {
	return &Handler{
		store:        st,
		hub:          h,
		defaultLimit: defaultLimit,
		log:          log.With().Str("component", "httpapi").Logger(),
	}
}

// Register wires routes and middleware on the echo server.
func (h *Handler) Register(e *echo.Echo, wsServer *ws.Server, staticDir string) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/ws/:client_id", wsServer.HandleWebSocket)
	e.GET("/history/:client_id", h.GetHistory)
	e.GET("/health", h.Health)
	e.Static("/static", staticDir)
}

// GetHistory returns the persisted turns for a client, most recent
// first.
// GET /history/:client_id?limit=50
func (h *Handler) GetHistory(c echo.Context) error {
	clientID := c.Param("client_id")

	limit := h.defaultLimit
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	turns, err := h.store.History(c.Request().Context(), clientID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("client_id", clientID).Msg("failed to load history")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load history"})
	}

	return c.JSON(http.StatusOK, map[string]any{"history": turns})
}

// Health returns process liveness and the active session count.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "healthy",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"connections": h.hub.Count(),
	})
}
