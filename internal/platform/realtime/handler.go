package realtime

import (
	"net/http"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medisync/gateway/internal/platform/auth"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades authenticated HTTP requests to WebSocket connections and
// registers them with the hub.
type Handler struct {
	hub      *Hub
	router   *Router
	guard    Guard
	logger   zerolog.Logger
	sendWait time.Duration
}

func NewHandler(hub *Hub, router *Router, guard Guard, logger zerolog.Logger, sendWait time.Duration) *Handler {
	return &Handler{
		hub:      hub,
		router:   router,
		guard:    guard,
		logger:   logger.With().Str("component", "realtime_handler").Logger(),
		sendWait: sendWait,
	}
}

// RegisterRoutes registers the WebSocket endpoint on the provided group. The
// group must carry the auth middleware so a principal is present.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.Connect)
}

// Connect runs the connect-time gates, upgrades the transport, registers the
// connection, and starts the pumps. Gate rejections are returned as plain
// HTTP errors since the upgrade has not happened yet.
func (h *Handler) Connect(c echo.Context) error {
	ctx := c.Request().Context()
	userID := auth.UserIDFromContext(ctx)
	role := auth.RoleFromContext(ctx)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	start := time.Now()

	rejection, err := h.guard.GuardEvent(ctx, userID, role, "connect")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "connection could not be admitted")
	}
	if rejection != nil {
		return c.JSON(rejection.Status, rejection)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(userID, role, &GorillaConn{WS: ws}, h.sendWait)
	h.hub.Register(client)
	h.guard.AuditEvent(ctx, userID, "connect", http.StatusSwitchingProtocols, start)

	go client.WritePump()
	go h.router.ReadPump(client)

	h.logger.Debug().Str("user_id", userID).Str("role", role).
		Str("conn_id", string(client.ID)).Msg("websocket connected")
	return nil
}
