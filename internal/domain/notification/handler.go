package notification

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medisync/gateway/internal/platform/auth"
	"github.com/medisync/gateway/pkg/pagination"
)

type Handler struct {
	repo       Repository
	dispatcher *Dispatcher
}

func NewHandler(repo Repository, dispatcher *Dispatcher) *Handler {
	return &Handler{repo: repo, dispatcher: dispatcher}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Inbox endpoints operate on the caller's own notifications.
	api.GET("/notifications", h.List)
	api.GET("/notifications/unread", h.ListUnread)
	api.GET("/notifications/unread/count", h.CountUnread)
	api.POST("/notifications/:id/read", h.MarkRead)
	api.POST("/notifications/read-all", h.MarkAllRead)
	api.DELETE("/notifications/:id", h.Delete)

	// Dispatch endpoints produce notifications for others.
	send := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	send.POST("/notifications/send/user/:userID", h.SendToUser)
	send.POST("/notifications/send/role/:role", h.SendToRole)
	send.POST("/notifications/send/broadcast", h.SendToAll)
}

func (h *Handler) List(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.repo.ListByRecipient(c.Request().Context(), userID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list notifications")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListUnread(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	items, err := h.repo.ListUnread(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list notifications")
	}
	if items == nil {
		items = []*Notification{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CountUnread(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	count, err := h.repo.CountUnread(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count notifications")
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": count})
}

func (h *Handler) MarkRead(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.repo.MarkRead(c.Request().Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "notification not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark notification read")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	updated, err := h.repo.MarkAllRead(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark notifications read")
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": updated})
}

func (h *Handler) Delete(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.repo.Delete(c.Request().Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "notification not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete notification")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SendToUser(c echo.Context) error {
	var draft Draft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.dispatcher.SendToUser(c.Request().Context(), c.Param("userID"), draft)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) SendToRole(c echo.Context) error {
	role := c.Param("role")
	if !auth.IsKnownRole(role) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown role")
	}
	var draft Draft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.dispatcher.SendToRole(c.Request().Context(), role, draft)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]int{"created": len(created)})
}

func (h *Handler) SendToAll(c echo.Context) error {
	var draft Draft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.dispatcher.SendToAll(c.Request().Context(), draft)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]int{"created": len(created)})
}
