package auditlog

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medisync/gateway/internal/platform/auth"
	"github.com/medisync/gateway/pkg/pagination"
)

// Handler exposes the audit trail to compliance officers. Read-only.
type Handler struct {
	searcher Searcher
}

func NewHandler(searcher Searcher) *Handler {
	return &Handler{searcher: searcher}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAdmin))
	g.GET("/audit", h.Search)
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		UserID:       c.QueryParam("user_id"),
		Action:       Action(c.QueryParam("action")),
		ResourceType: c.QueryParam("resource_type"),
		Limit:        pg.Limit,
		Offset:       pg.Offset,
	}
	if from := c.QueryParam("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be RFC3339")
		}
		f.From = t
	}
	if to := c.QueryParam("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be RFC3339")
		}
		f.To = t
	}

	entries, total, err := h.searcher.Search(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "audit search failed")
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}
