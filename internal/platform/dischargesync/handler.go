package dischargesync

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/adt/adt/internal/platform/auth"
	"github.com/adt/adt/pkg/pagination"
)

// Handler exposes operator visibility into the outbox.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole("admin"))
	admin.GET("/discharge-events", h.ListEvents)
}

func (h *Handler) ListEvents(c echo.Context) error {
	pg := pagination.FromContext(c)
	events, total, err := h.svc.List(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}
