package sequence

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/adt/adt/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole("admin"))
	admin.POST("/sequences", h.Register)
	admin.GET("/sequences", h.List)

	issue := api.Group("", auth.RequireRole("admin", "registrar", "nurse", "physician"))
	issue.POST("/sequences/:type/next", h.Next)
}

func (h *Handler) Register(c echo.Context) error {
	var seq Sequence
	if err := c.Bind(&seq); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Register(c.Request().Context(), &seq); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, seq)
}

func (h *Handler) List(c echo.Context) error {
	seqs, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, seqs)
}

func (h *Handler) Next(c echo.Context) error {
	id, err := h.svc.Next(c.Request().Context(), c.Param("type"))
	if err != nil {
		if errors.Is(err, ErrSequenceExhausted) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"value": id})
}
