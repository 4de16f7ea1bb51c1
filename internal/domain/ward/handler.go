package ward

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/adt/adt/internal/platform/auth"
	"github.com/adt/adt/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar", "bed_manager"))
	read.GET("/rooms", h.ListRooms)
	read.GET("/rooms/:id", h.GetRoom)
	read.GET("/beds", h.ListBeds)
	read.GET("/beds/available", h.ListAvailableBeds)
	read.GET("/beds/:id", h.GetBed)
	read.GET("/beds/:id/occupant", h.GetOccupant)
	read.GET("/beds/:id/history", h.GetBedHistory)

	// Facility setup
	setup := api.Group("", auth.RequireRole("admin"))
	setup.POST("/rooms", h.CreateRoom)
	setup.PATCH("/rooms/:id/operational", h.SetRoomOperational)
	setup.POST("/beds", h.CreateBed)

	// Maintenance / reservation actions
	staff := api.Group("", auth.RequireRole("admin", "nurse", "bed_manager"))
	staff.PATCH("/beds/:id/status", h.TransitionBedStatus)
}

// -- Rooms --

func (h *Handler) CreateRoom(c echo.Context) error {
	var room Room
	if err := c.Bind(&room); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateRoom(c.Request().Context(), &room); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, room)
}

func (h *Handler) GetRoom(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	room, err := h.svc.GetRoom(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	return c.JSON(http.StatusOK, room)
}

func (h *Handler) ListRooms(c echo.Context) error {
	pg := pagination.FromContext(c)
	rooms, total, err := h.svc.ListRooms(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rooms, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) SetRoomOperational(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Operational bool `json:"operational"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetRoomOperational(c.Request().Context(), id, body.Operational); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "room not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"operational": body.Operational})
}

// -- Beds --

func (h *Handler) CreateBed(c echo.Context) error {
	var bed Bed
	if err := c.Bind(&bed); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateBed(c.Request().Context(), &bed); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, bed)
}

func (h *Handler) GetBed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	bed, err := h.svc.GetBed(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "bed not found")
	}
	return c.JSON(http.StatusOK, bed)
}

func (h *Handler) ListBeds(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter, err := bedFilterFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	beds, total, err := h.svc.ListBeds(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(beds, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) ListAvailableBeds(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter, err := bedFilterFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	beds, total, err := h.svc.ListAvailableBeds(c.Request().Context(),
		filter.BedType, filter.Department, filter.Floor, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(beds, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) GetOccupant(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	occupant, err := h.svc.GetOccupant(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusOK, map[string]interface{}{"occupant": nil})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"occupant": occupant})
}

func (h *Handler) GetBedHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	history, err := h.svc.GetBedHistory(c.Request().Context(), id, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, history)
}

func (h *Handler) TransitionBedStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Status string  `json:"status"`
		Reason *string `json:"reason,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	if err := h.svc.StaffTransition(c.Request().Context(), id, body.Status, actor, body.Reason); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": body.Status})
}

func bedFilterFromQuery(c echo.Context) (BedFilter, error) {
	filter := BedFilter{
		Status:     c.QueryParam("status"),
		BedType:    c.QueryParam("type"),
		Department: c.QueryParam("department"),
	}
	if f := c.QueryParam("floor"); f != "" {
		floor, err := strconv.Atoi(f)
		if err != nil {
			return filter, errors.New("invalid floor")
		}
		filter.Floor = &floor
	}
	if r := c.QueryParam("room_id"); r != "" {
		roomID, err := uuid.Parse(r)
		if err != nil {
			return filter, errors.New("invalid room_id")
		}
		filter.RoomID = &roomID
	}
	return filter, nil
}
