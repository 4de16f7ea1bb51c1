package admission

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/adt/adt/internal/domain/ward"
	"github.com/adt/adt/internal/platform/auth"
	"github.com/adt/adt/internal/platform/db"
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
	read.GET("/admissions", h.List)
	read.GET("/admissions/:id", h.Get)
	read.GET("/admissions/:id/bed", h.GetCurrentBed)
	read.GET("/admissions/:id/assignments", h.ListAssignments)

	write := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	write.POST("/admissions", h.Create)
	write.POST("/admissions/:id/bed", h.AssignBed)
	write.POST("/admissions/:id/transfer", h.TransferBed)
	write.POST("/admissions/:id/discharge", h.FinalizeDischarge)
	write.DELETE("/admissions/:id/discharge-request", h.CancelDischargeRequest)

	// Discharge requests carry their own authorization: the service
	// verifies the actor is the attending doctor of record.
	request := api.Group("", auth.RequireRole("admin", "physician"))
	request.POST("/admissions/:id/discharge-request", h.RequestDischarge)
}

type createRequest struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	AdmissionType string     `json:"admission_type"`
	Source        string     `json:"source"`
	Diagnosis     string     `json:"diagnosis"`
	BedID         *uuid.UUID `json:"bed_id,omitempty"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	adm := &Admission{
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		AppointmentID: req.AppointmentID,
		AdmissionType: req.AdmissionType,
		Source:        req.Source,
		Diagnosis:     req.Diagnosis,
	}
	actor := auth.ActorFromContext(c.Request().Context())
	if err := h.svc.Create(c.Request().Context(), adm, req.BedID, actor); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, adm)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	adm, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "admission not found")
	}
	return c.JSON(http.StatusOK, adm)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var filter Filter
	if p := c.QueryParam("patient_id"); p != "" {
		pid, err := uuid.Parse(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = &pid
	}
	if d := c.QueryParam("doctor_id"); d != "" {
		did, err := uuid.Parse(d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		filter.DoctorID = &did
	}
	filter.Status = c.QueryParam("status")

	adms, total, err := h.svc.List(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(adms, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

type dischargeRequestBody struct {
	Summary      string     `json:"summary"`
	ExpectedDate *time.Time `json:"expected_date,omitempty"`
}

func (h *Handler) RequestDischarge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body dischargeRequestBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doctorID, err := uuid.Parse(auth.ActorFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "actor is not a doctor of record")
	}
	adm, err := h.svc.RequestDischarge(c.Request().Context(), id, doctorID, body.Summary, body.ExpectedDate)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, adm)
}

func (h *Handler) CancelDischargeRequest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	adm, err := h.svc.CancelDischargeRequest(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, adm)
}

type finalizeRequest struct {
	DischargeType string `json:"discharge_type"`
	Condition     string `json:"condition_on_discharge"`
	FollowUp      string `json:"follow_up_instructions"`
}

func (h *Handler) FinalizeDischarge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body finalizeRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	adm, err := h.svc.FinalizeDischarge(c.Request().Context(), id, actor, body.DischargeType, body.Condition, body.FollowUp)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, adm)
}

type assignRequest struct {
	BedID uuid.UUID `json:"bed_id"`
}

func (h *Handler) AssignBed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body assignRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	assignment, err := h.svc.AssignBed(c.Request().Context(), id, body.BedID, actor)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, assignment)
}

type transferRequest struct {
	BedID  uuid.UUID `json:"bed_id"`
	Reason string    `json:"reason"`
}

func (h *Handler) TransferBed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body transferRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := auth.ActorFromContext(c.Request().Context())
	assignment, err := h.svc.TransferBed(c.Request().Context(), id, body.BedID, actor, body.Reason)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, assignment)
}

func (h *Handler) GetCurrentBed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	bed, err := h.svc.GetCurrentBed(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]*ward.Bed{"bed": bed})
}

func (h *Handler) ListAssignments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	assignments, err := h.svc.ListAssignments(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, assignments)
}

// mapError translates the domain error taxonomy to HTTP statuses.
func mapError(err error) error {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidStateTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ward.ErrBedUnavailable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrConcurrentUpdate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
