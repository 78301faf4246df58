package casemgmt

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rabiesresq/rabiesresq/internal/platform/auth"
	"github.com/rabiesresq/rabiesresq/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the patient and staff endpoints. sweep runs before
// every staff read so listings reflect missed appointments.
func (h *Handler) RegisterRoutes(api *echo.Group, sweep echo.MiddlewareFunc) {
	if sweep == nil {
		sweep = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	patientOnly := []echo.MiddlewareFunc{auth.RequireRole(auth.RolePatient), auth.RequirePatient()}
	api.POST("/intake", h.SubmitIntake, patientOnly...)

	patient := api.Group("/patient", patientOnly...)
	patient.GET("/cases", h.ListPatientCases)
	patient.GET("/appointments", h.ListPatientAppointments)
	patient.POST("/appointments/:id/cancel", h.CancelAppointment)
	patient.GET("/profile", h.GetProfile)
	patient.PUT("/profile", h.UpdateProfile)

	staff := api.Group("/staff", auth.RequireRole(auth.RoleClinicPersonnel), auth.RequireClinic())
	staff.GET("/dashboard", h.Dashboard, sweep)
	staff.GET("/cases", h.ListCases, sweep)
	staff.GET("/cases/:id", h.GetCase, sweep)
	staff.GET("/appointments", h.ListAppointments, sweep)

	staff.POST("/appointments/:id/approve", h.Approve)
	staff.POST("/appointments/:id/remove", h.Remove)
	staff.POST("/appointments/:id/reschedule", h.Reschedule)
	staff.POST("/cases/:id/complete", h.Complete)
	staff.POST("/cases/:id/archive", h.Archive)
	staff.POST("/cases/:id/notes", h.AddNote)
	staff.POST("/cases/:id/doses", h.RecordDose)
}

// httpError maps service errors onto HTTP responses. Storage details never
// reach the client.
func httpError(err error, what string) error {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, what+" not found.")
	case errors.Is(err, ErrAlreadyCancelled):
		return echo.NewHTTPError(http.StatusConflict, "Appointment is already cancelled.")
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{
			"message": "validation failed",
			"errors":  ve.Messages(),
		})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong. Please try again.").SetInternal(err)
	}
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func actorOf(c echo.Context) auth.Actor {
	a, _ := auth.ActorFromContext(c.Request().Context())
	return a
}

// -- Patient --

func (h *Handler) SubmitIntake(c echo.Context) error {
	var form IntakeForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.SubmitIntake(c.Request().Context(), actorOf(c).PatientID, form)
	if err != nil {
		return httpError(err, "Patient")
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListPatientCases(c echo.Context) error {
	items, err := h.svc.ListPatientCases(c.Request().Context(), actorOf(c).PatientID)
	if err != nil {
		return httpError(err, "Case")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) ListPatientAppointments(c echo.Context) error {
	items, err := h.svc.ListPatientAppointments(c.Request().Context(), actorOf(c).PatientID)
	if err != nil {
		return httpError(err, "Appointment")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.CancelByPatient(c.Request().Context(), id, actorOf(c).PatientID)
	if err != nil {
		return httpError(err, "Appointment")
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) GetProfile(c echo.Context) error {
	p, err := h.svc.GetPatientProfile(c.Request().Context(), actorOf(c).PatientID)
	if err != nil {
		return httpError(err, "Patient")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var form ProfileForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatientProfile(c.Request().Context(), actorOf(c).PatientID, form)
	if err != nil {
		return httpError(err, "Patient")
	}
	return c.JSON(http.StatusOK, p)
}

// -- Staff reads --

func (h *Handler) Dashboard(c echo.Context) error {
	clinicID := actorOf(c).ClinicID
	counts, err := h.svc.Dashboard(c.Request().Context(), clinicID)
	if err != nil {
		return httpError(err, "Clinic")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"clinic_id": clinicID, "case_counts": counts})
}

func (h *Handler) ListCases(c echo.Context) error {
	var f CaseFilter
	if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
		st, err := ParseCaseStatus(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Status = st
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCases(c.Request().Context(), actorOf(c).ClinicID, f, pg.Limit(), pg.Offset())
	if err != nil {
		return httpError(err, "Case")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetCase(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	detail, err := h.svc.GetCaseDetail(c.Request().Context(), id, actorOf(c).ClinicID)
	if err != nil {
		return httpError(err, "Case")
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	var f AppointmentFilter
	if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
		st, err := ParseAppointmentStatus(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Status = st
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), actorOf(c).ClinicID, f, pg.Limit(), pg.Offset())
	if err != nil {
		return httpError(err, "Appointment")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// -- Staff transitions --

func (h *Handler) Approve(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.Approve(c.Request().Context(), id, actorOf(c).ClinicID)
	if err != nil {
		return httpError(err, "Appointment")
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Remove(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.Remove(c.Request().Context(), id, actorOf(c).ClinicID)
	if err != nil {
		return httpError(err, "Appointment")
	}
	return c.JSON(http.StatusOK, appt)
}

type rescheduleRequest struct {
	Date string `json:"date" form:"date"`
	Time string `json:"time" form:"time"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.Reschedule(c.Request().Context(), id, actorOf(c).ClinicID, req.Date, req.Time)
	if err != nil {
		return httpError(err, "Appointment")
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cs, err := h.svc.Complete(c.Request().Context(), id, actorOf(c).ClinicID)
	if err != nil {
		return httpError(err, "Case")
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) Archive(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cs, err := h.svc.Archive(c.Request().Context(), id, actorOf(c).ClinicID)
	if err != nil {
		return httpError(err, "Case")
	}
	return c.JSON(http.StatusOK, cs)
}

type noteRequest struct {
	Body string `json:"body" form:"body"`
}

func (h *Handler) AddNote(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := actorOf(c)
	note, err := h.svc.AddNote(c.Request().Context(), id, actor.ClinicID, actor.ID, req.Body)
	if err != nil {
		return httpError(err, "Case")
	}
	return c.JSON(http.StatusCreated, note)
}

func (h *Handler) RecordDose(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in DoseInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := actorOf(c)
	dose, err := h.svc.RecordDose(c.Request().Context(), id, actor.ClinicID, actor.ID, in)
	if err != nil {
		return httpError(err, "Case")
	}
	return c.JSON(http.StatusCreated, dose)
}
