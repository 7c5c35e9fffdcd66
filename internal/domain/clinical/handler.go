package clinical

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/domain/authz"
	"github.com/clinicore/clinicore/internal/domain/credentials"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/storage"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/clinics", h.CreateClinic)
	api.GET("/clinics", h.ListClinics)
	api.GET("/clinics/:id", h.GetClinic)
	api.PUT("/clinics/:id", h.UpdateClinic)
	api.DELETE("/clinics/:id", h.DeleteClinic)
	api.GET("/clinics/:id/departments", h.ListDepartments)

	api.POST("/departments", h.CreateDepartment)
	api.GET("/departments/:id", h.GetDepartment)
	api.PUT("/departments/:id", h.UpdateDepartment)
	api.DELETE("/departments/:id", h.DeleteDepartment)

	api.POST("/doctors", h.CreateDoctor)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.PUT("/doctors/:id", h.UpdateDoctor)
	api.DELETE("/doctors/:id", h.DeleteDoctor)
	api.GET("/doctors/:id/appointments", h.ListAppointmentsByDoctor)

	api.POST("/patients", h.CreatePatient)
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)
	api.PUT("/patients/:id/assignment", h.AssignPatient)
	api.GET("/patients/:id/appointments", h.ListAppointmentsByPatient)

	api.POST("/appointments", h.CreateAppointment)
	api.GET("/appointments/:id", h.GetAppointment)
	api.PUT("/appointments/:id", h.UpdateAppointment)
	api.DELETE("/appointments/:id", h.DeleteAppointment)
	api.GET("/appointments/:id/observations", h.ListObservations)

	api.POST("/observations", h.CreateObservation)
	api.GET("/observations/:id", h.GetObservation)
	api.PUT("/observations/:id", h.UpdateObservation)
	api.DELETE("/observations/:id", h.DeleteObservation)
	api.POST("/observations/:id/file", h.AttachObservationFile)
	api.GET("/observations/:id/diagnoses", h.ListDiagnoses)

	api.POST("/diagnoses", h.CreateDiagnosis)
	api.GET("/diagnoses/:id", h.GetDiagnosis)
	api.PUT("/diagnoses/:id", h.UpdateDiagnosis)
	api.DELETE("/diagnoses/:id", h.DeleteDiagnosis)
	api.POST("/diagnoses/:id/file", h.AttachDiagnosisFile)

	api.GET("/files/:ref", h.OpenFile)
}

func callerRole(c echo.Context) (authz.Role, error) {
	role, err := authz.ParseRole(auth.RoleFromContext(c.Request().Context()))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid identity")
	}
	return role, nil
}

// -- Clinic --

func (h *Handler) CreateClinic(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var cl Clinic
	if err := c.Bind(&cl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateClinic(c.Request().Context(), role, &cl); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) GetClinic(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	cl, err := h.svc.GetClinic(c.Request().Context(), role, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) UpdateClinic(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var cl Clinic
	if err := c.Bind(&cl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl.ID = c.Param("id")
	if err := h.svc.UpdateClinic(c.Request().Context(), role, &cl); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) DeleteClinic(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteClinic(c.Request().Context(), role, c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListClinics(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListClinics(c.Request().Context(), role, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Department --

func (h *Handler) CreateDepartment(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var d Department
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateDepartment(c.Request().Context(), role, &d); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDepartment(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDepartment(c.Request().Context(), role, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDepartment(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var d Department
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = c.Param("id")
	if err := h.svc.UpdateDepartment(c.Request().Context(), role, &d); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDepartment(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDepartment(c.Request().Context(), role, c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDepartments(c.Request().Context(), role, c.Param("id"), pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Doctor --

type personResponse struct {
	Doctor  *Doctor  `json:"doctor,omitempty"`
	Patient *Patient `json:"patient,omitempty"`
	// Account carries the provisioned login; the derived password equals
	// the derived username until the person changes it.
	Account *credentials.Account `json:"account"`
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	account, err := h.svc.CreateDoctor(c.Request().Context(), role, &d)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, personResponse{Doctor: &d, Account: account})
}

func (h *Handler) GetDoctor(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), role, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = c.Param("id")
	if err := h.svc.UpdateDoctor(c.Request().Context(), role, &d); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), role, c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), role, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Patient --

func (h *Handler) CreatePatient(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	account, err := h.svc.CreatePatient(c.Request().Context(), role, &p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, personResponse{Patient: &p, Account: account})
}

func (h *Handler) GetPatient(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), role, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = c.Param("id")
	if err := h.svc.UpdatePatient(c.Request().Context(), role, &p); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), role, c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPatients(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), role, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) AssignPatient(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var req struct {
		DoctorID string `json:"doctor_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AssignPatient(c.Request().Context(), role, c.Param("id"), req.DoctorID); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Appointment --

func (h *Handler) CreateAppointment(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), role, &a); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), role, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = c.Param("id")
	if err := h.svc.UpdateAppointment(c.Request().Context(), role, &a); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), role, c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListAppointmentsByPatient(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointmentsByPatient(c.Request().Context(), role, c.Param("id"), pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListAppointmentsByDoctor(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointmentsByDoctor(c.Request().Context(), role, c.Param("id"), pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Observation --

func (h *Handler) CreateObservation(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var o Observation
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateObservation(c.Request().Context(), role, &o); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetObservation(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	o, err := h.svc.GetObservation(c.Request().Context(), role, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) UpdateObservation(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var o Observation
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o.ID = c.Param("id")
	if err := h.svc.UpdateObservation(c.Request().Context(), role, &o); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) DeleteObservation(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteObservation(c.Request().Context(), role, c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListObservations(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListObservations(c.Request().Context(), role, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AttachObservationFile(c echo.Context) error {
	return h.attachFile(c, h.svc.AttachObservationFile)
}

// -- Diagnosis --

func (h *Handler) CreateDiagnosis(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var d Diagnosis
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateDiagnosis(c.Request().Context(), role, &d); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDiagnosis(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDiagnosis(c.Request().Context(), role, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDiagnosis(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	var d Diagnosis
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = c.Param("id")
	if err := h.svc.UpdateDiagnosis(c.Request().Context(), role, &d); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDiagnosis(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDiagnosis(c.Request().Context(), role, c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDiagnoses(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListDiagnoses(c.Request().Context(), role, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AttachDiagnosisFile(c echo.Context) error {
	return h.attachFile(c, h.svc.AttachDiagnosisFile)
}

// -- Files --

func (h *Handler) OpenFile(c echo.Context) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	rc, err := h.svc.OpenFile(c.Request().Context(), role, c.Param("ref"))
	if err != nil {
		return mapError(err)
	}
	defer rc.Close()
	return c.Stream(http.StatusOK, echo.MIMEOctetStream, rc)
}

func (h *Handler) attachFile(c echo.Context, attach func(ctx context.Context, role authz.Role, id, fileName string, content io.Reader) (string, error)) error {
	role, err := callerRole(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file part is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()
	ref, err := attach(c.Request().Context(), role, c.Param("id"), fh.Filename, src)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"file_ref": ref, "file_name": fh.Filename})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, authz.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, credentials.ErrProvisioningConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
