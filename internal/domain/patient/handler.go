package patient

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler provides HTTP handlers for the patient domain.
type Handler struct {
	svc *Service
}

// NewHandler creates a new patient domain handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the REST routes under api (normally /api/v1).
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.Save)
	api.GET("/patients/names", h.Names)
	api.GET("/patients/prescription-years", h.PrescriptionYears)
	api.GET("/patients/export.xlsx", h.Export)
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.Update)
	api.GET("/prescription-years/:year/patients", h.GetByPrescriptionYear)
}

// respondError writes a DbError as {"DbError": msg} with 500. Anything else
// is a request problem.
func respondError(c echo.Context, err error) error {
	var dbErr *DbError
	if errors.As(err, &dbErr) {
		return c.JSON(http.StatusInternalServerError, dbErr)
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

// bindPatient decodes the request body. Bind treats an empty body as a
// zero value, which is never a valid record.
func bindPatient(c echo.Context, p *Patient) error {
	if c.Request().ContentLength == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "missing patient")
	}
	if err := c.Bind(p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func (h *Handler) Save(c echo.Context) error {
	var p Patient
	if err := bindPatient(c, &p); err != nil {
		return err
	}
	if err := h.svc.Save(c.Request().Context(), &p); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Patient
	if err := bindPatient(c, &p); err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.Update(c.Request().Context(), &p); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Names(c echo.Context) error {
	names, err := h.svc.Names(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, names)
}

func (h *Handler) PrescriptionYears(c echo.Context) error {
	years, err := h.svc.PrescriptionYears(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, years)
}

func (h *Handler) GetByPrescriptionYear(c echo.Context) error {
	year, err := strconv.ParseInt(c.Param("year"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prescription year")
	}
	names, err := h.svc.GetByPrescriptionYear(c.Request().Context(), year)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, names)
}

// Export serves the workbook. ?prescriptionYear=Y restricts it to one year.
func (h *Handler) Export(c echo.Context) error {
	var year *int64
	if v := c.QueryParam("prescriptionYear"); v != "" {
		y, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid prescriptionYear")
		}
		year = &y
	}

	var buf bytes.Buffer
	if err := h.svc.Export(c.Request().Context(), &buf, year); err != nil {
		return respondError(c, err)
	}

	filename := "patients.xlsx"
	if year != nil {
		filename = fmt.Sprintf("patients-%d.xlsx", *year)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
