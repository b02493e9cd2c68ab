package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// command runs one named operation from its JSON argument object.
type command func(ctx context.Context, args json.RawMessage) (interface{}, error)

// argError marks a failure to decode command arguments.
type argError struct{ err error }

func (e *argError) Error() string { return "invalid arguments: " + e.err.Error() }

func (e *argError) Unwrap() error { return e.err }

func decodeArgs(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &argError{err: err}
	}
	return nil
}

// Commands exposes the patient operations under the desktop shell's command
// names: POST /invoke/:command with the argument object as body.
type Commands struct {
	svc      *Service
	commands map[string]command
}

func NewCommands(svc *Service) *Commands {
	c := &Commands{svc: svc}
	c.commands = map[string]command{
		"save":                     c.save,
		"update":                   c.update,
		"get_patient":              c.getPatient,
		"names":                    c.names,
		"prescription_years":       c.prescriptionYears,
		"get_by_prescription_year": c.getByPrescriptionYear,
	}
	return c
}

func (c *Commands) RegisterRoutes(g *echo.Group) {
	g.POST("/:command", c.Invoke)
}

// Invoke dispatches to the named command. Results are returned as JSON; unit
// results are null.
func (c *Commands) Invoke(ec echo.Context) error {
	name := ec.Param("command")
	cmd, ok := c.commands[name]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown command %q", name))
	}

	raw, err := io.ReadAll(ec.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read arguments: "+err.Error())
	}

	result, err := cmd(ec.Request().Context(), json.RawMessage(raw))
	if err != nil {
		return respondError(ec, err)
	}
	return ec.JSON(http.StatusOK, result)
}

func (c *Commands) save(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		Patient *Patient `json:"patient"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Patient == nil {
		return nil, &argError{err: fmt.Errorf("missing patient")}
	}
	return nil, c.svc.Save(ctx, args.Patient)
}

func (c *Commands) update(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		Patient *Patient `json:"patient"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Patient == nil {
		return nil, &argError{err: fmt.Errorf("missing patient")}
	}
	if args.Patient.ID <= 0 {
		return nil, &argError{err: fmt.Errorf("missing patient id")}
	}
	return nil, c.svc.Update(ctx, args.Patient)
}

func (c *Commands) getPatient(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		ID *int64 `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.ID == nil {
		return nil, &argError{err: fmt.Errorf("missing id")}
	}
	return c.svc.GetPatient(ctx, *args.ID)
}

func (c *Commands) names(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return c.svc.Names(ctx)
}

func (c *Commands) prescriptionYears(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return c.svc.PrescriptionYears(ctx)
}

func (c *Commands) getByPrescriptionYear(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		PrescriptionYear *int64 `json:"prescriptionYear"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.PrescriptionYear == nil {
		return nil, &argError{err: fmt.Errorf("missing prescriptionYear")}
	}
	return c.svc.GetByPrescriptionYear(ctx, *args.PrescriptionYear)
}
