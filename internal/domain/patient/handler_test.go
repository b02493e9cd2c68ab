package patient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
)

func newTestHandler() (*Handler, *mockPatientRepo, *echo.Echo) {
	repo := newMockPatientRepo()
	h := NewHandler(NewService(repo))
	return h, repo, echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_Save(t *testing.T) {
	h, repo, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/patients", samplePatientJSON), rec)

	if err := h.Save(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if len(repo.store) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(repo.store))
	}
	if repo.store[1].BMI != ComputeBMI(9.8, 76) {
		t.Errorf("expected recomputed bmi, got %v", repo.store[1].BMI)
	}
}

func TestHandler_SaveRejectsInvalidBody(t *testing.T) {
	h, repo, e := newTestHandler()
	bodies := map[string]string{
		"empty":         "",
		"malformed":     "{",
		"missing field": `{"name":"x"}`,
		"bad service":   strings.Replace(samplePatientJSON, `"Pedh"`, `"Nowhere"`, 1),
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/patients", body), httptest.NewRecorder())
			if got := httpStatus(t, h.Save(c)); got != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", got)
			}
		})
	}
	if len(repo.store) != 0 {
		t.Errorf("expected nothing stored, got %d records", len(repo.store))
	}
}

func TestHandler_UpdateUsesPathID(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.store[5] = samplePatient()

	body := strings.Replace(samplePatientJSON, `"Jeanne"`, `"Jeanne R."`, 1)
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, "/api/v1/patients/5", body), rec)
	c.SetParamNames("id")
	c.SetParamValues("5")

	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if repo.store[5].Name != "Jeanne R." || repo.store[5].ID != 5 {
		t.Errorf("unexpected stored record %+v", repo.store[5])
	}
}

func TestHandler_UpdateMissingRecord(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, "/api/v1/patients/9", samplePatientJSON), rec)
	c.SetParamNames("id")
	c.SetParamValues("9")

	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["DbError"] != ErrNotFound.Error() {
		t.Errorf("unexpected error body %v", body)
	}
}

func TestHandler_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	for _, id := range []string{"abc", "0", "-3"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+id, nil), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(id)
		if got := httpStatus(t, h.GetPatient(c)); got != http.StatusBadRequest {
			t.Errorf("id %q: expected 400, got %d", id, got)
		}
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, repo, e := newTestHandler()
	stored := samplePatient()
	stored.ID = 3
	repo.store[3] = stored

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients/3", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("3")

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got != *stored {
		t.Errorf("expected %+v, got %+v", *stored, got)
	}
}

func TestHandler_ListsReturnEmptyArrays(t *testing.T) {
	h, _, e := newTestHandler()

	cases := []struct {
		name    string
		handler echo.HandlerFunc
		params  []string
		values  []string
	}{
		{"names", h.Names, nil, nil},
		{"years", h.PrescriptionYears, nil, nil},
		{"by year", h.GetByPrescriptionYear, []string{"year"}, []string{"2021"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			c.SetParamNames(tc.params...)
			c.SetParamValues(tc.values...)
			if err := tc.handler(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.TrimSpace(rec.Body.String()) != "[]" {
				t.Errorf("expected [], got %s", rec.Body.String())
			}
		})
	}
}

func TestHandler_DbErrorBody(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.err = errors.New("disk I/O error")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients/names", nil), rec)
	if err := h.Names(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"DbError":"disk I/O error"}` {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_Export(t *testing.T) {
	h, repo, e := newTestHandler()
	a := samplePatient()
	a.ID = 1
	b := samplePatient()
	b.ID = 2
	b.PrescriptionYear = 2019
	repo.store[1], repo.store[2] = a, b

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients/export.xlsx?prescriptionYear=2019", nil), rec)
	if err := h.Export(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != xlsxMIME {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "patients-2019.xlsx") {
		t.Errorf("unexpected content disposition %q", cd)
	}

	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(exportSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	if rows[1][0] != "2" {
		t.Errorf("expected record 2, got id %s", rows[1][0])
	}
}

func TestHandler_ExportInvalidYear(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients/export.xlsx?prescriptionYear=soon", nil), httptest.NewRecorder())
	if got := httpStatus(t, h.Export(c)); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"POST /api/v1/patients":                         false,
		"GET /api/v1/patients/names":                    false,
		"GET /api/v1/patients/prescription-years":       false,
		"GET /api/v1/patients/export.xlsx":              false,
		"GET /api/v1/patients/:id":                      false,
		"PUT /api/v1/patients/:id":                      false,
		"GET /api/v1/prescription-years/:year/patients": false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestHandler_SaveNonFiniteBMIIsDbError(t *testing.T) {
	h, repo, e := newTestHandler()
	body := strings.Replace(samplePatientJSON, `"height": 76`, `"height": 1e-200`, 1)
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/patients", body), rec)

	if err := h.Save(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.HasPrefix(resp["DbError"], ErrBMIOutOfRange.Error()) {
		t.Errorf("unexpected error body %v", resp)
	}
	if len(repo.store) != 0 {
		t.Errorf("expected nothing stored, got %d records", len(repo.store))
	}
}
