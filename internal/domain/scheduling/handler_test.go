package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

func performAs(c auth.CallerContext, method, path string, body string, fn echo.HandlerFunc, params map[string]string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req = req.WithContext(auth.WithCaller(context.Background(), c))
	rec := httptest.NewRecorder()
	ec := e.NewContext(req, rec)
	if len(params) > 0 {
		names := make([]string, 0, len(params))
		values := make([]string, 0, len(params))
		for k, v := range params {
			names = append(names, k)
			values = append(values, v)
		}
		ec.SetParamNames(names...)
		ec.SetParamValues(values...)
	}
	if err := fn(ec); err != nil {
		e.HTTPErrorHandler(err, ec)
	}
	return rec
}

func TestHandlerBook(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc)
	doctorID := uuid.New()
	patientID := uuid.New()

	body := `{"patient_id":"` + patientID.String() + `","doctor_id":"` + doctorID.String() + `","date":"2024-06-01","time":"10:00"}`
	rec := performAs(adminCaller(), http.MethodPost, "/appointments", body, h.Book, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var got Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != StatusScheduled {
		t.Errorf("status = %s, want scheduled", got.Status)
	}

	// Same slot again maps to 409 at the boundary.
	rec = performAs(adminCaller(), http.MethodPost, "/appointments", body, h.Book, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate slot status = %d, want 409", rec.Code)
	}
}

func TestHandlerBook_ValidationStatus(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc)

	body := `{"date":"2024-06-01","time":"10:00"}`
	rec := performAs(adminCaller(), http.MethodPost, "/appointments", body, h.Book, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerStart_WrongDoctorStatus(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc)
	owner := uuid.New()
	a, _ := svc.Book(context.Background(), adminCaller(), validBooking(owner))

	other := uuid.New()
	doctor := auth.CallerContext{Role: auth.RoleDoctor, DoctorID: &other}
	body := `{"appointment_id":"` + a.ID.String() + `"}`
	rec := performAs(doctor, http.MethodPost, "/appointments/start", body, h.Start, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestHandlerGet_NotFoundStatus(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc)

	rec := performAs(adminCaller(), http.MethodGet, "/appointments/x", "",
		h.Get, map[string]string{"id": uuid.NewString()})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandlerGet_BadID(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc)

	rec := performAs(adminCaller(), http.MethodGet, "/appointments/x", "",
		h.Get, map[string]string{"id": "not-a-uuid"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerBookedSlots_EmptyIsArray(t *testing.T) {
	svc, _ := newTestService(nil)
	h := NewHandler(svc)

	rec := performAs(adminCaller(), http.MethodGet, "/appointments/slots", "",
		h.BookedSlots, map[string]string{"doctor": uuid.NewString(), "date": "2024-06-01"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Booked []string `json:"booked"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Booked == nil {
		t.Errorf("booked must serialize as an empty array")
	}
}
