package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func invokeWithRole(t *testing.T, role string, required ...string) int {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if role != "" {
		c.SetRequest(req.WithContext(WithCaller(req.Context(), CallerContext{UserID: "u", Role: role})))
	}

	handler := RequireRole(required...)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec.Code
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name     string
		role     string
		required []string
		want     int
	}{
		{"exact match", RoleDoctor, []string{RoleDoctor}, http.StatusOK},
		{"one of several", RoleReceptionist, []string{RoleClinic, RoleReceptionist}, http.StatusOK},
		{"admin bypass", RoleAdmin, []string{RoleDoctor}, http.StatusOK},
		{"wrong role", RolePatient, []string{RoleDoctor}, http.StatusForbidden},
		{"no caller", "", []string{RoleDoctor}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := invokeWithRole(t, tc.role, tc.required...); got != tc.want {
				t.Errorf("status = %d, want %d", got, tc.want)
			}
		})
	}
}
