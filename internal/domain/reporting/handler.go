package reporting

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reports/summary", h.Summary,
		auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleClinic, auth.RoleReceptionist))
}

func (h *Handler) Summary(c echo.Context) error {
	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be a number")
		}
		days = parsed
	}
	caller, _ := auth.CallerFromContext(c.Request().Context())
	summary, err := h.svc.Summary(c.Request().Context(), caller, days)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, summary)
}
