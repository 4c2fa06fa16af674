package apperr

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HTTP maps an error to an *echo.HTTPError. Kinds map to their canonical
// status codes; anything unclassified becomes a 500 with a generic message
// so internal details never leak to clients.
func HTTP(err error) *echo.HTTPError {
	switch KindOf(err) {
	case Validation:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case NotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case Authorization:
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case Conflict:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case Persistence:
		return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
