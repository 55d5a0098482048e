package handlers

import (
	"errors"
	"net/http"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// httpError maps repository errors onto HTTP errors. Unexpected errors are
// logged and reported without their details.
func httpError(log zerolog.Logger, err error) error {
	var restricted *models.DeletionRestrictedError
	switch {
	case errors.As(err, &restricted):
		return echo.NewHTTPError(http.StatusConflict, restricted.Message)
	case errors.Is(err, models.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	case errors.Is(err, models.ErrValidationFailed):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		log.Error().Err(err).Msg("notification store failure")
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
}
