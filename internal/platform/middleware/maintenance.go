package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rabiesresq/rabiesresq/internal/platform/auth"
)

// SweepFunc runs the no-show/archival pass for one clinic.
type SweepFunc func(ctx context.Context, clinicID int64) error

// Maintenance runs sweep for the caller's clinic before the handler. A failed
// sweep is logged and the request still proceeds; the sweep rolls back as a
// whole so the listing sees consistent data either way.
func Maintenance(logger zerolog.Logger, sweep SweepFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := auth.ActorFromContext(c.Request().Context())
			if !ok || actor.ClinicID == 0 {
				return next(c)
			}
			if err := sweep(c.Request().Context(), actor.ClinicID); err != nil {
				logger.Warn().Err(err).
					Str("request_id", requestID(c)).
					Int64("clinic_id", actor.ClinicID).
					Msg("maintenance sweep failed, serving request anyway")
			}
			return next(c)
		}
	}
}
