package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rabiesresq/rabiesresq/internal/platform/auth"
)

// Logger writes one line per request. The actor is read after the handler
// returns, since authentication runs further down the chain.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}
			if actor, ok := auth.ActorFromContext(req.Context()); ok {
				evt = evt.Str("actor_id", actor.ID).Str("role", string(actor.Role))
				if actor.ClinicID != 0 {
					evt = evt.Int64("clinic_id", actor.ClinicID)
				}
			}

			evt.
				Str("request_id", requestID(c)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
