package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks the actor has one of roles.
// System admins pass every check.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if actor.Role == RoleSystemAdmin {
				return next(c)
			}
			for _, r := range roles {
				if actor.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "required role: "+strings.Join(names, " or "))
		}
	}
}

// RequireClinic rejects staff actors whose token names no clinic.
func RequireClinic() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFromContext(c.Request().Context())
			if !ok || actor.ClinicID <= 0 {
				return echo.NewHTTPError(http.StatusForbidden, "no clinic assigned to this account")
			}
			return next(c)
		}
	}
}

// RequirePatient rejects actors that are not linked to a patient record.
func RequirePatient() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFromContext(c.Request().Context())
			if !ok || actor.PatientID <= 0 {
				return echo.NewHTTPError(http.StatusForbidden, "no patient profile linked to this account")
			}
			return next(c)
		}
	}
}
