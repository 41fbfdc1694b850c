package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles recognized by the gateway. Rooms, fanout targets, and redaction
// allow-lists only ever reference this closed set.
const (
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RoleNurse   = "nurse"
	RolePatient = "patient"
	RoleStaff   = "staff"
)

// KnownRoles is the fixed role enumeration used to derive role rooms.
var KnownRoles = []string{RoleAdmin, RoleDoctor, RoleNurse, RolePatient, RoleStaff}

// IsKnownRole reports whether name is in the fixed role set.
func IsKnownRole(name string) bool {
	for _, r := range KnownRoles {
		if r == name {
			return true
		}
	}
	return false
}

// RequireRole returns middleware that admits the request only when the
// principal holds one of the given roles. Admin always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if role == RoleAdmin {
				return next(c)
			}
			for _, required := range roles {
				if role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
