package middleware

import (
	"github.com/labstack/echo/v4"

	"zarigaas/pkg/errors"
	"zarigaas/pkg/response"
)

// OperatorOnly admits admins and owners. It must run after Authenticate.
func OperatorOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor := ActorFrom(c)
		if actor.UID == "" {
			return response.Error(c, errors.Unauthorized("Authentication required", nil))
		}
		if !actor.Role.IsOperator() {
			return response.Error(c, errors.Forbidden("Admin privileges required", nil))
		}
		return next(c)
	}
}
