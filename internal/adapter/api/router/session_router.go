package router

import (
	"github.com/labstack/echo/v4"

	"zarigaas/internal/adapter/api/handler"
	"zarigaas/internal/adapter/api/middleware"
)

func SetupSessionRouter(e *echo.Echo, sessionHandler *handler.SessionHandler, authMiddleware *middleware.AuthMiddleware, limit echo.MiddlewareFunc) {
	e.POST("/v1/session", sessionHandler.StartSession, authMiddleware.Authenticate, limit)
	e.GET("/v1/me", sessionHandler.Me, authMiddleware.Authenticate, limit)
	e.POST("/v1/deletions/confirm", sessionHandler.ConfirmDeletion, authMiddleware.Authenticate, limit)
}
