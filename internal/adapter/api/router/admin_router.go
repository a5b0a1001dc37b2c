package router

import (
	"github.com/labstack/echo/v4"

	"zarigaas/internal/adapter/api/middleware"
)

func SetupAdminRouter(e *echo.Echo, h Handlers, authMiddleware *middleware.AuthMiddleware, limit echo.MiddlewareFunc) {
	admin := e.Group("/v1/admin")
	admin.Use(authMiddleware.Authenticate)
	admin.Use(middleware.OperatorOnly)
	admin.Use(limit)

	admin.GET("/dashboard", h.Admin.Dashboard)

	admin.POST("/products", h.Product.CreateProduct)
	admin.PUT("/products/:id", h.Product.UpdateProduct)
	admin.POST("/products/:id/toggle-stock", h.Product.ToggleStock)
	admin.PUT("/products/:id/stock", h.Product.SetStock)
	admin.DELETE("/products/:id", h.Product.RequestDeletion)

	admin.GET("/pitches", h.Pitch.ListPitches)
	admin.PATCH("/pitches/:id/status", h.Pitch.UpdateStatus)
	admin.POST("/pitches/reconcile", h.Admin.ReconcilePitchCounts)

	admin.GET("/users", h.Admin.ListUsers)
	admin.PUT("/users/:uid/role", h.Admin.UpdateRole)
	admin.PUT("/users/:uid/disabled", h.Admin.SetDisabled)
}
