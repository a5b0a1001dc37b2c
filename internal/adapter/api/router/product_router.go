package router

import (
	"github.com/labstack/echo/v4"

	"zarigaas/internal/adapter/api/handler"
	"zarigaas/internal/adapter/api/middleware"
)

func SetupProductRouter(e *echo.Echo, productHandler *handler.ProductHandler, pitchHandler *handler.PitchHandler, authMiddleware *middleware.AuthMiddleware, limit echo.MiddlewareFunc) {
	products := e.Group("/v1/products")
	products.GET("", productHandler.ListProducts, limit)
	products.GET("/:id", productHandler.GetProduct, limit)
	products.POST("/:id/pitches", pitchHandler.RecordPitch, authMiddleware.Authenticate, limit)
}
