package router

import (
	"github.com/labstack/echo/v4"

	"zarigaas/internal/adapter/api/handler"
	"zarigaas/internal/adapter/api/middleware"
	"zarigaas/internal/infrastructure/ratelimit"
)

type Handlers struct {
	Product   *handler.ProductHandler
	Pitch     *handler.PitchHandler
	Message   *handler.MessageHandler
	Admin     *handler.AdminHandler
	Session   *handler.SessionHandler
	Health    *handler.HealthHandler
	WebSocket *handler.WebSocketHandler
}

func Setup(e *echo.Echo, h Handlers, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	limit := middleware.RateLimit(limiter)

	SetupHealthRouter(e, h.Health)
	SetupProductRouter(e, h.Product, h.Pitch, authMiddleware, limit)
	SetupMessageRouter(e, h.Message, authMiddleware, limit)
	SetupSessionRouter(e, h.Session, authMiddleware, limit)
	SetupAdminRouter(e, h, authMiddleware, limit)
	SetupWebSocketRouter(e, h.WebSocket, authMiddleware)
}
