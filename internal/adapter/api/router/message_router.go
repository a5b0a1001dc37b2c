package router

import (
	"github.com/labstack/echo/v4"

	"zarigaas/internal/adapter/api/handler"
	"zarigaas/internal/adapter/api/middleware"
)

func SetupMessageRouter(e *echo.Echo, messageHandler *handler.MessageHandler, authMiddleware *middleware.AuthMiddleware, limit echo.MiddlewareFunc) {
	messages := e.Group("/v1/messages")
	messages.Use(authMiddleware.Authenticate)
	messages.Use(limit)
	messages.POST("", messageHandler.SendMessage)
	messages.PATCH("/:id/read", messageHandler.MarkRead)
	messages.DELETE("/:id", messageHandler.RequestDeletion)

	conversations := e.Group("/v1/conversations")
	conversations.Use(authMiddleware.Authenticate)
	conversations.Use(limit)
	conversations.GET("", messageHandler.ListConversations)
	conversations.GET("/:peer", messageHandler.GetThread)
	conversations.POST("/:peer/read", messageHandler.MarkConversationRead)
}
