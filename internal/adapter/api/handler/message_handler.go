package handler

import (
	"github.com/labstack/echo/v4"

	"zarigaas/internal/adapter/api/middleware"
	"zarigaas/internal/realtime"
	"zarigaas/internal/usecase"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/response"
)

type MessageHandler struct {
	service     *realtime.Service
	coordinator *usecase.WriteCoordinator
}

func NewMessageHandler(service *realtime.Service, coordinator *usecase.WriteCoordinator) *MessageHandler {
	return &MessageHandler{service: service, coordinator: coordinator}
}

func (h *MessageHandler) SendMessage(c echo.Context) error {
	var req usecase.SendMessageInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}

	message, err := h.coordinator.SendMessage(c.Request().Context(), middleware.ActorFrom(c).UID, req)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, message)
}

// ListConversations serves the caller's conversations, most recent first.
func (h *MessageHandler) ListConversations(c echo.Context) error {
	return paged(c, h.service.Conversations(middleware.ActorFrom(c).UID))
}

// GetThread serves the messages between the caller and :peer in order.
func (h *MessageHandler) GetThread(c echo.Context) error {
	return paged(c, h.service.Thread(middleware.ActorFrom(c).UID, c.Param("peer")))
}

func (h *MessageHandler) MarkRead(c echo.Context) error {
	if err := h.coordinator.MarkRead(c.Request().Context(), middleware.ActorFrom(c).UID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{"id": c.Param("id"), "read": true})
}

func (h *MessageHandler) MarkConversationRead(c echo.Context) error {
	n, err := h.coordinator.MarkConversationRead(c.Request().Context(), middleware.ActorFrom(c).UID, c.Param("peer"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{"peer": c.Param("peer"), "marked": n})
}

func (h *MessageHandler) RequestDeletion(c echo.Context) error {
	confirmation, err := h.coordinator.RequestMessageDeletion(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, confirmation)
}
