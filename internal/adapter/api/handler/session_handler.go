package handler

import (
	"github.com/labstack/echo/v4"

	"zarigaas/internal/adapter/api/middleware"
	"zarigaas/internal/usecase"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/response"
)

type SessionHandler struct {
	coordinator *usecase.WriteCoordinator
}

func NewSessionHandler(coordinator *usecase.WriteCoordinator) *SessionHandler {
	return &SessionHandler{coordinator: coordinator}
}

// StartSession creates the caller's profile on first sign-in and records
// the login otherwise.
func (h *SessionHandler) StartSession(c echo.Context) error {
	user, err := h.coordinator.EnsureProfile(c.Request().Context(), middleware.IdentityFrom(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, user)
}

func (h *SessionHandler) Me(c echo.Context) error {
	actor := middleware.ActorFrom(c)
	identity := middleware.IdentityFrom(c)
	return response.Success(c, map[string]interface{}{
		"uid":      actor.UID,
		"email":    identity.Email,
		"role":     actor.Role,
		"operator": actor.Role.IsOperator(),
	})
}

type confirmRequest struct {
	Token string `json:"token"`
}

// ConfirmDeletion performs a deletion previously requested by the caller.
func (h *SessionHandler) ConfirmDeletion(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if req.Token == "" {
		return response.Error(c, errors.Validation("token is required", nil))
	}

	confirmation, err := h.coordinator.ConfirmDeletion(c.Request().Context(), middleware.ActorFrom(c), req.Token)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"deleted":    true,
		"collection": confirmation.Collection,
		"id":         confirmation.TargetID,
	})
}
