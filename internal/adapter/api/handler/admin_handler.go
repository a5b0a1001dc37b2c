package handler

import (
	"github.com/labstack/echo/v4"

	"zarigaas/internal/adapter/api/middleware"
	"zarigaas/internal/domain/entity"
	"zarigaas/internal/realtime"
	"zarigaas/internal/usecase"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/response"
)

type AdminHandler struct {
	service     *realtime.Service
	coordinator *usecase.WriteCoordinator
}

func NewAdminHandler(service *realtime.Service, coordinator *usecase.WriteCoordinator) *AdminHandler {
	return &AdminHandler{service: service, coordinator: coordinator}
}

type dashboardResponse struct {
	Stats         entity.DashboardStats `json:"stats"`
	NetworkStatus entity.NetworkStatus  `json:"networkStatus"`
	Loading       bool                  `json:"loading"`
}

func (h *AdminHandler) Dashboard(c echo.Context) error {
	loading := !h.service.Products.Loaded() || !h.service.Pitches.Loaded() || !h.service.Messages.Loaded()
	return response.Success(c, dashboardResponse{
		Stats:         h.service.Stats(),
		NetworkStatus: h.service.NetworkStatus(),
		Loading:       loading,
	})
}

func (h *AdminHandler) ListUsers(c echo.Context) error {
	return paged(c, h.service.UsersView())
}

type updateRoleRequest struct {
	Role entity.Role `json:"role"`
}

func (h *AdminHandler) UpdateRole(c echo.Context) error {
	var req updateRoleRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}

	user, err := h.coordinator.UpdateRole(c.Request().Context(), middleware.ActorFrom(c), c.Param("uid"), req.Role)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, user)
}

type setDisabledRequest struct {
	Disabled *bool `json:"disabled"`
}

func (h *AdminHandler) SetDisabled(c echo.Context) error {
	var req setDisabledRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if req.Disabled == nil {
		return response.Error(c, errors.Validation("disabled is required", nil))
	}

	user, err := h.coordinator.SetUserDisabled(c.Request().Context(), middleware.ActorFrom(c), c.Param("uid"), *req.Disabled)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, user)
}

func (h *AdminHandler) ReconcilePitchCounts(c echo.Context) error {
	result, err := h.coordinator.ReconcilePitchCounts(c.Request().Context(), middleware.ActorFrom(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, result)
}
