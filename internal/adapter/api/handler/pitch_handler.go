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

type PitchHandler struct {
	service     *realtime.Service
	coordinator *usecase.WriteCoordinator
}

func NewPitchHandler(service *realtime.Service, coordinator *usecase.WriteCoordinator) *PitchHandler {
	return &PitchHandler{service: service, coordinator: coordinator}
}

// RecordPitch records an enquiry for the product in the path.
func (h *PitchHandler) RecordPitch(c echo.Context) error {
	var req usecase.RecordPitchInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if id := c.Param("id"); id != "" {
		req.ProductID = id
	}
	if req.Email == "" {
		req.Email = middleware.IdentityFrom(c).Email
	}

	pitch, err := h.coordinator.RecordPitch(c.Request().Context(), middleware.ActorFrom(c).UID, req)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, pitch)
}

// ListPitches serves the operator view, filtered by ?status= and ?productId=.
func (h *PitchHandler) ListPitches(c echo.Context) error {
	status := entity.PitchStatus(c.QueryParam("status"))
	if status != "" && !entity.ValidPitchStatus(status) {
		return response.Error(c, errors.Validation("status must be one of: pending approved rejected", nil))
	}
	return paged(c, h.service.PitchesView(status, c.QueryParam("productId")))
}

type updatePitchStatusRequest struct {
	Status entity.PitchStatus `json:"status"`
}

func (h *PitchHandler) UpdateStatus(c echo.Context) error {
	var req updatePitchStatusRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}

	pitch, err := h.coordinator.UpdatePitchStatus(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), req.Status)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, pitch)
}
