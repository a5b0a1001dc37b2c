package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"zarigaas/internal/adapter/api/middleware"
	"zarigaas/internal/realtime"
	"zarigaas/internal/usecase"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/response"
)

type ProductHandler struct {
	service     *realtime.Service
	coordinator *usecase.WriteCoordinator
}

func NewProductHandler(service *realtime.Service, coordinator *usecase.WriteCoordinator) *ProductHandler {
	return &ProductHandler{service: service, coordinator: coordinator}
}

// ListProducts serves the catalogue, optionally filtered by ?search= and
// ?inStock=true.
func (h *ProductHandler) ListProducts(c echo.Context) error {
	inStock, _ := strconv.ParseBool(c.QueryParam("inStock"))
	return paged(c, h.service.ProductsView(c.QueryParam("search"), inStock))
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	product, ok := h.service.Product(c.Param("id"))
	if !ok {
		return response.Error(c, errors.NotFound("Product", nil))
	}
	return response.Success(c, product)
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req usecase.ProductInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}

	product, err := h.coordinator.CreateProduct(c.Request().Context(), middleware.ActorFrom(c), req)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, product)
}

func (h *ProductHandler) UpdateProduct(c echo.Context) error {
	var req usecase.ProductInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}

	product, err := h.coordinator.UpdateProduct(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), req)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, product)
}

func (h *ProductHandler) ToggleStock(c echo.Context) error {
	product, err := h.coordinator.ToggleStock(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, product)
}

type setStockRequest struct {
	StockLevel *int `json:"stockLevel"`
}

func (h *ProductHandler) SetStock(c echo.Context) error {
	var req setStockRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if req.StockLevel == nil {
		return response.Error(c, errors.Validation("stockLevel is required", nil))
	}

	product, err := h.coordinator.SetStock(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), *req.StockLevel)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, product)
}

// RequestDeletion issues a confirmation token. Nothing is deleted until the
// token comes back through the admin confirm endpoint.
func (h *ProductHandler) RequestDeletion(c echo.Context) error {
	confirmation, err := h.coordinator.RequestProductDeletion(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, confirmation)
}
