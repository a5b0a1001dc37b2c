package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"zarigaas/internal/domain/entity"
	"zarigaas/internal/realtime"
	"zarigaas/pkg/response"
)

type HealthHandler struct {
	service *realtime.Service
}

func NewHealthHandler(service *realtime.Service) *HealthHandler {
	return &HealthHandler{service: service}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "Server is running",
		"time":   time.Now().Format(time.RFC3339),
	})
}

type subscriptionState struct {
	Status entity.NetworkStatus `json:"status"`
	Reason string               `json:"reason,omitempty"`
}

type syncStatus struct {
	NetworkStatus entity.NetworkStatus         `json:"networkStatus"`
	Subscriptions map[string]subscriptionState `json:"subscriptions"`
	ActiveHandles int                          `json:"activeHandles"`
	Recomputes    int                          `json:"recomputes"`
	Loaded        map[string]bool              `json:"loaded"`
}

// CheckSync reports the synchronization state. It answers 503 while any
// subscription is in error so load balancers can react.
func (h *HealthHandler) CheckSync(c echo.Context) error {
	manager := h.service.Manager()
	tracker := manager.Tracker()
	subscriptions := make(map[string]subscriptionState)
	for id, state := range tracker.Snapshot() {
		subscriptions[id] = subscriptionState{Status: state, Reason: tracker.Reason(id)}
	}
	status := syncStatus{
		NetworkStatus: h.service.NetworkStatus(),
		Subscriptions: subscriptions,
		ActiveHandles: manager.ActiveHandles(),
		Recomputes:    h.service.Recomputes(),
		Loaded: map[string]bool{
			"products": h.service.Products.Loaded(),
			"pitches":  h.service.Pitches.Loaded(),
			"messages": h.service.Messages.Loaded(),
			"users":    h.service.Users.Loaded(),
		},
	}
	if status.NetworkStatus == entity.NetworkError {
		return c.JSON(http.StatusServiceUnavailable, response.Response{
			Success:   false,
			Data:      status,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	return response.Success(c, status)
}
