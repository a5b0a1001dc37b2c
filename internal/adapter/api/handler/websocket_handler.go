package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"zarigaas/internal/adapter/api/middleware"
	ws "zarigaas/internal/infrastructure/websocket"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/response"
)

type WebSocketHandler struct {
	wsManager *ws.Manager
	frames    *ws.Handler
	upgrader  gorillaws.Upgrader
}

// NewWebSocketHandler accepts connections from origins in allowed. An empty
// list accepts any origin.
func NewWebSocketHandler(wsManager *ws.Manager, frames *ws.Handler, allowed []string) *WebSocketHandler {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}
	return &WebSocketHandler{
		wsManager: wsManager,
		frames:    frames,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return len(origins) == 0 || origins[r.Header.Get("Origin")]
			},
		},
	}
}

func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	actor := middleware.ActorFrom(c)
	if actor.UID == "" {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return nil
	}

	client := ws.NewClient(actor.UID, actor.Role, conn)
	if !h.wsManager.Join(client) {
		conn.Close()
		return nil
	}

	go client.ReadPump(h.wsManager, h.frames.Handle)
	go client.WritePump()
	return nil
}
