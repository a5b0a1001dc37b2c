package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"zarigaas/internal/domain/entity"
	"zarigaas/internal/realtime"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/logger"
)

// Frame types
const (
	MessageTypePing                 = "ping"
	MessageTypePong                 = "pong"
	MessageTypeMarkRead             = "mark_read"
	MessageTypeMarkConversationRead = "mark_conversation_read"
	MessageTypeReadReceipt          = "read_receipt"
	MessageTypeError                = "error"
)

const markTimeout = 10 * time.Second

type WSMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

type MarkReadData struct {
	MessageID string `json:"message_id"`
}

type MarkConversationReadData struct {
	PeerID string `json:"peer_id"`
}

type ReadReceiptData struct {
	MessageID string `json:"message_id,omitempty"`
	PeerID    string `json:"peer_id,omitempty"`
	Marked    int    `json:"marked"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReadMarker applies read receipts sent over the socket.
type ReadMarker interface {
	MarkRead(ctx context.Context, viewerID, messageID string) error
	MarkConversationRead(ctx context.Context, viewerID, peerID string) (int, error)
}

// Encode builds an outgoing frame.
func Encode(msgType string, data interface{}) []byte {
	frame := WSMessage{Type: msgType, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			logger.Error("Failed to encode %s frame: %v", msgType, err)
			return nil
		}
		frame.Data = raw
	}
	out, err := json.Marshal(frame)
	if err != nil {
		logger.Error("Failed to encode %s frame: %v", msgType, err)
		return nil
	}
	return out
}

// Handler dispatches incoming client frames.
type Handler struct {
	manager *Manager
	marker  ReadMarker
}

func NewHandler(manager *Manager, marker ReadMarker) *Handler {
	return &Handler{manager: manager, marker: marker}
}

// Handle processes one raw frame from client. Failures are answered with an
// error frame on the same connection.
func (h *Handler) Handle(client *Client, raw []byte) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reply(client, MessageTypeError, ErrorData{Code: errors.CodeBadRequest, Message: "Invalid message format"})
		return
	}

	switch msg.Type {
	case MessageTypePing:
		h.reply(client, MessageTypePong, nil)
	case MessageTypeMarkRead:
		var data MarkReadData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.MessageID == "" {
			h.reply(client, MessageTypeError, ErrorData{Code: errors.CodeBadRequest, Message: "message_id is required"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), markTimeout)
		defer cancel()
		if err := h.marker.MarkRead(ctx, client.UserID, data.MessageID); err != nil {
			h.replyError(client, err)
			return
		}
		h.reply(client, MessageTypeReadReceipt, ReadReceiptData{MessageID: data.MessageID, Marked: 1})
	case MessageTypeMarkConversationRead:
		var data MarkConversationReadData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.PeerID == "" {
			h.reply(client, MessageTypeError, ErrorData{Code: errors.CodeBadRequest, Message: "peer_id is required"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), markTimeout)
		defer cancel()
		n, err := h.marker.MarkConversationRead(ctx, client.UserID, data.PeerID)
		if err != nil {
			h.replyError(client, err)
			return
		}
		h.reply(client, MessageTypeReadReceipt, ReadReceiptData{PeerID: data.PeerID, Marked: n})
	default:
		h.reply(client, MessageTypeError, ErrorData{Code: errors.CodeBadRequest, Message: "Unknown message type: " + msg.Type})
	}
}

func (h *Handler) reply(client *Client, msgType string, data interface{}) {
	if frame := Encode(msgType, data); frame != nil {
		h.manager.reply(client, frame)
	}
}

func (h *Handler) replyError(client *Client, err error) {
	logger.Debug("WebSocket request from %s failed: %v", client.UserID, err)
	message := "Request failed"
	if appErr, ok := err.(*errors.AppError); ok {
		message = appErr.Message
	}
	h.reply(client, MessageTypeError, ErrorData{Code: errors.Code(err), Message: message})
}

// Bridge forwards sync service events to connected clients. Collection and
// network events go to everyone, dashboard events to operators, and
// conversation events only to the viewer they belong to.
type Bridge struct {
	service *realtime.Service
	manager *Manager

	mu       sync.Mutex
	sessions map[string]*realtime.ViewerSession
	cancel   func()
}

func NewBridge(service *realtime.Service, manager *Manager) *Bridge {
	b := &Bridge{
		service:  service,
		manager:  manager,
		sessions: make(map[string]*realtime.ViewerSession),
	}
	manager.OnPresence(b.join, b.leave)
	b.cancel = service.Subscribe(b.forward)
	return b
}

func (b *Bridge) forward(ev realtime.Event) {
	switch ev.Type {
	case realtime.EventCollectionChanged, realtime.EventCollectionError, realtime.EventNetworkStatus:
		b.manager.Broadcast(Encode(ev.Type, ev), nil)
	case realtime.EventStatsChanged:
		b.manager.Broadcast(Encode(ev.Type, ev), entity.Role.IsOperator)
	}
}

func (b *Bridge) join(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[userID]; ok {
		return
	}
	b.sessions[userID] = b.service.OpenViewer(userID, func(ev realtime.Event) {
		if ev.Type == realtime.EventConversationsChanged {
			b.manager.SendToUser(userID, Encode(ev.Type, ev))
		}
	})
}

func (b *Bridge) leave(userID string) {
	b.mu.Lock()
	session, ok := b.sessions[userID]
	delete(b.sessions, userID)
	b.mu.Unlock()
	if ok {
		session.Close()
	}
}

// Viewers counts users with an open conversation session.
func (b *Bridge) Viewers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *Bridge) Close() {
	b.cancel()
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[string]*realtime.ViewerSession)
	b.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
