package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"zarigaas/internal/domain/entity"
	"zarigaas/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one WebSocket connection of a signed-in user.
type Client struct {
	UserID string
	Role   entity.Role
	Conn   *websocket.Conn
	Send   chan []byte
}

func NewClient(userID string, role entity.Role, conn *websocket.Conn) *Client {
	return &Client{UserID: userID, Role: role, Conn: conn, Send: make(chan []byte, sendBuffer)}
}

type registration struct {
	client *Client
	added  chan struct{}
}

// Manager tracks the open connections. A user may hold several.
type Manager struct {
	clients    map[string]map[*Client]struct{}
	register   chan registration
	Unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex

	listenerMu sync.Mutex
	onJoin     []func(userID string)
	onLeave    []func(userID string)
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan registration),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// OnPresence registers callbacks for a user's first connection and for the
// close of their last one.
func (m *Manager) OnPresence(join, leave func(userID string)) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	if join != nil {
		m.onJoin = append(m.onJoin, join)
	}
	if leave != nil {
		m.onLeave = append(m.onLeave, leave)
	}
}

// Start runs the registration loop until ctx is done, then closes every
// remaining connection.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case r := <-m.register:
				m.add(r.client)
				close(r.added)
			case client := <-m.Unregister:
				m.remove(client)
			case <-ctx.Done():
				close(m.done)
				m.closeAll()
				return
			}
		}
	}()
}

func (m *Manager) add(client *Client) {
	m.mutex.Lock()
	conns, ok := m.clients[client.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		m.clients[client.UserID] = conns
	}
	conns[client] = struct{}{}
	first := len(conns) == 1
	m.mutex.Unlock()

	logger.Debug("WebSocket client registered: %s", client.UserID)
	if first {
		m.notify(m.joinListeners(), client.UserID)
	}
}

func (m *Manager) remove(client *Client) {
	m.mutex.Lock()
	conns, ok := m.clients[client.UserID]
	if !ok {
		m.mutex.Unlock()
		return
	}
	if _, ok := conns[client]; !ok {
		m.mutex.Unlock()
		return
	}
	delete(conns, client)
	close(client.Send)
	last := len(conns) == 0
	if last {
		delete(m.clients, client.UserID)
	}
	m.mutex.Unlock()

	logger.Debug("WebSocket client unregistered: %s", client.UserID)
	if last {
		m.notify(m.leaveListeners(), client.UserID)
	}
}

func (m *Manager) closeAll() {
	m.mutex.Lock()
	var users []string
	for userID, conns := range m.clients {
		for c := range conns {
			close(c.Send)
		}
		users = append(users, userID)
	}
	m.clients = make(map[string]map[*Client]struct{})
	m.mutex.Unlock()

	for _, u := range users {
		m.notify(m.leaveListeners(), u)
	}
}

func (m *Manager) joinListeners() []func(string) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	return append([]func(string){}, m.onJoin...)
}

func (m *Manager) leaveListeners() []func(string) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	return append([]func(string){}, m.onLeave...)
}

func (m *Manager) notify(fns []func(string), userID string) {
	for _, fn := range fns {
		fn(userID)
	}
}

// Leave unregisters client unless the manager already stopped.
func (m *Manager) Leave(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

// Join registers client and waits until it can receive frames. It reports
// false once the manager stopped.
func (m *Manager) Join(client *Client) bool {
	r := registration{client: client, added: make(chan struct{})}
	select {
	case m.register <- r:
		<-r.added
		return true
	case <-m.done:
		return false
	}
}

// Connected reports how many connections userID has open.
func (m *Manager) Connected(userID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID])
}

// SendToUser queues message on every connection of userID. Connections
// with a full buffer skip the message.
func (m *Manager) SendToUser(userID string, message []byte) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for c := range m.clients[userID] {
		m.offer(c, message)
	}
}

// Broadcast queues message on every connection whose role passes filter.
// A nil filter reaches everyone.
func (m *Manager) Broadcast(message []byte, filter func(entity.Role) bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, conns := range m.clients {
		for c := range conns {
			if filter == nil || filter(c.Role) {
				m.offer(c, message)
			}
		}
	}
}

// reply queues message on c if it is still registered.
func (m *Manager) reply(c *Client, message []byte) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if _, ok := m.clients[c.UserID][c]; ok {
		m.offer(c, message)
	}
}

func (m *Manager) offer(c *Client, message []byte) {
	select {
	case c.Send <- message:
	default:
		logger.Warn("WebSocket buffer full for %s, dropping message", c.UserID)
	}
}

// ReadPump reads client frames until the connection fails and hands each
// one to handle.
func (c *Client) ReadPump(m *Manager, handle func(*Client, []byte)) {
	defer func() {
		m.Leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error for %s: %v", c.UserID, err)
			}
			return
		}
		if handle != nil {
			handle(c, message)
		}
	}
}

// WritePump writes queued messages and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket write error for %s: %v", c.UserID, err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
