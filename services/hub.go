package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Connection wraps a websocket and coordinates outbound writes through a
// buffered channel so pushes never block the caller.
type Connection struct {
	UserID uint

	ws   *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func newConnection(userID uint, ws *websocket.Conn) *Connection {
	return &Connection{
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

func (c *Connection) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- payload:
		return true
	default:
		// Slow consumer: drop the connection to keep backpressure bounded.
		c.close(websocket.CloseGoingAway, "send buffer full")
		return false
	}
}

func (c *Connection) close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub tracks one live websocket per user for in-app delivery.
type Hub struct {
	mu    sync.RWMutex
	conns map[uint]*Connection
}

func NewHub() *Hub {
	return &Hub{conns: make(map[uint]*Connection)}
}

// Attach registers a connection for the user, replacing and closing any
// previous session.
func (h *Hub) Attach(userID uint, ws *websocket.Conn) *Connection {
	conn := newConnection(userID, ws)

	h.mu.Lock()
	previous := h.conns[userID]
	h.conns[userID] = conn
	h.mu.Unlock()

	go conn.writeLoop()

	if previous != nil {
		previous.close(websocket.ClosePolicyViolation, "session replaced")
	}
	return conn
}

func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	if h.conns[conn.UserID] == conn {
		delete(h.conns, conn.UserID)
	}
	h.mu.Unlock()
	conn.close(websocket.CloseNormalClosure, "detached")
}

// Push delivers a JSON payload to the user's live connection. Returns false
// when the user is offline or the payload cannot be queued.
func (h *Hub) Push(userID uint, payload any) bool {
	h.mu.RLock()
	conn := h.conns[userID]
	h.mu.RUnlock()

	if conn == nil {
		return false
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return conn.enqueue(raw)
}
