// Package live pushes screening results to browsers over WebSocket.
//
// A Hub owns the set of connected clients. New clients receive a snapshot of
// the current state, then every run outcome as it happens. A client that
// cannot keep up with broadcasts is disconnected rather than slowing others.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/DotoriPicnic/condition-pick/internal/observability"
	"github.com/DotoriPicnic/condition-pick/internal/screening"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// Connection is one WebSocket client.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	mu sync.Mutex
}

// WriteMessage writes a frame with the connection's write lock held.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// registration carries a new connection and the frame it is greeted with.
type registration struct {
	conn     *Connection
	greeting func() any
}

// Hub tracks connections and fans broadcasts out to them.
type Hub struct {
	connections map[string]*Connection

	register   chan registration
	unregister chan *Connection
	broadcast  chan []byte
	done       chan struct{}

	sendBuffer int
	metrics    *observability.Metrics
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewHub creates a hub. sendBuffer bounds how many frames may be queued per
// client before it is dropped. metrics may be nil.
func NewHub(sendBuffer int, metrics *observability.Metrics) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	return &Hub{
		connections: make(map[string]*Connection),
		register:    make(chan registration),
		unregister:  make(chan *Connection),
		broadcast:   make(chan []byte, 64),
		done:        make(chan struct{}),
		sendBuffer:  sendBuffer,
		metrics:     metrics,
		logger:      slog.With("component", "live"),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every connection's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conn := range h.connections {
				close(conn.Send)
				delete(h.connections, id)
				h.recordConnected(-1)
			}
			h.mu.Unlock()
			return

		case reg := <-h.register:
			conn := reg.conn
			// The greeting is built here, between broadcasts, so it is never
			// older than the first update the client receives.
			if reg.greeting != nil {
				if err := h.SendJSON(conn, reg.greeting()); err != nil {
					h.logger.Warn("Failed to queue greeting", "connId", conn.ID, "error", err)
				}
			}
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.recordConnected(1)
			h.logger.Debug("Client connected", "connId", conn.ID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if h.remove(conn) {
				h.logger.Debug("Client disconnected", "connId", conn.ID)
			}
			h.mu.Unlock()

		case data := <-h.broadcast:
			h.mu.Lock()
			for _, conn := range h.connections {
				select {
				case conn.Send <- data:
				default:
					h.logger.Warn("Client send buffer full, disconnecting", "connId", conn.ID)
					h.remove(conn)
					if h.metrics != nil {
						h.metrics.RecordLiveDropped(context.Background())
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(conn *Connection) bool {
	if _, ok := h.connections[conn.ID]; !ok {
		return false
	}
	delete(h.connections, conn.ID)
	close(conn.Send)
	h.recordConnected(-1)
	return true
}

func (h *Hub) recordConnected(delta int64) {
	if h.metrics != nil {
		h.metrics.RecordLiveConnected(context.Background(), delta)
	}
}

// NewConnection wraps ws with a fresh ID and send buffer.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, h.sendBuffer),
	}
}

// Register adds conn to the hub. greeting, if non-nil, is called on the hub
// goroutine and its value queued on conn ahead of any broadcast. Register
// returns false once the hub has stopped.
func (h *Hub) Register(conn *Connection, greeting func() any) bool {
	select {
	case h.register <- registration{conn: conn, greeting: greeting}:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes conn and closes its send channel. It is safe to call
// more than once.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// SendJSON queues v on a single connection without blocking.
func (h *Hub) SendJSON(conn *Connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// BroadcastJSON queues v for every connection. It never blocks; when the
// hub is saturated the frame is dropped.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.done:
		return nil
	default:
		if h.metrics != nil {
			h.metrics.RecordLiveDropped(context.Background())
		}
		return ErrBufferFull
	}
}

// Notify broadcasts a run outcome to every client.
func (h *Hub) Notify(ctx context.Context, ev screening.Event) {
	if err := h.BroadcastJSON(eventMessage(ev)); err != nil {
		h.logger.Warn("Dropped live update", "runId", ev.RunID, "type", ev.Type, "error", err)
	}
}

// ConnectionCount returns the number of connected clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

var _ screening.Notifier = (*Hub)(nil)
