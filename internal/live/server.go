package live

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/screening"
	"github.com/gorilla/websocket"
)

// StatusSource provides the state sent to newly connected clients.
type StatusSource interface {
	Status() screening.Status
}

// Config tunes connection keep-alive.
type Config struct {
	PingInterval   time.Duration // must be shorter than PongWait
	PongWait       time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns the keep-alive settings used in production.
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 512,
	}
}

// Handler upgrades HTTP requests to WebSocket connections served by a Hub.
type Handler struct {
	hub      *Hub
	status   StatusSource
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the /ws handler.
func NewHandler(hub *Hub, status StatusSource, cfg Config) *Handler {
	return &Handler{
		hub:    hub,
		status: status,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: slog.With("component", "live"),
	}
}

// ServeHTTP upgrades the request and starts the connection's pumps.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(h.cfg.MaxMessageSize)

	conn := h.hub.NewConnection(ws)
	snapshot := func() any { return snapshotMessage(h.status.Status(), time.Now()) }
	if !h.hub.Register(conn, snapshot) {
		_ = ws.Close()
		return
	}

	go h.writePump(conn)
	go h.readPump(conn)
}

// readPump discards client frames and keeps the read deadline fresh.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		_ = conn.Conn.Close()
	}()

	_ = conn.Conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("WebSocket read error", "connId", conn.ID, "error", err)
			}
			return
		}
	}
}

func (h *Handler) writePump(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel.
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("WebSocket write failed", "connId", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
