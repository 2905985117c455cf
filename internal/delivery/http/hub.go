package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dealpop/dashboard/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 2 * time.Second

// Hub fans alert store events out to websocket clients
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHub creates a hub accepting upgrades from the allowed origins
func NewHub(allowedOrigins []string, logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || isAllowedOrigin(origin, allowedOrigins)
			},
		},
		logger: logger.With().Str("component", "alert_stream").Logger(),
	}
}

// ServeWS upgrades the request and keeps the client registered until it
// disconnects. Incoming messages are ignored.
func (h *Hub) ServeWS(c *gin.Context, welcome any) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	// the server's read timeout must not end the stream
	_ = ws.SetReadDeadline(time.Time{})
	h.add(ws)
	h.logger.Debug().Int("clients", h.Count()).Msg("Client connected")

	if welcome != nil {
		if b, err := json.Marshal(welcome); err == nil {
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			h.mu.Lock()
			err = ws.WriteMessage(websocket.TextMessage, b)
			h.mu.Unlock()
			if err != nil {
				h.remove(ws)
				return
			}
		}
	}

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(ws)
	h.logger.Debug().Int("clients", h.Count()).Msg("Client disconnected")
}

func (h *Hub) add(ws *websocket.Conn) {
	h.mu.Lock()
	h.clients[ws] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// BroadcastJSON sends v to every client, dropping clients that fail
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to encode stream event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = ws.Close()
			delete(h.clients, ws)
		}
	}
}

// Relay broadcasts every event of store until the returned func is called
func (h *Hub) Relay(store *usecase.AlertStore) func() {
	return store.Subscribe(func(event usecase.StoreEvent) {
		h.BroadcastJSON(event)
	})
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
