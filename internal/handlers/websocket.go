package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"resusboard/internal/models"
	"resusboard/internal/services"
)

const readDeadline = 120 * time.Second

// WebSocketHandler pushes board state to connected browser tabs. Every tab
// gets the full snapshot on connect plus any important events it missed,
// then live events from the bus.
type WebSocketHandler struct {
	connManager *services.ConnectionManager
	bus         *services.EventBus
	episodes    *services.EpisodeService
	settings    *services.SettingsService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(connManager *services.ConnectionManager, bus *services.EventBus,
	episodes *services.EpisodeService, settings *services.SettingsService) *WebSocketHandler {
	return &WebSocketHandler{
		connManager: connManager,
		bus:         bus,
		episodes:    episodes,
		settings:    settings,
	}
}

// Handle handles a new WebSocket connection
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()

	conn := &models.BoardConnection{
		ConnID:      connID,
		ConnectedAt: time.Now(),
		Conn:        c,
		WriteChan:   make(chan models.ServerMessage, 100),
		StopChan:    make(chan struct{}),
	}

	h.connManager.Add(conn)
	events := h.bus.Subscribe(connID, 100)
	defer func() {
		h.bus.Unsubscribe(connID)
		// Closes StopChan, tearing down the ping/write/forward loops
		h.connManager.Remove(connID)
	}()

	c.SetReadDeadline(time.Now().Add(readDeadline))
	c.SetPongHandler(func(appData string) error {
		c.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(conn)
	go h.writeLoop(conn)
	go h.forwardLoop(conn, events)

	// Full snapshot first, then anything important that happened while no
	// tab was connected.
	conn.WriteChan <- models.ServerMessage{
		Type: "state",
		Payload: map[string]interface{}{
			"status":   h.episodes.Status(),
			"episode":  h.episodes.Current(),
			"settings": h.settings.Get(),
		},
	}
	if missed := h.bus.DrainPending(); len(missed) > 0 {
		conn.WriteChan <- models.ServerMessage{Type: "missed_updates", Payload: missed}
	}

	h.readLoop(conn)
}

// forwardLoop relays bus events to this connection's write channel
func (h *WebSocketHandler) forwardLoop(conn *models.BoardConnection, events <-chan models.Event) {
	for {
		select {
		case <-conn.StopChan:
			return
		case event := <-events:
			select {
			case conn.WriteChan <- models.ServerMessage{Type: event.Type, Payload: event.Payload}:
			default:
				// Writer is saturated, drop rather than block the bus
			}
		}
	}
}

// pingLoop sends periodic pings to keep the connection alive
func (h *WebSocketHandler) pingLoop(conn *models.BoardConnection) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-conn.StopChan:
			return
		case <-ticker.C:
			conn.Mutex.Lock()
			err := conn.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			conn.Mutex.Unlock()
			if err != nil {
				log.Printf("⚠️ Ping failed for %s: %v", conn.ConnID, err)
				return
			}
		}
	}
}

// writeLoop serializes all outgoing messages for one connection
func (h *WebSocketHandler) writeLoop(conn *models.BoardConnection) {
	for {
		select {
		case <-conn.StopChan:
			return
		case msg := <-conn.WriteChan:
			conn.Mutex.Lock()
			err := conn.Conn.WriteJSON(msg)
			conn.Mutex.Unlock()
			if err != nil {
				log.Printf("⚠️ Write failed for %s: %v", conn.ConnID, err)
				return
			}
		}
	}
}

// readLoop handles incoming messages from the client
func (h *WebSocketHandler) readLoop(conn *models.BoardConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in readLoop: %v", r)
		}
	}()

	for {
		_, msg, err := conn.Conn.ReadMessage()
		if err != nil {
			log.Printf("🔌 WebSocket closed for %s: %v", conn.ConnID, err)
			return
		}

		conn.Conn.SetReadDeadline(time.Now().Add(readDeadline))

		var clientMsg models.ClientMessage
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			conn.WriteChan <- models.ServerMessage{Type: "error", Error: "Invalid message format"}
			continue
		}

		switch clientMsg.Type {
		case "ping":
			conn.WriteChan <- models.ServerMessage{Type: "pong"}
		case "get_state":
			conn.WriteChan <- models.ServerMessage{
				Type: "state",
				Payload: map[string]interface{}{
					"status":   h.episodes.Status(),
					"episode":  h.episodes.Current(),
					"settings": h.settings.Get(),
				},
			}
		default:
			log.Printf("⚠️ Unknown message type: %s", clientMsg.Type)
		}
	}
}
