package models

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Event types pushed to connected clients
const (
	EventEpisodeStarted  = "episode_started"
	EventEpisodeEnded    = "episode_ended"
	EventEpisodeReset    = "episode_reset"
	EventEpisodeRestored = "episode_restored"
	EventTick            = "tick"
	EventMassagerAlert   = "massager_alert"
	EventAdrenalineAlert = "adrenaline_alert"
	EventCountersUpdated = "counters_updated"
	EventSectionsUpdated = "sections_updated"
	EventLogUpdated      = "log_updated"
	EventSettingsUpdated = "settings_updated"
	EventArchiveUpdated  = "archive_updated"
)

// Event is an internal pub/sub event fanned out to every connected client
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClientMessage represents incoming WebSocket messages from the browser
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage represents outgoing WebSocket messages to the browser
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// BoardConnection tracks one connected browser tab.
// StopChan is closed exactly once, by ConnectionManager.Remove; every
// per-connection goroutine selects on it to stop.
type BoardConnection struct {
	ConnID      string
	ConnectedAt time.Time
	Conn        *websocket.Conn
	WriteChan   chan ServerMessage
	StopChan    chan struct{}
	Mutex       sync.Mutex
}
