package services

import (
	"log"
	"sync"

	"resusboard/internal/models"
)

// maxPendingEvents is the maximum number of important events buffered while
// no client is connected (e.g. between a tab crash and the reload).
const maxPendingEvents = 50

// importantEventTypes are the event types worth buffering for absent clients.
// Ticks are not buffered, the reconnecting client gets fresh timer state anyway.
var importantEventTypes = map[string]bool{
	models.EventMassagerAlert:   true,
	models.EventAdrenalineAlert: true,
	models.EventEpisodeEnded:    true,
	models.EventEpisodeReset:    true,
	models.EventArchiveUpdated:  true,
}

// EventBus is an in-memory pub/sub fanning board events out to every
// connected WebSocket client. It decouples the alert engine from WebSocket
// lifecycle: the engine publishes here, each connection subscribes.
//
// Important events (alerts, episode end) are buffered while no subscriber is
// connected. On reconnect, pending events are drained to the new subscriber
// so a due alert raised during a reload is not lost.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]chan models.Event // connID → chan
	pending     []models.Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string]chan models.Event),
	}
}

// Subscribe creates a new event channel for a connection. Returns a
// receive-only channel. Pending events are NOT auto-drained — call
// DrainPending() separately so the WebSocket handler can format them as a
// structured "missed_updates" message.
func (b *EventBus) Subscribe(connID string, bufSize int) <-chan models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.Event, bufSize)
	b.subscribers[connID] = ch

	log.Printf("[EVENT-BUS] Subscribe: conn=%s (total=%d)", connID, len(b.subscribers))

	return ch
}

// DrainPending returns and clears all buffered events.
// Called by the WebSocket handler on reconnect to build "missed_updates".
func (b *EventBus) DrainPending() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.pending
	b.pending = nil

	if len(events) > 0 {
		log.Printf("[EVENT-BUS] Drained %d pending events", len(events))
	}
	return events
}

// Unsubscribe removes a subscription. The channel is NOT closed — the
// subscriber's goroutine should exit via its own done signal, and the
// channel will be GC'd.
func (b *EventBus) Unsubscribe(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, connID)
	log.Printf("[EVENT-BUS] Unsubscribe: conn=%s (remaining=%d)", connID, len(b.subscribers))
}

// Publish sends an event to all subscribers. Non-blocking: if a subscriber's
// channel is full, the event is dropped for that subscriber.
//
// If no subscribers are connected and the event is an important type, it is
// buffered in the pending queue so it can be delivered on reconnect.
func (b *EventBus) Publish(event models.Event) {
	b.mu.RLock()
	if len(b.subscribers) > 0 {
		delivered := false
		for _, ch := range b.subscribers {
			select {
			case ch <- event:
				delivered = true
			default:
				// Subscriber is full, skip this one
			}
		}
		b.mu.RUnlock()

		if !delivered && importantEventTypes[event.Type] {
			b.bufferEvent(event)
		}
		return
	}
	b.mu.RUnlock()

	if importantEventTypes[event.Type] {
		b.bufferEvent(event)
	}
}

// bufferEvent adds an important event to the pending queue.
// Evicts oldest events if the buffer exceeds maxPendingEvents.
func (b *EventBus) bufferEvent(event models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, event)

	if len(b.pending) > maxPendingEvents {
		b.pending = b.pending[len(b.pending)-maxPendingEvents:]
	}

	log.Printf("[EVENT-BUS] Buffered event type=%s while no client connected (pending=%d)",
		event.Type, len(b.pending))
}

// SubscriberCount returns the number of active subscribers
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
