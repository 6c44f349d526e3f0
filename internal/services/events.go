package services

import "sync"

// Event names broadcast to SSE subscribers.
const (
	EventGenerationQueued    = "generation_queued"
	EventGenerationStarted   = "generation_started"
	EventGenerationCompleted = "generation_completed"
	EventGenerationFailed    = "generation_failed"
	EventResponseSaved       = "response_saved"
	EventStatusChanged       = "status_changed"
)

// Event is one server-sent message. Channel is the questionnaire key the
// event concerns (country:report_date); subscribers on "*" receive all
// channels.
type Event struct {
	Channel string `json:"channel"`
	Name    string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type eventClient struct {
	channel string
	ch      chan Event
}

// EventHub fans events out to SSE clients. Sends never block: a client whose
// buffer is full misses the event rather than stalling the publisher.
type EventHub struct {
	mu      sync.RWMutex
	clients map[string]*eventClient
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[string]*eventClient)}
}

// Subscribe registers a client for one channel ("*" for everything) and
// returns the receive side. The channel is closed on Unsubscribe.
func (h *EventHub) Subscribe(clientID, channel string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 100)
	h.clients[clientID] = &eventClient{channel: channel, ch: ch}
	return ch
}

// Unsubscribe removes a client from the hub.
func (h *EventHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok {
		close(c.ch)
		delete(h.clients, clientID)
	}
}

// Broadcast delivers the event to subscribers of its channel and to wildcard
// subscribers.
func (h *EventHub) Broadcast(channel, name string, payload any) {
	event := Event{Channel: channel, Name: name, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if c.channel != "*" && c.channel != channel {
			continue
		}
		select {
		case c.ch <- event:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var (
	globalEventHub *EventHub
	eventHubOnce   sync.Once
)

// GetEventHub returns the process-wide hub singleton.
func GetEventHub() *EventHub {
	eventHubOnce.Do(func() {
		globalEventHub = NewEventHub()
	})
	return globalEventHub
}
