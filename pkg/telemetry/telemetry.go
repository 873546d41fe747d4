// Package telemetry carries panel observability: an in-process event hub
// that presentation clients subscribe to, and Prometheus metrics.
package telemetry

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	EventCommandApplied   EventType = "command.applied"
	EventCommandRejected  EventType = "command.rejected"
	EventActivated        EventType = "interaction.activated"
	EventInputChanged     EventType = "interaction.input"
	EventLayoutReloaded   EventType = "layout.reloaded"
	EventLayoutReloadFail EventType = "layout.reload_failed"
)

// DefaultSubscriberChannelSize is the per-subscriber buffer.
const DefaultSubscriberChannelSize = 64

// Event describes a panel state change that UIs and IPC clients can consume.
type Event struct {
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	PanelID     string         `json:"panelId,omitempty"`
	ComponentID string         `json:"componentId,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Stats reports hub occupancy.
type Stats struct {
	SubscriberCount int
	Dropped         uint64
}

// Hub fan-outs telemetry events to any number of subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	bufferSize  int
	dropped     uint64
	closed      bool
}

// NewHub constructs a telemetry hub.
func NewHub() *Hub {
	return NewHubWithBuffer(DefaultSubscriberChannelSize)
}

// NewHubWithBuffer constructs a hub whose subscriber channels hold size events.
func NewHubWithBuffer(size int) *Hub {
	if size <= 0 {
		size = DefaultSubscriberChannelSize
	}
	return &Hub{
		subscribers: make(map[string]chan Event),
		bufferSize:  size,
	}
}

// Publish notifies all subscribers of an event. Non-blocking; drops if buffer full.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.dropped++
		}
	}
}

// Subscribe returns a channel that will receive future events and a cleanup func.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch, id := h.SubscribeWithID()
	return ch, func() { h.Unsubscribe(id) }
}

// SubscribeWithID registers a subscriber and returns its channel and ID.
// On a closed hub the returned channel is already closed and the ID is empty.
func (h *Hub) SubscribeWithID() (<-chan Event, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Event)
		close(empty)
		return empty, ""
	}
	id := ulid.Make().String()
	ch := make(chan Event, h.bufferSize)
	h.subscribers[id] = ch
	return ch, id
}

// Unsubscribe removes a subscriber and closes its channel. Unknown IDs are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// GetStats returns the current subscriber count and drop total.
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		SubscriberCount: len(h.subscribers),
		Dropped:         h.dropped,
	}
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
