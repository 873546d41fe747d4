package ipc

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"nhooyr.io/websocket"
)

const (
	clientSendBuffer = 64
	clientWriteWait  = 15 * time.Second
)

// Event is one frame pushed to presentation clients.
type Event struct {
	Type      string    `json:"type"`
	PanelID   string    `json:"panelId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub keeps the connected presentation clients. A client that cannot keep
// up with the stream is disconnected rather than allowed to stall others.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	evicted atomic.Uint64
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Broadcast queues event for every client.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	var slow []*client
	for _, c := range h.clients {
		if !c.enqueue(event) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.evicted.Add(1)
		h.removeClient(c)
	}
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Evicted reports how many clients were dropped for falling behind.
func (h *Hub) Evicted() uint64 {
	return h.evicted.Load()
}

func (h *Hub) register(conn wsConn) *client {
	c := &client{
		id:   ulid.Make().String(),
		conn: conn,
		send: make(chan Event, clientSendBuffer),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	return c
}

// removeClient closes c's queue once; later calls are no-ops.
func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
}

type wsConn interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
	Close(status websocket.StatusCode, reason string) error
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
}

type client struct {
	id   string
	conn wsConn
	send chan Event
}

// enqueue reports false when the client's queue is full.
func (c *client) enqueue(event Event) bool {
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// writeLoop drains the queue until it is closed or ctx ends.
func (c *client) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-c.send:
			if !ok {
				return nil
			}
			frame, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := c.write(ctx, frame); err != nil {
				return err
			}
		}
	}
}

func (c *client) write(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, clientWriteWait)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

func (c *client) close(status websocket.StatusCode, reason string) {
	_ = c.conn.Close(status, reason)
}
