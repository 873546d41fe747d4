package ipc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	apperrors "github.com/odvcencio/panel/pkg/errors"
)

const (
	wsPingInterval = 20 * time.Second
	wsPingTimeout  = 5 * time.Second
)

// wsMessage is a client request on the event stream.
type wsMessage struct {
	Type        string `json:"type"`
	ComponentID string `json:"componentId,omitempty"`
	Input       string `json:"input,omitempty"`
	Value       string `json:"value,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.isRequestOriginAllowed(r) {
		respondError(w, http.StatusForbidden, errForbiddenOrigin)
		return
	}
	if !s.conns.Acquire() {
		respondError(w, http.StatusTooManyRequests, errTooManyClients)
		return
	}
	defer s.conns.Release()

	// Origin was checked above against the configured list.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(maxWSReadBytesEventStream)

	c := s.hub.register(conn)
	ctx, cancel := context.WithCancel(r.Context())
	startWSPing(ctx, conn)

	go func() {
		defer cancel()
		s.readClient(ctx, c)
	}()

	go func() {
		if err := c.writeLoop(ctx); err != nil {
			s.logger.Debug("websocket write error", "client_id", c.id, "error", err)
			cancel()
		}
	}()

	if snap, err := s.engine.Snapshot(ctx); err == nil {
		c.enqueue(s.snapshotEvent(snap))
	}

	<-ctx.Done()
	s.hub.removeClient(c)
	c.close(websocket.StatusNormalClosure, "shutdown")
}

// readClient handles inbound WebSocket messages. Activations share the HTTP
// rate limiter; failures are reported to the sender only.
func (s *Server) readClient(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			c.enqueue(Event{Type: EventServerPong, Timestamp: time.Now()})
		case "activate":
			if !s.limiter.Allow() {
				c.enqueue(errorEvent(errRateLimited))
				continue
			}
			if _, err := s.engine.Activate(ctx, strings.TrimSpace(msg.ComponentID), strings.TrimSpace(msg.Input)); err != nil {
				c.enqueue(errorEvent(err))
			}
		case "input":
			if !s.limiter.Allow() {
				c.enqueue(errorEvent(errRateLimited))
				continue
			}
			if err := s.engine.Input(ctx, strings.TrimSpace(msg.ComponentID), msg.Value); err != nil {
				c.enqueue(errorEvent(err))
			}
		case "snapshot":
			if snap, err := s.engine.Snapshot(ctx); err == nil {
				c.enqueue(s.snapshotEvent(snap))
			}
		}
	}
}

func errorEvent(err error) Event {
	return Event{
		Type:      EventServerError,
		Payload:   map[string]string{"code": string(apperrors.GetCode(err)), "error": err.Error()},
		Timestamp: time.Now(),
	}
}

func startWSPing(ctx context.Context, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	ticker := time.NewTicker(wsPingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, wsPingTimeout)
				_ = conn.Ping(pingCtx)
				cancel()
			}
		}
	}()
}
