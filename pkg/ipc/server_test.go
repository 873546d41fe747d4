package ipc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/panel/pkg/bus"
	"github.com/odvcencio/panel/pkg/engine"
	"github.com/odvcencio/panel/pkg/layout"
	"github.com/odvcencio/panel/pkg/panel"
	"github.com/odvcencio/panel/pkg/telemetry"
)

func testForest() []layout.Description {
	return []layout.Description{
		{ID: "container_main", Kind: layout.KindContainer, Nested: true, Children: []layout.Description{
			{ID: "title_1", Kind: layout.KindTitle, Content: "Hello"},
			{ID: "input_1", Kind: layout.KindInputText},
			{ID: "ok_button", Kind: layout.KindButton, Content: "OK"},
			{ID: "start_button", Kind: layout.KindButton, Content: "Start"},
		}},
	}
}

type testServer struct {
	server *Server
	http   *httptest.Server
	engine *engine.Engine
	hub    *telemetry.Hub
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	p, err := panel.Build(testForest())
	require.NoError(t, err)

	b := bus.NewMemoryBus()
	hub := telemetry.NewHub()
	eng := engine.New(p, b, engine.Options{
		StartControl: "start_button",
		BoundInput:   "input_1",
		Hub:          hub,
	})
	go eng.Run(ctx)

	srv := NewServer(cfg, eng, hub, nil)
	srv.forwardTelemetry(ctx)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		eng.Close()
		cancel()
		b.Close()
		hub.Close()
	})
	return &testServer{server: srv, http: ts, engine: eng, hub: hub}
}

func (ts *testServer) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, Config{Version: "test"})

	resp, err := http.Get(ts.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, ts.engine.InstanceID(), body["panelId"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestActivateReportsBoundInputValue(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.post(t, "/api/input/input_1", `{"value":"42"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.post(t, "/api/activate/ok_button", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var event engine.OutboundEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&event))
	assert.Equal(t, "ok_button", event.ComponentID)
	assert.Equal(t, "42", event.SetView)
}

func TestActivateStartControlKeepsLabel(t *testing.T) {
	ts := newTestServer(t, Config{})

	ts.post(t, "/api/input/input_1", `{"value":"42"}`)
	resp := ts.post(t, "/api/activate/start_button", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var event engine.OutboundEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&event))
	assert.Equal(t, "start_button", event.ComponentID)
	assert.NotEqual(t, "42", event.SetView)
}

func TestActivateUnknownComponent(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.post(t, "/api/activate/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "UNRESOLVED_IDENTITY", body["code"])
}

func TestActivateInertComponent(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.post(t, "/api/display", `{'component_id': 'ok_button', 'set_content': 'Wait'}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.post(t, "/api/activate/ok_button", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INERT_COMPONENT", decodeBody(t, resp)["code"])
}

func TestActivateRejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.post(t, "/api/activate/ok_button", `{"bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActivateRateLimited(t *testing.T) {
	ts := newTestServer(t, Config{ActivationRate: 0.001, ActivationBurst: 1})

	first := ts.post(t, "/api/activate/ok_button", "")
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := ts.post(t, "/api/activate/ok_button", "")
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestInputRejectsNonInput(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.post(t, "/api/input/title_1", `{"value":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", decodeBody(t, resp)["code"])
}

func TestDisplayAcceptsSingleQuotedRecord(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.post(t, "/api/display", `{'component_id': 'title_1', 'set_content': 'Bonjour'}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap, err := ts.engine.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Roots, 1)
	var title panel.NodeState
	for _, child := range snap.Roots[0].Children {
		if child.ID == "title_1" {
			title = child
		}
	}
	assert.Equal(t, "Bonjour", title.Content)
}

func TestDisplayMalformed(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := ts.post(t, "/api/display", `not a record`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MALFORMED_MESSAGE", decodeBody(t, resp)["code"])

	empty := ts.post(t, "/api/request", "")
	assert.Equal(t, http.StatusBadRequest, empty.StatusCode)
}

func TestRequestEnablesInteraction(t *testing.T) {
	ts := newTestServer(t, Config{})

	ts.post(t, "/api/activate/ok_button", "")
	resp := ts.post(t, "/api/request", `{'component_id': 'title_1', 'set_content': 'Next?'}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	panelResp, err := http.Get(ts.http.URL + "/api/panel")
	require.NoError(t, err)
	defer panelResp.Body.Close()

	var body struct {
		PanelID  string         `json:"panelId"`
		Snapshot panel.Snapshot `json:"snapshot"`
	}
	require.NoError(t, json.NewDecoder(panelResp.Body).Decode(&body))
	assert.Equal(t, ts.engine.InstanceID(), body.PanelID)
	assert.True(t, body.Snapshot.InteractionEnabled)
}

func TestForeignOriginRejected(t *testing.T) {
	ts := newTestServer(t, Config{AllowedOrigins: []string{"http://localhost:3000"}})

	req, err := http.NewRequest(http.MethodPost, ts.http.URL+"/api/activate/ok_button", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, ts.http.URL+"/api/activate/ok_button", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestOriginMatching(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost", "https://panel.example", "http://10.0.0.2:8080", " "})

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:5173", true},
		{"https://panel.example", true},
		{"https://panel.example:443", true},
		{"https://panel.example:8443", false},
		{"http://panel.example", false},
		{"http://10.0.0.2:8080", true},
		{"http://10.0.0.2", false},
		{"HTTP://LOCALHOST:3000", true},
		{"not a url", false},
	}
	for _, tt := range tests {
		got, wildcard := policy.allows(tt.origin)
		assert.Equal(t, tt.want, got, tt.origin)
		assert.False(t, wildcard, tt.origin)
	}

	open := newOriginPolicy([]string{"*"})
	got, wildcard := open.allows("https://anywhere.example")
	assert.True(t, got)
	assert.True(t, wildcard)
}

func TestWebSocketStreamsSnapshots(t *testing.T) {
	ts := newTestServer(t, Config{})

	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent := func() Event {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	first := readEvent()
	assert.Equal(t, EventPanelSnapshot, first.Type)
	assert.Equal(t, ts.engine.InstanceID(), first.PanelID)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "ping"}))
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "activate", ComponentID: "ok_button"}))

	seen := map[string]bool{}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !(seen[EventServerPong] && seen[EventPanelSnapshot] && seen["telemetry.interaction.activated"]) {
		seen[readEvent().Type] = true
	}
	assert.True(t, seen[EventServerPong])
	assert.True(t, seen["telemetry.interaction.activated"])
	assert.True(t, seen[EventPanelSnapshot])
}

func TestWebSocketReportsErrors(t *testing.T) {
	ts := newTestServer(t, Config{})

	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, EventPanelSnapshot, ev.Type)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "input", ComponentID: "ok_button", Value: "x"}))
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var next struct {
			Type    string            `json:"type"`
			Payload map[string]string `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&next))
		if next.Type == EventServerError {
			assert.Equal(t, "INVALID_INPUT", next.Payload["code"])
			return
		}
	}
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub()
	fast := hub.register(nil)
	slow := &client{id: "slow", send: make(chan Event, 1)}
	hub.mu.Lock()
	hub.clients[slow.id] = slow
	hub.mu.Unlock()

	hub.Broadcast(Event{Type: "a"})
	hub.Broadcast(Event{Type: "b"})

	assert.Equal(t, 1, hub.ClientCount())
	assert.Equal(t, uint64(1), hub.Evicted())
	assert.Len(t, fast.send, 2)
	assert.NotEmpty(t, fast.id)

	hub.removeClient(fast)
	hub.removeClient(fast)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestConnLimiter(t *testing.T) {
	l := newConnLimiter(2)
	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire())
	assert.Equal(t, 2, l.Active())
	l.Release()
	assert.True(t, l.Acquire())

	var unlimited *connLimiter
	assert.True(t, unlimited.Acquire())
}
