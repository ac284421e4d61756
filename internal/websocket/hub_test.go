package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T, cfg *HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(cfg, zap.NewNop())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, want int64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return hub.GetStats().ActiveConnections == want
	}, time.Second, 5*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got map[string]interface{}
	require.NoError(t, conn.ReadJSON(&got))
	return got
}

func allEvents() *HubConfig {
	return &HubConfig{
		BroadcastDetections:  true,
		BroadcastRules:       true,
		BroadcastConnections: true,
		AllowedOrigins:       []string{"*"},
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub, srv := startHub(t, allEvents())
	conn := dial(t, hub, srv, 1)

	hub.PublishDetection("req-1", "mask", map[string]int{"Phone": 2, "Email": 1}, 3*time.Millisecond)

	got := readEvent(t, conn)
	assert.Equal(t, "pii_detection", got["type"])
	assert.Equal(t, "req-1", got["request_id"])
	data := got["data"].(map[string]interface{})
	assert.Equal(t, "mask", data["operation"])
	assert.Equal(t, float64(3), data["total"])
}

func TestHub_Subscription(t *testing.T) {
	hub, srv := startHub(t, allEvents())
	conn := dial(t, hub, srv, 1)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "subscribe", Events: []EventType{EventTypeRuleApplied}}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))
	assert.Equal(t, "pong", readEvent(t, conn)["type"])

	hub.PublishDetection("req-2", "scan", map[string]int{"IP": 1}, time.Millisecond)
	hub.PublishRule("req-3", RuleEvent{RuleID: "trim_whitespace", Outcome: "ok"})

	got := readEvent(t, conn)
	assert.Equal(t, "rule_applied", got["type"])
	assert.Equal(t, "req-3", got["request_id"])
}

func TestHub_ConnectionEvents(t *testing.T) {
	hub, srv := startHub(t, allEvents())
	first := dial(t, hub, srv, 1)
	second := dial(t, hub, srv, 2)

	got := readEvent(t, first)
	assert.Equal(t, "connection", got["type"])
	assert.Equal(t, "connected", got["data"].(map[string]interface{})["action"])

	second.Close()
	got = readEvent(t, first)
	assert.Equal(t, "disconnected", got["data"].(map[string]interface{})["action"])
}

func TestHub_Filtering(t *testing.T) {
	hub := NewHub(&HubConfig{BroadcastDetections: true}, nil)

	assert.True(t, hub.shouldBroadcastEvent(EventTypePIIDetection))
	assert.False(t, hub.shouldBroadcastEvent(EventTypeRuleApplied))
	assert.False(t, hub.shouldBroadcastEvent(EventTypeConnection))
	assert.False(t, hub.shouldBroadcastEvent(EventTypePong))

	assert.False(t, NewHub(nil, nil).shouldBroadcastEvent(EventTypePIIDetection))

	// Nothing found, nothing queued
	hub.PublishDetection("req", "scan", map[string]int{}, 0)
	assert.Len(t, hub.broadcast, 0)

	hub.PublishRule("req", RuleEvent{RuleID: "x"})
	assert.Len(t, hub.broadcast, 0)
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub(&HubConfig{AllowedOrigins: []string{"http://localhost:3000"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, hub.checkOrigin(req))
}

func TestClient_Subscribe(t *testing.T) {
	c := &Client{}
	assert.True(t, c.Wants(EventTypeConnection))

	c.Subscribe([]EventType{EventTypePIIDetection})
	assert.True(t, c.Wants(EventTypePIIDetection))
	assert.False(t, c.Wants(EventTypeConnection))

	c.Subscribe(nil)
	assert.True(t, c.Wants(EventTypeConnection))
}
