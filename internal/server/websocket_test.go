package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/behaviour/internal/core/events/bus"
	"github.com/zeusync/behaviour/internal/core/observability/log"
)

func dialWS(t *testing.T, url string, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(url, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketForwardsBusEvents(t *testing.T) {
	events := bus.New()
	srv, _ := newTestServer(t, Config{MaxClients: 4}, events)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL, "")
	waitClients(t, srv.hub, 1)

	require.NoError(t, events.Publish(bus.NewEvent("runner.tick", "runner", map[string]int{"tick": 7})))

	var env struct {
		Type   string         `json:"type"`
		Source string         `json:"source"`
		Data   map[string]int `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, "runner.tick", env.Type)
	require.Equal(t, "runner", env.Source)
	require.Equal(t, 7, env.Data["tick"])
}

func TestWebSocketTypeFilter(t *testing.T) {
	events := bus.New()
	srv, _ := newTestServer(t, Config{}, events)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL, "?type=bt.")
	waitClients(t, srv.hub, 1)

	require.NoError(t, events.Publish(bus.NewEvent("runner.tick", "runner", nil)))
	require.NoError(t, events.Publish(bus.NewEvent("bt.tree.settled", "guard", nil)))

	var env Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, "bt.tree.settled", env.Type)
}

func TestWebSocketMaxClients(t *testing.T) {
	srv, _ := newTestServer(t, Config{MaxClients: 1}, bus.New())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	dialWS(t, ts.URL, "")
	waitClients(t, srv.hub, 1)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	events := bus.New()
	h, err := NewHub(events, 0, log.NewNop())
	require.NoError(t, err)
	ts := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	waitClients(t, h, 1)

	h.Close()
	require.Equal(t, 0, h.Clients())
	require.Equal(t, 0, events.Subscribers(bus.Wildcard))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}
