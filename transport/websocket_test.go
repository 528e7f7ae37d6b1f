package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/freshbasket/notification-sync/apiclient"
	"github.com/freshbasket/notification-sync/common"
	"github.com/freshbasket/notification-sync/handlerset"
	"github.com/freshbasket/notification-sync/metrics"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// chanHandler forwards every event body it receives to a channel.
type chanHandler struct {
	bodies chan string
}

func newChanHandler() *chanHandler {
	return &chanHandler{bodies: make(chan string, 16)}
}

func (h *chanHandler) HandleMessage(_ context.Context, body []byte) error {
	h.bodies <- string(body)
	return nil
}

func (h *chanHandler) next(t *testing.T) string {
	select {
	case body := <-h.bodies:
		return body
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an event")
		return ""
	}
}

func socketURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func newTestWebSocket(server *httptest.Server, m *metrics.Metrics) *WebSocket {
	settings := common.SocketSettings{URL: socketURL(server), PingInterval: time.Second}
	ws := NewWebSocket(settings, "secret-token", "client-1", handlerset.New(m), m)
	ws.NewBackOff = func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Millisecond)
	}
	return ws
}

func TestWebSocketDeliversEventsInOrder(t *testing.T) {
	assert := assert.New(t)

	headers := make(chan http.Header, 1)
	pongs := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_, reply, err := conn.ReadMessage()
		if err != nil {
			return
		}
		pongs <- string(reply)

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"newNotification","data":{"n":1}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"unknownEvent","data":{}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"newNotification","data":{"n":2}}`))
		drain(conn)
	}))
	defer server.Close()

	ws := newTestWebSocket(server, nil)
	handler := newChanHandler()
	ws.On("newNotification", handler)

	require.NoError(t, ws.Connect(context.Background()))
	defer ws.Disconnect()

	header := <-headers
	assert.Equal("Bearer secret-token", header.Get("Authorization"))
	assert.Equal("client-1", header.Get(apiclient.ClientIDHeader))

	select {
	case reply := <-pongs:
		assert.JSONEq(`{"type":"pong"}`, reply)
	case <-time.After(5 * time.Second):
		t.Fatal("the ping was never answered")
	}

	assert.Equal(`{"n":1}`, handler.next(t))
	assert.Equal(`{"n":2}`, handler.next(t))
	assert.Eventually(ws.Connected, time.Second, 10*time.Millisecond)
}

func TestWebSocketReconnects(t *testing.T) {
	assert := assert.New(t)

	var connections int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := atomic.AddInt32(&connections, 1)
		if n == 1 {
			// Drop the first connection right after the first event.
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notificationDeleted","data":"first"}`))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notificationDeleted","data":"second"}`))
		drain(conn)
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ws := newTestWebSocket(server, m)
	handler := newChanHandler()
	ws.On("notificationDeleted", handler)

	require.NoError(t, ws.Connect(context.Background()))
	defer ws.Disconnect()

	assert.Equal(`"first"`, handler.next(t))
	assert.Equal(`"second"`, handler.next(t))
	assert.GreaterOrEqual(atomic.LoadInt32(&connections), int32(2))
	assert.GreaterOrEqual(testutil.ToFloat64(m.Reconnects), float64(1))
}

func TestWebSocketRetriesFailedDials(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"newNotification","data":{}}`))
		drain(conn)
	}))
	defer server.Close()

	ws := newTestWebSocket(server, nil)
	handler := newChanHandler()
	ws.On("newNotification", handler)

	require.NoError(t, ws.Connect(context.Background()))
	defer ws.Disconnect()

	assert.Equal(t, `{}`, handler.next(t))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3))
}

func TestWebSocketConnectAndDisconnectAreIdempotent(t *testing.T) {
	assert := assert.New(t)

	var connections int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(&connections, 1)
		drain(conn)
	}))
	defer server.Close()

	ws := newTestWebSocket(server, nil)
	ctx := context.Background()

	assert.NoError(ws.Connect(ctx))
	assert.NoError(ws.Connect(ctx))
	assert.Eventually(ws.Connected, 5*time.Second, 10*time.Millisecond)

	assert.NoError(ws.Disconnect())
	assert.NoError(ws.Disconnect())
	assert.False(ws.Connected())
	assert.Equal(int32(1), atomic.LoadInt32(&connections))

	assert.Equal(ErrDisconnected, ws.Connect(ctx))
}

func TestWebSocketDisconnectWithoutConnect(t *testing.T) {
	ws := NewWebSocket(common.SocketSettings{URL: "ws://127.0.0.1:1"}, "", "", handlerset.New(nil), nil)
	assert.NoError(t, ws.Disconnect())
	assert.Equal(t, ErrDisconnected, ws.Connect(context.Background()))
}

func TestWebSocketUnsubscribedHandlerIsNotCalled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"newNotification","data":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notificationUpdated","data":2}`))
		drain(conn)
	}))
	defer server.Close()

	ws := newTestWebSocket(server, nil)
	released := newChanHandler()
	kept := newChanHandler()
	ws.On("newNotification", released).Unsubscribe()
	ws.On("notificationUpdated", kept)

	require.NoError(t, ws.Connect(context.Background()))
	defer ws.Disconnect()

	assert.Equal(t, "2", kept.next(t))
	assert.Empty(t, released.bodies)
}
