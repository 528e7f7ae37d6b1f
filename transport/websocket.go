package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/freshbasket/notification-sync/apiclient"
	"github.com/freshbasket/notification-sync/common"
	"github.com/freshbasket/notification-sync/handlers"
	"github.com/freshbasket/notification-sync/handlerset"
	"github.com/freshbasket/notification-sync/metrics"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultPingInterval     = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 10 * time.Second

	pingType = "ping"
	pongType = "pong"
)

// Envelope is the JSON frame used on the socket.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocket is an event transport that reads event envelopes from a WebSocket endpoint. It
// reconnects with exponential backoff whenever the connection drops.
type WebSocket struct {
	url          string
	header       http.Header
	pingInterval time.Duration
	dialer       *websocket.Dialer
	handlers     *handlerset.HandlerSet
	metrics      *metrics.Metrics

	// NewBackOff returns the reconnect policy. It may be replaced before Connect is called.
	NewBackOff func() backoff.BackOff

	mu        sync.Mutex
	started   bool
	closed    bool
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}

	writeMu sync.Mutex
}

// NewWebSocket creates a WebSocket transport. The token and client ID are attached to every
// connection attempt. A private registry is used if m is nil.
func NewWebSocket(
	settings common.SocketSettings,
	token, clientID string,
	hs *handlerset.HandlerSet,
	m *metrics.Metrics,
) *WebSocket {
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}

	handshakeTimeout := settings.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	pingInterval := settings.PingInterval
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if clientID != "" {
		header.Set(apiclient.ClientIDHeader, clientID)
	}

	return &WebSocket{
		url:          settings.URL,
		header:       header,
		pingInterval: pingInterval,
		dialer:       &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		handlers:     hs,
		metrics:      m,
		NewBackOff:   defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

// On registers a handler for the named event.
func (w *WebSocket) On(eventName string, handler handlers.MessageHandler) *handlerset.Subscription {
	return w.handlers.Subscribe(eventName, handler)
}

// Connect starts the connection loop in the background.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrDisconnected
	}
	if w.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.started = true
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(runCtx)

	return nil
}

// Disconnect stops the connection loop and waits for it to exit.
func (w *WebSocket) Disconnect() error {
	w.mu.Lock()
	if w.closed || !w.started {
		w.closed = true
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Connected reports whether a socket connection is currently established.
func (w *WebSocket) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *WebSocket) setConnected(connected bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = connected
}

func (w *WebSocket) run(ctx context.Context) {
	defer close(w.done)

	entry := log.WithField("url", w.url)
	policy := w.NewBackOff()

	for {
		conn, _, err := w.dialer.DialContext(ctx, w.url, w.header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			entry.WithError(err).Warn("connect_error")
		} else {
			policy.Reset()
			entry.Info("connect")
			w.setConnected(true)
			err = w.serve(ctx, conn)
			w.setConnected(false)
			if ctx.Err() != nil {
				entry.Info("disconnect")
				return
			}
			entry.WithError(err).Warn("disconnect")
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			entry.Error("giving up on the event socket")
			return
		}
		w.metrics.Reconnects.Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// serve reads envelopes from conn until the connection fails or ctx is cancelled.
func (w *WebSocket) serve(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)

	pongWait := 2 * w.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(w.pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.writeMu.Lock()
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait),
				)
				w.writeMu.Unlock()
				conn.Close()
				return
			case <-stop:
				conn.Close()
				return
			case <-ticker.C:
				w.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				w.writeMu.Unlock()
				if err != nil {
					log.WithError(err).Debug("unable to send a ping")
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "unable to read from the event socket")
		}

		// Any traffic shows the peer is alive.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var envelope Envelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			log.WithError(err).Warn("ignoring a frame that is not an event envelope")
			continue
		}

		switch envelope.Type {
		case "":
			log.Warn("ignoring an event envelope without a type")
		case pingType:
			if err := w.writeJSON(conn, Envelope{Type: pongType}); err != nil {
				return errors.Wrap(err, "unable to answer a ping")
			}
		case pongType:
		default:
			// Handler failures are logged and counted by the handler set.
			_ = w.handlers.Dispatch(ctx, envelope.Type, envelope.Data)
		}
	}
}

func (w *WebSocket) writeJSON(conn *websocket.Conn, v interface{}) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
