package transport

import (
	"context"

	"github.com/freshbasket/notification-sync/handlers"
	"github.com/freshbasket/notification-sync/handlerset"
	"github.com/freshbasket/notification-sync/logging"
	"github.com/pkg/errors"
)

var log = logging.Log.WithField("package", "transport")

// ErrDisconnected is returned when Connect is called on a transport that has already been
// disconnected.
var ErrDisconnected = errors.New("the event transport has been disconnected")

// EventTransport delivers named server-pushed events to registered handlers.
type EventTransport interface {
	// Connect establishes the connection. Calling it more than once is a no-op. Connection failures
	// are logged and retried rather than returned.
	Connect(ctx context.Context) error

	// On registers a handler for the named event. The handler is invoked once per inbound event, in
	// arrival order, until the returned subscription is released.
	On(eventName string, handler handlers.MessageHandler) *handlerset.Subscription

	// Disconnect releases the connection. Calling it more than once is a no-op.
	Disconnect() error
}
