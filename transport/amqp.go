package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cyverse-de/messaging/v9"
	"github.com/freshbasket/notification-sync/common"
	"github.com/freshbasket/notification-sync/handlers"
	"github.com/freshbasket/notification-sync/handlerset"
	"github.com/streadway/amqp"
)

const defaultPrefetch = 1

// MessagingClient describes the functions we need from messaging.Client.
type MessagingClient interface {
	AddConsumerMulti(
		exchange, exchangeType, queue string,
		keys []string,
		handler messaging.MessageHandler,
		prefetchCount int,
	)
	Listen()
	Close()
}

// AMQP is an event transport that consumes events published to an AMQP exchange. The routing key
// of each message is the configured prefix followed by the event name.
type AMQP struct {
	settings  common.AMQPSettings
	handlers  *handlerset.HandlerSet
	eventKeys []string

	// NewClient creates the messaging client. It may be replaced before Connect is called.
	NewClient func(uri string) (MessagingClient, error)

	// NewBackOff returns the policy for retrying failed connection attempts. It may be replaced
	// before Connect is called.
	NewBackOff func() backoff.BackOff

	mu        sync.Mutex
	started   bool
	closed    bool
	connected bool
	runCtx    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewAMQP creates an AMQP transport that binds its queue to the routing keys for the given event
// names.
func NewAMQP(settings common.AMQPSettings, eventNames []string, hs *handlerset.HandlerSet) *AMQP {
	return &AMQP{
		settings:  settings,
		handlers:  hs,
		eventKeys: append([]string{}, eventNames...),
		NewClient: func(uri string) (MessagingClient, error) {
			// Retries are handled by the transport so that they can be cancelled.
			return messaging.NewClient(uri, false)
		},
		NewBackOff: defaultBackOff,
	}
}

// RoutingKeys returns the routing keys that the queue is bound to.
func (a *AMQP) RoutingKeys() []string {
	keys := make([]string, len(a.eventKeys))
	for i, name := range a.eventKeys {
		keys[i] = a.settings.RoutingPrefix + name
	}
	return keys
}

// EventName returns the event name for a routing key, and false if the key doesn't carry the
// routing prefix.
func (a *AMQP) EventName(routingKey string) (string, bool) {
	if !strings.HasPrefix(routingKey, a.settings.RoutingPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(routingKey, a.settings.RoutingPrefix)
	return name, name != ""
}

// On registers a handler for the named event.
func (a *AMQP) On(eventName string, handler handlers.MessageHandler) *handlerset.Subscription {
	return a.handlers.Subscribe(eventName, handler)
}

// Connect starts connecting to the broker in the background. Failed attempts are logged and
// retried until Disconnect is called.
func (a *AMQP) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrDisconnected
	}
	if a.started {
		return nil
	}

	a.runCtx, a.cancel = context.WithCancel(ctx)
	a.started = true
	a.done = make(chan struct{})
	go a.run(a.runCtx)

	return nil
}

// Disconnect stops any connection attempt, closes the messaging client and waits for both to
// finish.
func (a *AMQP) Disconnect() error {
	a.mu.Lock()
	if a.closed || !a.started {
		a.closed = true
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Connected reports whether the messaging client is connected.
func (a *AMQP) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *AMQP) setConnected(connected bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = connected
}

func (a *AMQP) run(ctx context.Context) {
	defer close(a.done)

	entry := log.WithField("exchange", a.settings.ExchangeName).WithField("queue", a.settings.Queue)
	policy := a.NewBackOff()

	var client MessagingClient
	for {
		var err error
		client, err = a.dial(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		entry.WithError(err).Warn("connect_error")

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			entry.Error("giving up on the AMQP broker")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	client.AddConsumerMulti(
		a.settings.ExchangeName,
		a.settings.ExchangeType,
		a.settings.Queue,
		a.RoutingKeys(),
		a.handleDelivery,
		defaultPrefetch,
	)
	go client.Listen()
	a.setConnected(true)
	entry.Info("connect")

	<-ctx.Done()
	client.Close()
	a.setConnected(false)
	entry.Info("disconnect")
}

// dial creates a messaging client, giving up as soon as ctx is cancelled. A client that connects
// after that is closed.
func (a *AMQP) dial(ctx context.Context) (MessagingClient, error) {
	type result struct {
		client MessagingClient
		err    error
	}

	results := make(chan result, 1)
	go func() {
		client, err := a.NewClient(a.settings.URI)
		results <- result{client: client, err: err}
	}()

	select {
	case r := <-results:
		return r.client, r.err
	case <-ctx.Done():
		go func() {
			if r := <-results; r.err == nil && r.client != nil {
				r.client.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// handleDelivery dispatches one delivery. Every delivery is acknowledged, since redelivery would
// duplicate creations.
func (a *AMQP) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	defer func() {
		if err := delivery.Ack(false); err != nil {
			log.WithError(err).Error("unable to acknowledge a delivery")
		}
	}()

	eventName, ok := a.EventName(delivery.RoutingKey)
	if !ok {
		log.WithField("routingKey", delivery.RoutingKey).Warn("ignoring a delivery with an unexpected routing key")
		return
	}

	if a.runCtx != nil && a.runCtx.Err() != nil {
		return
	}

	// Handler failures are logged and counted by the handler set.
	_ = a.handlers.Dispatch(ctx, eventName, delivery.Body)
}
