package handlerset

import (
	"context"
	"sort"
	"sync"

	"github.com/freshbasket/notification-sync/handlers"
	"github.com/freshbasket/notification-sync/logging"
	"github.com/freshbasket/notification-sync/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var log = logging.Log.WithField("package", "handlerset")

// Recorder records events after they've been dispatched.
type Recorder interface {
	Record(ctx context.Context, eventName string, body []byte) error
}

type registration struct {
	id      uint64
	handler handlers.MessageHandler
}

// HandlerSet represents a set of event handlers keyed by event name.
type HandlerSet struct {
	mu         sync.RWMutex
	nextID     uint64
	handlerFor map[string][]registration
	recorder   Recorder
	metrics    *metrics.Metrics
}

// Subscription is the handle returned when a handler is registered. Unsubscribing releases the
// handler; it is safe to unsubscribe more than once.
type Subscription struct {
	hs        *HandlerSet
	eventName string
	id        uint64
	once      sync.Once
}

// New creates a new, empty handler set. A private registry is used if m is nil.
func New(m *metrics.Metrics) *HandlerSet {
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &HandlerSet{
		handlerFor: make(map[string][]registration),
		metrics:    m,
	}
}

// SetRecorder sets the recorder that every dispatched event is offered to.
func (hs *HandlerSet) SetRecorder(recorder Recorder) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.recorder = recorder
}

// Subscribe registers a handler for the named event. Handlers for the same event are invoked in
// registration order.
func (hs *HandlerSet) Subscribe(eventName string, handler handlers.MessageHandler) *Subscription {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	hs.nextID++
	hs.handlerFor[eventName] = append(hs.handlerFor[eventName], registration{id: hs.nextID, handler: handler})
	return &Subscription{hs: hs, eventName: eventName, id: hs.nextID}
}

// Unsubscribe releases the handler.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hs.remove(s.eventName, s.id)
	})
}

// EventName returns the name of the event that the subscription is for.
func (s *Subscription) EventName() string {
	return s.eventName
}

func (hs *HandlerSet) remove(eventName string, id uint64) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	registrations := hs.handlerFor[eventName]
	remaining := make([]registration, 0, len(registrations))
	for _, r := range registrations {
		if r.id != id {
			remaining = append(remaining, r)
		}
	}

	if len(remaining) == 0 {
		delete(hs.handlerFor, eventName)
	} else {
		hs.handlerFor[eventName] = remaining
	}
}

// HandlerCount returns the number of handlers registered for the named event.
func (hs *HandlerSet) HandlerCount(eventName string) int {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return len(hs.handlerFor[eventName])
}

// EventNames returns the sorted names of all events that have at least one handler.
func (hs *HandlerSet) EventNames() []string {
	hs.mu.RLock()
	defer hs.mu.RUnlock()

	names := make([]string, 0, len(hs.handlerFor))
	for name := range hs.handlerFor {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch hands a single inbound event to every handler registered for it, then offers it to the
// recorder. Failures are logged here; the first one is also returned.
func (hs *HandlerSet) Dispatch(ctx context.Context, eventName string, body []byte) error {
	hs.mu.RLock()
	registrations := append([]registration{}, hs.handlerFor[eventName]...)
	recorder := hs.recorder
	hs.mu.RUnlock()

	entry := log.WithField("event", eventName)
	hs.metrics.EventsReceived.WithLabelValues(eventName).Inc()

	if len(registrations) == 0 {
		entry.Debug("no handlers are registered for the event")
		hs.metrics.EventsDropped.WithLabelValues(eventName, "unsubscribed").Inc()
		return nil
	}

	var firstErr error
	for _, r := range registrations {
		err := r.handler.HandleMessage(ctx, body)
		if err == nil {
			continue
		}
		logFailure(entry, err)
		hs.metrics.EventsDropped.WithLabelValues(eventName, "rejected").Inc()
		if firstErr == nil {
			firstErr = err
		}
	}

	if recorder != nil {
		if err := recorder.Record(ctx, eventName, body); err != nil {
			journalErr := handlers.NewRecoverableError("unable to record %s event: %s", eventName, err.Error())
			logFailure(entry, journalErr)
			if firstErr == nil {
				firstErr = journalErr
			}
		}
	}

	return firstErr
}

func logFailure(entry *logrus.Entry, err error) {
	if handlers.IsRecoverable(err) {
		entry.WithError(err).Warn("event handling failed")
	} else {
		entry.WithError(err).Error("event dropped")
	}
}
