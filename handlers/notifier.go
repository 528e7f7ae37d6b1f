package handlers

import (
	"context"

	"github.com/freshbasket/notification-sync/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Notifier raises a user-facing toast for a notification.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// LogNotifier is a Notifier that writes toasts to the service log.
type LogNotifier struct {
	toasts prometheus.Counter
}

// NewLogNotifier returns a notifier that logs each toast and counts it in toasts, which may be nil.
func NewLogNotifier(toasts prometheus.Counter) *LogNotifier {
	return &LogNotifier{toasts: toasts}
}

// Notify logs the toast message.
func (n *LogNotifier) Notify(_ context.Context, message string) {
	logging.Log.WithField("toast", "success").Info(message)
	if n.toasts != nil {
		n.toasts.Inc()
	}
}
