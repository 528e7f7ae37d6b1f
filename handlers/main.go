package handlers

import (
	"context"

	"github.com/freshbasket/notification-sync/model"
)

// MessageHandler describes the interface used to handle inbound events.
type MessageHandler interface {
	HandleMessage(ctx context.Context, body []byte) error
}

// NotificationStore describes the state transitions that event handlers apply.
type NotificationStore interface {
	ApplyCreate(n model.Notification)
	ApplyUpdate(n model.Notification, totalUnread int64)
	ApplyDelete(id string, totalUnread, totalDoc int64)
	ApplyBulkUpdate(ids []string, status model.Status, totalUnread int64)
	ApplyBulkDelete(ids []string, totalUnread, totalDoc int64)
}

// InitMessageHandlers returns a map from event name to message handler.
func InitMessageHandlers(s NotificationStore, notifier Notifier) map[string]MessageHandler {
	return map[string]MessageHandler{
		model.EventNewNotification:          NewNewNotification(s, notifier),
		model.EventNotificationUpdated:      NewNotificationUpdated(s),
		model.EventNotificationDeleted:      NewNotificationDeleted(s),
		model.EventNotificationsBulkUpdated: NewNotificationsBulkUpdated(s),
		model.EventNotificationsBulkDeleted: NewNotificationsBulkDeleted(s),
	}
}
