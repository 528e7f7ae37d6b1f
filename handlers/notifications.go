package handlers

import (
	"context"
	"encoding/json"

	"github.com/freshbasket/notification-sync/model"
)

func decode(eventName string, body []byte, payload interface{}) error {
	if err := json.Unmarshal(body, payload); err != nil {
		return NewUnrecoverableError("unable to parse %s payload: %s", eventName, err.Error())
	}
	return nil
}

// NewNotification handles newNotification events.
type NewNotification struct {
	store    NotificationStore
	notifier Notifier
}

// NewNewNotification returns a new handler for newNotification events.
func NewNewNotification(s NotificationStore, notifier Notifier) *NewNotification {
	return &NewNotification{store: s, notifier: notifier}
}

// HandleMessage prepends the notification. Notifications that aren't associated with an order also
// raise a toast; order notifications are surfaced by the dashboard instead.
func (h *NewNotification) HandleMessage(ctx context.Context, body []byte) error {
	var payload model.NewNotificationEvent
	if err := decode(model.EventNewNotification, body, &payload); err != nil {
		return err
	}
	if payload.Notification.ID == "" {
		return NewUnrecoverableError("%s payload has no notification ID", model.EventNewNotification)
	}

	h.store.ApplyCreate(payload.Notification)

	if !payload.Notification.IsOrderNotification() && h.notifier != nil {
		h.notifier.Notify(ctx, payload.Message)
	}

	return nil
}

// NotificationUpdated handles notificationUpdated events.
type NotificationUpdated struct {
	store NotificationStore
}

// NewNotificationUpdated returns a new handler for notificationUpdated events.
func NewNotificationUpdated(s NotificationStore) *NotificationUpdated {
	return &NotificationUpdated{store: s}
}

// HandleMessage replaces the stored copy of the notification.
func (h *NotificationUpdated) HandleMessage(_ context.Context, body []byte) error {
	var payload model.NotificationUpdatedEvent
	if err := decode(model.EventNotificationUpdated, body, &payload); err != nil {
		return err
	}

	h.store.ApplyUpdate(payload.Notification, payload.TotalUnread)
	return nil
}

// NotificationDeleted handles notificationDeleted events.
type NotificationDeleted struct {
	store NotificationStore
}

// NewNotificationDeleted returns a new handler for notificationDeleted events.
func NewNotificationDeleted(s NotificationStore) *NotificationDeleted {
	return &NotificationDeleted{store: s}
}

// HandleMessage removes the notification and adopts the server's counters.
func (h *NotificationDeleted) HandleMessage(_ context.Context, body []byte) error {
	var payload model.NotificationDeletedEvent
	if err := decode(model.EventNotificationDeleted, body, &payload); err != nil {
		return err
	}
	if payload.NotificationID == "" {
		return NewUnrecoverableError("%s payload has no notification ID", model.EventNotificationDeleted)
	}

	h.store.ApplyDelete(payload.NotificationID, payload.TotalUnreadDoc, payload.TotalDoc)
	return nil
}

// NotificationsBulkUpdated handles notificationsBulkUpdated events.
type NotificationsBulkUpdated struct {
	store NotificationStore
}

// NewNotificationsBulkUpdated returns a new handler for notificationsBulkUpdated events.
func NewNotificationsBulkUpdated(s NotificationStore) *NotificationsBulkUpdated {
	return &NotificationsBulkUpdated{store: s}
}

// HandleMessage sets the status of every listed notification.
func (h *NotificationsBulkUpdated) HandleMessage(_ context.Context, body []byte) error {
	var payload model.NotificationsBulkUpdatedEvent
	if err := decode(model.EventNotificationsBulkUpdated, body, &payload); err != nil {
		return err
	}

	h.store.ApplyBulkUpdate(payload.IDs, payload.Status, payload.TotalUnread)
	return nil
}

// NotificationsBulkDeleted handles notificationsBulkDeleted events.
type NotificationsBulkDeleted struct {
	store NotificationStore
}

// NewNotificationsBulkDeleted returns a new handler for notificationsBulkDeleted events.
func NewNotificationsBulkDeleted(s NotificationStore) *NotificationsBulkDeleted {
	return &NotificationsBulkDeleted{store: s}
}

// HandleMessage removes every listed notification.
func (h *NotificationsBulkDeleted) HandleMessage(_ context.Context, body []byte) error {
	var payload model.NotificationsBulkDeletedEvent
	if err := decode(model.EventNotificationsBulkDeleted, body, &payload); err != nil {
		return err
	}

	h.store.ApplyBulkDelete(payload.IDs, payload.TotalUnreadDoc, payload.TotalDoc)
	return nil
}
