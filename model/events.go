package model

// Names of the events pushed by the notification server.
const (
	EventNewNotification          = "newNotification"
	EventNotificationUpdated      = "notificationUpdated"
	EventNotificationDeleted      = "notificationDeleted"
	EventNotificationsBulkUpdated = "notificationsBulkUpdated"
	EventNotificationsBulkDeleted = "notificationsBulkDeleted"
)

// EventNames lists every event that the service consumes.
var EventNames = []string{
	EventNewNotification,
	EventNotificationUpdated,
	EventNotificationDeleted,
	EventNotificationsBulkUpdated,
	EventNotificationsBulkDeleted,
}

// NewNotificationEvent is the payload of a newNotification event.
type NewNotificationEvent struct {
	Notification Notification `json:"notification"`
	Message      string       `json:"message"`
}

// NotificationUpdatedEvent is the payload of a notificationUpdated event.
type NotificationUpdatedEvent struct {
	Notification Notification `json:"notification"`
	TotalUnread  int64        `json:"totalUnread"`
}

// NotificationDeletedEvent is the payload of a notificationDeleted event.
type NotificationDeletedEvent struct {
	NotificationID string `json:"notificationId"`
	TotalUnreadDoc int64  `json:"totalUnreadDoc"`
	TotalDoc       int64  `json:"totalDoc"`
}

// NotificationsBulkUpdatedEvent is the payload of a notificationsBulkUpdated event.
type NotificationsBulkUpdatedEvent struct {
	IDs         []string `json:"ids"`
	Status      Status   `json:"status"`
	TotalUnread int64    `json:"totalUnread"`
}

// NotificationsBulkDeletedEvent is the payload of a notificationsBulkDeleted event.
type NotificationsBulkDeletedEvent struct {
	IDs            []string `json:"ids"`
	TotalUnreadDoc int64    `json:"totalUnreadDoc"`
	TotalDoc       int64    `json:"totalDoc"`
}
