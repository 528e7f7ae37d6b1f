package model

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/freshbasket/notification-sync/common"
	"github.com/freshbasket/notification-sync/logging"
	"github.com/pkg/errors"
)

var log = logging.Log.WithField("package", "model")

// Status is the read status of a notification. The backend uses "unread" and "read", but other values
// are passed through untouched.
type Status string

// Known notification statuses.
const (
	StatusUnread Status = "unread"
	StatusRead   Status = "read"
)

// Timestamp is a point in time that may be encoded either as an RFC 3339 string or as milliseconds
// since the epoch.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts RFC 3339 strings, millisecond strings, millisecond numbers and null. Values
// that can't be parsed are logged and decode as the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return t.discard(data, errors.Wrap(err, "unable to decode timestamp"))
		}
	} else {
		raw = string(data)
	}

	parsed, err := common.ParseTimestamp(raw)
	if err != nil {
		return t.discard(data, err)
	}
	t.Time = parsed
	return nil
}

// discard resets the timestamp after a parse failure. Timestamps are display data, so a bad one
// mustn't cause the rest of the payload to be rejected.
func (t *Timestamp) discard(data []byte, err error) error {
	log.WithError(err).WithField("timestamp", string(data)).Warn("ignoring an unparseable timestamp")
	t.Time = time.Time{}
	return nil
}

// MarshalJSON encodes the timestamp in RFC 3339 format with millisecond precision, or null for the
// zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format("2006-01-02T15:04:05.000Z07:00"))), nil
}

// Notification represents a single notification mirrored from the admin API.
type Notification struct {
	ID        string    `json:"_id"`
	Message   string    `json:"message"`
	OrderID   string    `json:"orderId,omitempty"`
	ProductID string    `json:"productId,omitempty"`
	AdminID   string    `json:"adminId,omitempty"`
	Image     string    `json:"image,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// IsOrderNotification returns true if the notification is associated with an order.
func (n Notification) IsOrderNotification() bool {
	return n.OrderID != ""
}

// Page is a single page of notifications returned by the admin API.
type Page struct {
	Notifications  []Notification `json:"notifications"`
	TotalUnreadDoc int64          `json:"totalUnreadDoc"`
	TotalDoc       int64          `json:"totalDoc"`
}
