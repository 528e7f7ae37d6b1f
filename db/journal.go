package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Journal records inbound events for a single administrator.
type Journal struct {
	db    *sql.DB
	admin string
	now   func() time.Time
}

// NewJournal returns a journal that records events on behalf of admin.
func NewJournal(db *sql.DB, admin string) *Journal {
	return &Journal{db: db, admin: admin, now: time.Now}
}

// eventReferences contains the fields of any event payload that identify notifications.
type eventReferences struct {
	Notification struct {
		ID string `json:"_id"`
	} `json:"notification"`
	NotificationID string   `json:"notificationId"`
	IDs            []string `json:"ids"`
}

// NotificationIDs extracts the identifiers of the notifications that an event payload refers to.
// Payloads that can't be parsed refer to no notifications.
func NotificationIDs(body []byte) []string {
	var refs eventReferences
	if err := json.Unmarshal(body, &refs); err != nil {
		return []string{}
	}

	ids := make([]string, 0, len(refs.IDs)+1)
	if refs.Notification.ID != "" {
		ids = append(ids, refs.Notification.ID)
	}
	if refs.NotificationID != "" {
		ids = append(ids, refs.NotificationID)
	}
	return append(ids, refs.IDs...)
}

// Record saves a single event in its own transaction.
func (j *Journal) Record(ctx context.Context, eventName string, body []byte) error {
	wrapMsg := "unable to record event"

	// Payloads are stored as JSON, so anything else is stored as a JSON string.
	payload := body
	if !json.Valid(payload) {
		encoded, err := json.Marshal(string(body))
		if err != nil {
			return errors.Wrap(err, wrapMsg)
		}
		payload = encoded
	}

	// Begin a database transaction.
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	defer tx.Rollback() // nolint:errcheck

	event := &Event{
		EventType:       eventName,
		Admin:           j.admin,
		NotificationIDs: NotificationIDs(body),
		Payload:         payload,
		TimeReceived:    j.now(),
	}
	if err = SaveEvent(ctx, tx, event); err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Commit the transaction.
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// Count returns the number of events recorded for the journal's administrator.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	tx, err := j.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return 0, errors.Wrap(err, "unable to count recorded events")
	}
	defer tx.Rollback() // nolint:errcheck

	return CountEvents(ctx, tx, j.admin)
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
