package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// Event represents a single inbound event to be recorded in the journal.
type Event struct {
	ID              string
	EventType       string
	Admin           string
	NotificationIDs []string
	Payload         []byte
	TimeReceived    time.Time
}

// SaveEvent saves a single event into the journal, storing the assigned ID in the event.
func SaveEvent(ctx context.Context, tx *sql.Tx, event *Event) error {
	wrapMsg := "unable to save event"

	// Get the event type ID.
	eventTypeID, err := GetOrRegisterEventTypeID(ctx, tx, event.EventType)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Get the admin ID.
	adminID, err := GetAdminID(ctx, tx, event.Admin)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	notificationIDs := event.NotificationIDs
	if notificationIDs == nil {
		notificationIDs = []string{}
	}

	// Build the statement to insert the event.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("notification_events").
		Columns(
			"event_type_id",
			"admin_id",
			"notification_ids",
			"payload",
			"time_received").
		Values(
			eventTypeID,
			adminID,
			pq.Array(notificationIDs),
			string(event.Payload),
			event.TimeReceived).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the insert statement, scanning the ID into the event structure.
	row := tx.QueryRowContext(ctx, statement, args...)
	err = row.Scan(&event.ID)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// CountEvents counts the number of events recorded for the administrator.
func CountEvents(ctx context.Context, tx *sql.Tx, admin string) (int64, error) {
	wrapMsg := "unable to count recorded events"
	var total int64

	// Build the statement to count the events.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("count(*)").
		From("notification_events e").
		Join("admins a ON e.admin_id = a.id").
		Where(sq.Eq{"a.email": admin}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	err = tx.QueryRowContext(ctx, statement, args...).Scan(&total)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return total, nil
}
