package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// GetEventTypeID obtains the ID of the event type with the given name. An error is returned if the
// database can't be queried or the event type doesn't exist. The error returned for a missing event
// type has sql.ErrNoRows as its cause.
func GetEventTypeID(ctx context.Context, tx *sql.Tx, eventType string) (string, error) {
	wrapMsg := fmt.Sprintf("unable to get the event type ID for `%s`", eventType)

	// Build the SQL query and arguments.
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("id::text").
		From("event_types").
		Where(sq.Eq{"name": eventType}).
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var id string
	row := tx.QueryRowContext(ctx, query, args...)
	err = row.Scan(&id)
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	return id, nil
}

// RegisterEventType adds an event type to the database, returning the ID assigned to it.
func RegisterEventType(ctx context.Context, tx *sql.Tx, eventType string) (string, error) {
	wrapMsg := fmt.Sprintf("unable to register event type `%s`", eventType)

	// Build the statement.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("event_types").Columns("name").
		Values(eventType).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	var id string
	err = tx.QueryRowContext(ctx, statement, args...).Scan(&id)
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	return id, nil
}

// GetOrRegisterEventTypeID obtains the ID of the event type with the given name, registering the
// event type first if necessary.
func GetOrRegisterEventTypeID(ctx context.Context, tx *sql.Tx, eventType string) (string, error) {
	id, err := GetEventTypeID(ctx, tx, eventType)
	if err == nil {
		return id, nil
	}
	if errors.Cause(err) == sql.ErrNoRows {
		return RegisterEventType(ctx, tx, eventType)
	}
	return "", err
}
