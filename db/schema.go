package db

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

CREATE TABLE IF NOT EXISTS event_types (
    id uuid NOT NULL DEFAULT uuid_generate_v1() PRIMARY KEY,
    name text NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS admins (
    id uuid NOT NULL DEFAULT uuid_generate_v1() PRIMARY KEY,
    email text NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS notification_events (
    id uuid NOT NULL DEFAULT uuid_generate_v1() PRIMARY KEY,
    event_type_id uuid NOT NULL REFERENCES event_types(id),
    admin_id uuid NOT NULL REFERENCES admins(id),
    notification_ids text[] NOT NULL DEFAULT '{}',
    payload jsonb NOT NULL,
    time_received timestamp with time zone NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS notification_events_admin_id_index
    ON notification_events(admin_id);
`

// InitSchema creates the journal tables if they don't exist already.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "unable to initialize the journal schema")
	}
	return nil
}
