// Package db records inbound notification events in a PostgreSQL journal.
package db

import (
	"context"
	"database/sql"

	"github.com/cyverse-de/dbutil"
	"github.com/freshbasket/notification-sync/common"
	"github.com/pkg/errors"

	_ "github.com/lib/pq"
)

const (
	defaultDriver  = "postgres"
	connectTimeout = "1m"
)

// InitDatabase connects to the journal database, retrying for up to a minute, and creates the
// journal tables if they don't exist yet.
func InitDatabase(ctx context.Context, settings common.JournalSettings) (*sql.DB, error) {
	wrapMsg := "unable to initialize the journal database"

	driver := settings.Driver
	if driver == "" {
		driver = defaultDriver
	}

	connector, err := dbutil.NewDefaultConnector(connectTimeout)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	db, err := connector.Connect(driver, settings.URI)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, wrapMsg)
	}

	return db, nil
}
