package db

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

// AddAdmin adds an administrator to the `admins` table in the journal database, returning the ID
// assigned to the administrator.
func AddAdmin(ctx context.Context, tx *sql.Tx, email string) (string, error) {
	wrapMsg := fmt.Sprintf("unable to add `%s` to the admins table", email)

	// Build the query.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert("admins").Columns("email").
		Values(email).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	var id string
	row := tx.QueryRowContext(ctx, statement, args...)
	err = row.Scan(&id)
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	return id, nil
}

// GetAdminID obtains the administrator ID for `email`, adding the administrator to the `admins`
// table if necessary.
func GetAdminID(ctx context.Context, tx *sql.Tx, email string) (string, error) {
	wrapMsg := fmt.Sprintf("unable to get the admin ID for `%s`", email)

	// Build the query.
	statement, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("id").From("admins").
		Where(sq.Eq{"email": email}).
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var id string
	row := tx.QueryRowContext(ctx, statement, args...)
	err = row.Scan(&id)

	// If the error is nil then we've got the ID already.
	if err == nil {
		return id, nil
	}

	// If the error is ErrNoRows then we need to add the administrator to the database.
	if err == sql.ErrNoRows {
		return AddAdmin(ctx, tx, email)
	}

	return "", errors.Wrap(err, wrapMsg)
}
