package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/warp/checkboard/lifecycle"
)

// Dialect selects the SQL flavour and the database/sql driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// ParseDialect accepts the DB_DRIVER values.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

// driverName is the database/sql driver registered for d.
func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

func (d Dialect) goose() goose.Dialect {
	if d == Postgres {
		return goose.DialectPostgres
	}
	return goose.DialectSQLite3
}

// rebind rewrites ? placeholders to $1..$n for postgres. Queries in this
// package never contain a literal question mark inside a string.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// jsonText selects a JSON column as text.
func (d Dialect) jsonText(col string) string {
	if d == Postgres {
		return col + "::text"
	}
	return col
}

// acquire takes the named locks inside tx. SQLite already serializes
// writers on the store mutex, so only postgres needs advisory locks.
// Keys are sorted so that overlapping lock sets can't deadlock.
func (d Dialect) acquire(ctx context.Context, tx *sql.Tx, locks []string) error {
	if d != Postgres || len(locks) == 0 {
		return nil
	}
	keys := slices.Clone(locks)
	slices.Sort(keys)
	for _, k := range slices.Compact(keys) {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", k, classify("lock", err))
		}
	}
	return nil
}

// classify turns driver errors that mean "another writer got there first"
// into lifecycle conflicts. Anything else is returned unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConflict(err) {
		return &lifecycle.ConflictError{Op: op, Err: err}
	}
	return err
}

func isConflict(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return true
		case sqlite3.ErrConstraint:
			return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
				se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
		}
		return false
	}

	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case "23505", // unique_violation
			"40001", // serialization_failure
			"40P01": // deadlock_detected
			return true
		}
	}
	return false
}
