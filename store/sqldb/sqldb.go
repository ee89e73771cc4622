/*
Package sqldb provides the relational implementation of lifecycle.Store.

PURPOSE:
  Persists drivers, check columns, daily check records and the audit log
  in SQLite or PostgreSQL through database/sql. One code path serves both
  databases; the Dialect covers placeholders, lock acquisition and JSON.

KEY TABLES:
  drivers:             Ordered within driver_group
  check_columns:       Ordered within time_block; system_name is unique
  daily_check_records: UNIQUE(record_date, driver_id, check_id)
  audit_log:           Append-only; triggers reject UPDATE and DELETE

UNIT OF WORK:
  WithTx begins a transaction, acquires the named locks, runs fn, and
  commits only if fn succeeded. A failed audit insert therefore rolls the
  entity write back with it.

  SQLite:   The store mutex serializes units of work (single writer). The
            pool is limited to one connection so ":memory:" databases
            survive across calls.
  Postgres: pg_advisory_xact_lock per lock key, taken in sorted order and
            released by commit or rollback.

ENCODING:
  Dates:       TEXT "YYYY-MM-DD"
  Timestamps:  TEXT, fixed-width UTC ("2006-01-02T15:04:05.000000Z"), so
               lexical order is time order in both databases
  Audit diff:  TEXT (SQLite) / JSONB (Postgres)

MIGRATIONS:
  Embedded goose migrations under migrations/<dialect>/. Run them with
  Migrate, or `checkboard migrate`.

USAGE:
  st, err := sqldb.Open(ctx, sqldb.Config{Dialect: sqldb.SQLite, DSN: "checkboard.db"})
  if err != nil {
      return err
  }
  defer st.Close()
  if err := st.Migrate(ctx); err != nil {
      return err
  }
  engine := lifecycle.NewEngine(st)

SEE ALSO:
  - lifecycle/store.go:        Interface definitions
  - lifecycle/store/memory.go: In-memory implementation for testing
*/
package sqldb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/warp/checkboard/lifecycle"
)

//go:embed migrations
var migrations embed.FS

// Config describes how to open the database.
type Config struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          zerolog.Logger
}

// Store implements lifecycle.Store over database/sql.
type Store struct {
	queries
	db     *sql.DB
	mu     sync.Mutex
	logger zerolog.Logger
}

var _ lifecycle.Store = (*Store)(nil)

// Open connects to the database described by cfg and verifies it is reachable.
// Use DSN ":memory:" with SQLite for an in-memory database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Dialect == "" {
		cfg.Dialect = SQLite
	}
	dsn := cfg.DSN
	if cfg.Dialect == SQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(cfg.Dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Dialect == SQLite {
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return New(db, cfg.Dialect, cfg.Logger), nil
}

// New wraps an already-open handle. The caller keeps ownership of pool sizing.
func New(db *sql.DB, d Dialect, logger zerolog.Logger) *Store {
	return &Store{
		queries: queries{q: db, d: d},
		db:      db,
		logger:  logger.With().Str("component", "sqldb").Str("dialect", string(d)).Logger(),
	}
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "checkboard.db"
	}
	params := "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool, for stats collection.
func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies every pending embedded migration for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations/"+string(s.d))
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(s.d.goose(), s.db, fsys)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	for _, r := range results {
		s.logger.Info().
			Str("migration", r.Source.Path).
			Dur("took", r.Duration).
			Msg("migration applied")
	}
	return nil
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx executes fn within a database transaction holding locks.
func (s *Store) WithTx(ctx context.Context, locks []string, fn func(lifecycle.Tx) error) error {
	if s.d == SQLite {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify("begin", err))
	}
	defer sqlTx.Rollback()

	if err := s.d.acquire(ctx, sqlTx, locks); err != nil {
		return err
	}

	if err := fn(&txStore{queries: queries{q: sqlTx, d: s.d}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", classify("commit", err))
	}
	return nil
}

// txStore is the lifecycle.Tx handed to WithTx callbacks.
type txStore struct {
	queries
}

var _ lifecycle.Tx = (*txStore)(nil)
