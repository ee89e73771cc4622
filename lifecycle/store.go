/*
store.go - Persistence interface for the lifecycle engine

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  never touches SQL; it asks for a unit of work (WithTx) and performs all
  reads and writes for one logical action through the Tx it is handed.

UNIT OF WORK:
  WithTx(ctx, locks, fn):
  - Acquires every named lock before fn runs and holds them until commit
    or rollback. Names come from Scope.LockKey() and RecordLockKey().
  - Commits only if fn returns nil. Any error, including a failed audit
    append, rolls back every write fn made.
  - Reports lost races and uniqueness violations as ErrConflict so the
    engine can retry once.

INVARIANTS THE STORE ENFORCES:
  - (date, driver_id, check_id) is unique on records. UpsertRecord writes
    to the existing row when the triple exists.
  - Records reference existing drivers and columns.
  - Audit entries are append-only. There is no update or delete.
  - Drivers and columns are never deleted.

IMPLEMENTATIONS:
  - store/sqldb:     SQLite and PostgreSQL
  - lifecycle/store: In-memory, with fault injection for tests
*/
package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// Reader is the read side shared by the store and its transactions.
// Get* methods return (nil, nil) when the row doesn't exist.
type Reader interface {
	GetDriver(ctx context.Context, id string) (*Driver, error)
	ListDrivers(ctx context.Context, filter DriverFilter) ([]Driver, error)

	GetCheckColumn(ctx context.Context, id string) (*CheckColumn, error)
	ListCheckColumns(ctx context.Context, filter ColumnFilter) ([]CheckColumn, error)

	GetRecord(ctx context.Context, key RecordKey) (*DailyCheckRecord, error)
	ListRecords(ctx context.Context, date Date) ([]DailyCheckRecord, error)

	// ListAudit returns entries newest first.
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// Tx is one unit of work. It is only valid inside the WithTx callback.
type Tx interface {
	Reader

	InsertDriver(ctx context.Context, d Driver) error
	UpdateDriver(ctx context.Context, d Driver) error

	InsertCheckColumn(ctx context.Context, c CheckColumn) error
	UpdateCheckColumn(ctx context.Context, c CheckColumn) error

	// UpsertRecord inserts r, or updates the row holding r's triple.
	// Returns the id of the stored row.
	UpsertRecord(ctx context.Context, r DailyCheckRecord) (string, error)

	// SetSortOrders rewrites sortOrder (and updatedAt) for members of scope.
	SetSortOrders(ctx context.Context, scope Scope, positions []Position, at time.Time) error

	// AppendAudit is the only write to the audit log.
	AppendAudit(ctx context.Context, e AuditEntry) error
}

// Store is the durable entity store.
type Store interface {
	Reader

	// WithTx executes fn within one transaction holding the named locks.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, locks []string, fn func(Tx) error) error
}

// =============================================================================
// FILTERS
// =============================================================================

// DriverFilter narrows ListDrivers. Zero value lists all drivers.
type DriverFilter struct {
	Group      *DriverGroup
	ActiveOnly bool
}

// ColumnFilter narrows ListCheckColumns. Zero value lists all columns.
type ColumnFilter struct {
	TimeBlock  *TimeBlock
	ActiveOnly bool
}

// AuditFilter narrows ListAudit.
type AuditFilter struct {
	Since      time.Time // inclusive; zero means no lower bound
	EntityType EntityType
	EntityID   string
	Limit      int // 0 means no limit
}

// RecordLockKey is the lock name that serializes writers of one grid cell.
func RecordLockKey(k RecordKey) string { return fmt.Sprintf("record:%s", k) }

// scopePositions returns the current members of scope as positions.
func scopePositions(ctx context.Context, r Reader, scope Scope) ([]Position, error) {
	var out []Position
	switch scope.Type {
	case ScopeDriverGroup:
		g := DriverGroup(scope.Key)
		drivers, err := r.ListDrivers(ctx, DriverFilter{Group: &g})
		if err != nil {
			return nil, err
		}
		for _, d := range drivers {
			out = append(out, Position{ID: d.ID, SortOrder: d.SortOrder})
		}
	case ScopeTimeBlock:
		b := TimeBlock(scope.Key)
		cols, err := r.ListCheckColumns(ctx, ColumnFilter{TimeBlock: &b})
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			out = append(out, Position{ID: c.ID, SortOrder: c.SortOrder})
		}
	default:
		return nil, invalid("scopeType", fmt.Sprintf("unknown scope type %q", scope.Type))
	}
	SortPositions(out)
	return out, nil
}

func without(items []Position, id string) []Position {
	out := make([]Position, 0, len(items))
	for _, p := range items {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
