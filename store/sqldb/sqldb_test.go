package sqldb_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/checkboard/lifecycle"
	"github.com/warp/checkboard/store/sqldb"
)

var t0 = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

const actor = "dispatcher-1"

// =============================================================================
// TEST SETUP
// =============================================================================

// newSQLite returns a migrated in-memory store plus the raw handle for
// assertions that go around the store.
func newSQLite(t *testing.T) (*sqldb.Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := sqldb.New(db, sqldb.SQLite, zerolog.Nop())
	require.NoError(t, st.Migrate(context.Background()))
	return st, db
}

func newEngine(st lifecycle.Store, clock lifecycle.Clock) *lifecycle.Engine {
	var n atomic.Int64
	return lifecycle.NewEngine(st,
		lifecycle.WithClock(clock),
		lifecycle.WithIDGenerator(func() string { return fmt.Sprintf("id-%03d", n.Add(1)) }),
	)
}

// =============================================================================
// SQLITE ROUND TRIP
// =============================================================================

func TestOpen_InMemory(t *testing.T) {
	ctx := context.Background()
	st, err := sqldb.Open(ctx, sqldb.Config{Dialect: sqldb.SQLite, DSN: ":memory:"})
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Ping(ctx))

	// Migrating twice is a no-op.
	require.NoError(t, st.Migrate(ctx))

	drivers, err := st.ListDrivers(ctx, lifecycle.DriverFilter{})
	require.NoError(t, err)
	assert.Empty(t, drivers)
}

func TestSQLite_RecordUniqueness(t *testing.T) {
	// GIVEN: A driver and a column persisted in SQLite
	// WHEN: The same cell is written twice
	// THEN: One row keeps its original id, and the audit trail has two entries

	st, _ := newSQLite(t)
	clock := &lifecycle.FixedClock{T: t0}
	e := newEngine(st, clock)
	ctx := context.Background()

	d, err := e.CreateDriver(ctx, lifecycle.CreateDriverInput{Name: "Kelly Olson", Group: lifecycle.GroupLocal}, actor)
	require.NoError(t, err)
	c, err := e.CreateCheckColumn(ctx, lifecycle.CreateCheckColumnInput{DisplayName: "Truck", TimeBlock: lifecycle.BlockMorning}, actor)
	require.NoError(t, err)

	first, err := e.UpsertRecordStatus(ctx, lifecycle.UpsertRecordInput{
		Date: "2025-03-10", DriverID: d.ID, CheckID: c.ID, Status: lifecycle.StatusInProgress,
	}, actor)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	second, err := e.UpsertRecordStatus(ctx, lifecycle.UpsertRecordInput{
		Date: "2025-03-10", DriverID: d.ID, CheckID: c.ID, Status: lifecycle.StatusDone,
	}, actor)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.StartedAt)
	require.NotNil(t, second.CompletedAt)
	assert.True(t, t0.Equal(*second.StartedAt))
	assert.True(t, t0.Add(30*time.Minute).Equal(*second.CompletedAt))

	records, err := st.ListRecords(ctx, "2025-03-10")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, lifecycle.StatusDone, records[0].Status)
	assert.Equal(t, actor, records[0].UpdatedByUserID)

	entries, err := st.ListAudit(ctx, lifecycle.AuditFilter{EntityType: lifecycle.EntityRecord})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, lifecycle.ActionUpdate, entries[0].Action)
	assert.Equal(t, lifecycle.ActionCreate, entries[1].Action)
}

func TestSQLite_ColumnRoundTrip(t *testing.T) {
	st, _ := newSQLite(t)
	e := newEngine(st, &lifecycle.FixedClock{T: t0})
	ctx := context.Background()

	c, err := e.CreateCheckColumn(ctx, lifecycle.CreateCheckColumnInput{
		DisplayName: "Fuel card", TimeBlock: lifecycle.BlockMidday, InstructionText: "Confirm the card works",
	}, actor)
	require.NoError(t, err)

	got, err := st.GetCheckColumn(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.SystemName, got.SystemName)
	assert.Equal(t, lifecycle.ColumnTemporary, got.ColumnType)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, c.ExpiresAt.Equal(*got.ExpiresAt))
	assert.True(t, got.IsActive)

	missing, err := st.GetCheckColumn(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_ConcurrentReorders(t *testing.T) {
	// GIVEN: Four drivers in one group
	// WHEN: Several reorders run concurrently
	// THEN: The group ends with contiguous sort orders 1..4

	st, _ := newSQLite(t)
	e := newEngine(st, &lifecycle.FixedClock{T: t0})
	ctx := context.Background()

	var ds []lifecycle.Driver
	for _, name := range []string{"A", "B", "C", "D"} {
		d, err := e.CreateDriver(ctx, lifecycle.CreateDriverInput{Name: name, Group: lifecycle.GroupNew}, actor)
		require.NoError(t, err)
		ds = append(ds, d)
	}

	moves := [][2]int{{3, 0}, {2, 1}, {0, 3}, {1, 2}}
	var wg sync.WaitGroup
	for _, m := range moves {
		wg.Add(1)
		go func(src, dst lifecycle.Driver) {
			defer wg.Done()
			_, err := e.Reorder(ctx, lifecycle.ReorderInput{
				ScopeType: string(lifecycle.ScopeDriverGroup),
				ScopeKey:  string(lifecycle.GroupNew),
				SourceID:  src.ID,
				TargetID:  dst.ID,
			}, actor)
			assert.NoError(t, err)
		}(ds[m[0]], ds[m[1]])
	}
	wg.Wait()

	group := lifecycle.GroupNew
	got, err := st.ListDrivers(ctx, lifecycle.DriverFilter{Group: &group})
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, d := range got {
		assert.Equal(t, i+1, d.SortOrder)
	}
}

func TestSQLite_AuditNewestFirst(t *testing.T) {
	st, _ := newSQLite(t)
	clock := &lifecycle.FixedClock{T: t0}
	e := newEngine(st, clock)
	ctx := context.Background()

	d, err := e.CreateDriver(ctx, lifecycle.CreateDriverInput{Name: "Kelly", Group: lifecycle.GroupLocal}, actor)
	require.NoError(t, err)
	_, err = e.UpdateDriver(ctx, d.ID, lifecycle.DriverPatch{Name: strp("Kelly Olson")}, actor)
	require.NoError(t, err)

	// Same instant: insertion order breaks the tie.
	_, err = e.UpdateDriver(ctx, d.ID, lifecycle.DriverPatch{IsActive: boolp(false)}, actor)
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour)
	_, err = e.UpdateDriver(ctx, d.ID, lifecycle.DriverPatch{IsActive: boolp(true)}, actor)
	require.NoError(t, err)

	all, err := st.ListAudit(ctx, lifecycle.AuditFilter{EntityID: d.ID})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []lifecycle.Action{
		lifecycle.ActionReactivate, lifecycle.ActionDeactivate, lifecycle.ActionRename, lifecycle.ActionCreate,
	}, actions(all))

	recent, err := e.ListRecentAudit(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, lifecycle.ActionReactivate, recent[0].Action)

	limited, err := st.ListAudit(ctx, lifecycle.AuditFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	var diff struct {
		Before lifecycle.Driver `json:"before"`
		After  lifecycle.Driver `json:"after"`
	}
	require.NoError(t, lifecycle.DecodeDiff(all[0], &diff.Before, &diff.After))
	assert.False(t, diff.Before.IsActive)
	assert.True(t, diff.After.IsActive)
}

func TestSQLite_AuditLogIsAppendOnly(t *testing.T) {
	st, db := newSQLite(t)
	e := newEngine(st, &lifecycle.FixedClock{T: t0})
	ctx := context.Background()

	_, err := e.CreateDriver(ctx, lifecycle.CreateDriverInput{Name: "Kelly", Group: lifecycle.GroupLocal}, actor)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE audit_log SET summary = 'edited'`)
	assert.ErrorContains(t, err, "append-only")

	_, err = db.ExecContext(ctx, `DELETE FROM audit_log`)
	assert.ErrorContains(t, err, "append-only")
}

func TestSQLite_DuplicateInsertIsConflict(t *testing.T) {
	st, _ := newSQLite(t)
	ctx := context.Background()

	d := lifecycle.Driver{ID: "d-1", Name: "Kelly", Group: lifecycle.GroupLocal, SortOrder: 1, IsActive: true, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, st.WithTx(ctx, nil, func(tx lifecycle.Tx) error { return tx.InsertDriver(ctx, d) }))

	err := st.WithTx(ctx, nil, func(tx lifecycle.Tx) error { return tx.InsertDriver(ctx, d) })
	assert.True(t, lifecycle.IsConflict(err), "got %v", err)
}

func TestSQLite_SetSortOrdersRejectsForeignMember(t *testing.T) {
	st, _ := newSQLite(t)
	ctx := context.Background()

	d := lifecycle.Driver{ID: "d-1", Name: "Kelly", Group: lifecycle.GroupLocal, SortOrder: 1, IsActive: true, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, st.WithTx(ctx, nil, func(tx lifecycle.Tx) error { return tx.InsertDriver(ctx, d) }))

	err := st.WithTx(ctx, nil, func(tx lifecycle.Tx) error {
		return tx.SetSortOrders(ctx, lifecycle.DriverScope(lifecycle.GroupNew), []lifecycle.Position{{ID: "d-1", SortOrder: 2}}, t0)
	})
	assert.True(t, lifecycle.IsNotFound(err))
}

// =============================================================================
// SQLMOCK
// =============================================================================

func TestWithTx_AuditFailureRollsBack(t *testing.T) {
	// GIVEN: A driver insert that succeeds
	// WHEN: The audit insert in the same unit of work fails
	// THEN: The transaction is rolled back, not committed

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := sqldb.New(db, sqldb.SQLite, zerolog.Nop())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO drivers")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	ctx := context.Background()
	err = st.WithTx(ctx, nil, func(tx lifecycle.Tx) error {
		d := lifecycle.Driver{ID: "d-1", Name: "Kelly", Group: lifecycle.GroupLocal, SortOrder: 1, IsActive: true, CreatedAt: t0, UpdatedAt: t0}
		if err := tx.InsertDriver(ctx, d); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, lifecycle.AuditEntry{
			ID: "a-1", OccurredAt: t0, UserID: actor, EntityType: lifecycle.EntityDriver,
			EntityID: "d-1", Action: lifecycle.ActionCreate, Summary: "Kelly created", Diff: []byte(`{"after":{}}`),
		})
	})
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_PostgresTakesSortedAdvisoryLocks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := sqldb.New(db, sqldb.Postgres, zerolog.Nop())

	lock := regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtextextended($1, 0))")
	mock.ExpectBegin()
	mock.ExpectExec(lock).WithArgs("scope:driver_group:Local Drivers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(lock).WithArgs("scope:driver_group:New Drivers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`(?s)INSERT INTO daily_check_records .*VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10, \$11\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-existing"))
	mock.ExpectCommit()

	ctx := context.Background()
	var id string
	locks := []string{"scope:driver_group:New Drivers", "scope:driver_group:Local Drivers", "scope:driver_group:New Drivers"}
	err = st.WithTx(ctx, locks, func(tx lifecycle.Tx) error {
		var err error
		id, err = tx.UpsertRecord(ctx, lifecycle.DailyCheckRecord{
			ID: "rec-new", Date: "2025-03-10", DriverID: "d-1", CheckID: "c-1",
			Status: lifecycle.StatusInProgress, UpdatedAt: t0, UpdatedByUserID: actor,
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-existing", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDrivers_ScansNullableColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := sqldb.New(db, sqldb.Postgres, zerolog.Nop())

	rows := sqlmock.NewRows([]string{"id", "name", "truck_number", "driver_group", "sort_order", "is_active", "created_at", "updated_at"}).
		AddRow("d-2", "Sam", "T-12", "Local Drivers", 1, true, "2025-03-10T08:00:00.000000Z", "2025-03-10T08:00:00.000000Z").
		AddRow("d-1", "Kelly", nil, "New Drivers", 1, false, "2025-03-09T08:00:00.000000Z", "2025-03-10T09:30:00.000000Z")

	mock.ExpectQuery(regexp.QuoteMeta("FROM drivers WHERE is_active = $1")).
		WithArgs(true).
		WillReturnRows(rows)

	ds, err := st.ListDrivers(context.Background(), lifecycle.DriverFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, ds, 2)

	// Group display order wins over sort order.
	assert.Equal(t, "d-1", ds[0].ID)
	assert.Nil(t, ds[0].TruckNumber)
	assert.True(t, ds[0].UpdatedAt.Equal(t0.Add(90*time.Minute)))
	require.NotNil(t, ds[1].TruckNumber)
	assert.Equal(t, "T-12", *ds[1].TruckNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]sqldb.Dialect{
		"":           sqldb.SQLite,
		"sqlite":     sqldb.SQLite,
		"SQLite3":    sqldb.SQLite,
		"postgres":   sqldb.Postgres,
		"postgresql": sqldb.Postgres,
		"pgx":        sqldb.Postgres,
	} {
		got, err := sqldb.ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := sqldb.ParseDialect("mysql")
	assert.Error(t, err)
}

func actions(es []lifecycle.AuditEntry) []lifecycle.Action {
	out := make([]lifecycle.Action, len(es))
	for i, e := range es {
		out[i] = e.Action
	}
	return out
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }
