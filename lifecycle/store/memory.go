// Package store provides an in-memory lifecycle.Store.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/warp/checkboard/lifecycle"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds every table in maps behind one mutex. WithTx takes the
// write lock for the whole unit of work, which subsumes any named lock.
type Memory struct {
	mu      sync.RWMutex
	drivers map[string]lifecycle.Driver
	columns map[string]lifecycle.CheckColumn
	records map[lifecycle.RecordKey]lifecycle.DailyCheckRecord
	audit   []lifecycle.AuditEntry

	// fault injection
	auditErr      error
	failCommits   int
	lockHistory   [][]string
	commitCounter int
}

func NewMemory() *Memory {
	return &Memory{
		drivers: make(map[string]lifecycle.Driver),
		columns: make(map[string]lifecycle.CheckColumn),
		records: make(map[lifecycle.RecordKey]lifecycle.DailyCheckRecord),
	}
}

var _ lifecycle.Store = (*Memory)(nil)

// =============================================================================
// FAULT INJECTION
// =============================================================================

// FailAudit makes every AppendAudit return err until called with nil.
func (m *Memory) FailAudit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditErr = err
}

// FailCommits makes the next n units of work roll back with a conflict
// after fn succeeds, as if a concurrent writer won the race.
func (m *Memory) FailCommits(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCommits = n
}

// LockHistory returns the lock sets requested by each WithTx call, in order.
func (m *Memory) LockHistory() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]string, len(m.lockHistory))
	for i, l := range m.lockHistory {
		out[i] = slices.Clone(l)
	}
	return out
}

// Commits returns how many units of work committed.
func (m *Memory) Commits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commitCounter
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) GetDriver(_ context.Context, id string) (*lifecycle.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getDriver(id), nil
}

func (m *Memory) ListDrivers(_ context.Context, f lifecycle.DriverFilter) ([]lifecycle.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDrivers(f), nil
}

func (m *Memory) GetCheckColumn(_ context.Context, id string) (*lifecycle.CheckColumn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getColumn(id), nil
}

func (m *Memory) ListCheckColumns(_ context.Context, f lifecycle.ColumnFilter) ([]lifecycle.CheckColumn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listColumns(f), nil
}

func (m *Memory) GetRecord(_ context.Context, k lifecycle.RecordKey) (*lifecycle.DailyCheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRecord(k), nil
}

func (m *Memory) ListRecords(_ context.Context, date lifecycle.Date) ([]lifecycle.DailyCheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRecords(date), nil
}

func (m *Memory) ListAudit(_ context.Context, f lifecycle.AuditFilter) ([]lifecycle.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAudit(f), nil
}

// Unlocked read helpers. Callers hold mu.

func (m *Memory) getDriver(id string) *lifecycle.Driver {
	d, ok := m.drivers[id]
	if !ok {
		return nil
	}
	return &d
}

func (m *Memory) listDrivers(f lifecycle.DriverFilter) []lifecycle.Driver {
	var out []lifecycle.Driver
	for _, d := range m.drivers {
		if f.Group != nil && d.Group != *f.Group {
			continue
		}
		if f.ActiveOnly && !d.IsActive {
			continue
		}
		out = append(out, d)
	}
	lifecycle.SortDrivers(out)
	return out
}

func (m *Memory) getColumn(id string) *lifecycle.CheckColumn {
	c, ok := m.columns[id]
	if !ok {
		return nil
	}
	return &c
}

func (m *Memory) listColumns(f lifecycle.ColumnFilter) []lifecycle.CheckColumn {
	var out []lifecycle.CheckColumn
	for _, c := range m.columns {
		if f.TimeBlock != nil && c.TimeBlock != *f.TimeBlock {
			continue
		}
		if f.ActiveOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	lifecycle.SortColumns(out)
	return out
}

func (m *Memory) getRecord(k lifecycle.RecordKey) *lifecycle.DailyCheckRecord {
	r, ok := m.records[k]
	if !ok {
		return nil
	}
	return &r
}

func (m *Memory) listRecords(date lifecycle.Date) []lifecycle.DailyCheckRecord {
	var out []lifecycle.DailyCheckRecord
	for k, r := range m.records {
		if k.Date == date {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DriverID != out[j].DriverID {
			return out[i].DriverID < out[j].DriverID
		}
		return out[i].CheckID < out[j].CheckID
	})
	return out
}

func (m *Memory) listAudit(f lifecycle.AuditFilter) []lifecycle.AuditEntry {
	var out []lifecycle.AuditEntry
	// Newest first; ties keep reverse append order.
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if !f.Since.IsZero() && e.OccurredAt.Before(f.Since) {
			continue
		}
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, locks []string, fn func(lifecycle.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lockHistory = append(m.lockHistory, slices.Clone(locks))
	snap := m.snapshot()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(&txView{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	if m.failCommits > 0 {
		m.failCommits--
		m.restore(snap)
		return &lifecycle.ConflictError{Op: "commit", Err: errors.New("injected commit conflict")}
	}
	m.commitCounter++
	return nil
}

type memorySnapshot struct {
	drivers map[string]lifecycle.Driver
	columns map[string]lifecycle.CheckColumn
	records map[lifecycle.RecordKey]lifecycle.DailyCheckRecord
	audit   int
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		drivers: make(map[string]lifecycle.Driver, len(m.drivers)),
		columns: make(map[string]lifecycle.CheckColumn, len(m.columns)),
		records: make(map[lifecycle.RecordKey]lifecycle.DailyCheckRecord, len(m.records)),
		audit:   len(m.audit),
	}
	for k, v := range m.drivers {
		s.drivers[k] = v
	}
	for k, v := range m.columns {
		s.columns[k] = v
	}
	for k, v := range m.records {
		s.records[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.drivers = s.drivers
	m.columns = s.columns
	m.records = s.records
	// Audit is append-only, so rolling back only truncates.
	m.audit = m.audit[:s.audit]
}

// txView implements lifecycle.Tx over a locked Memory.
type txView struct {
	m *Memory
}

func (t *txView) GetDriver(_ context.Context, id string) (*lifecycle.Driver, error) {
	return t.m.getDriver(id), nil
}

func (t *txView) ListDrivers(_ context.Context, f lifecycle.DriverFilter) ([]lifecycle.Driver, error) {
	return t.m.listDrivers(f), nil
}

func (t *txView) GetCheckColumn(_ context.Context, id string) (*lifecycle.CheckColumn, error) {
	return t.m.getColumn(id), nil
}

func (t *txView) ListCheckColumns(_ context.Context, f lifecycle.ColumnFilter) ([]lifecycle.CheckColumn, error) {
	return t.m.listColumns(f), nil
}

func (t *txView) GetRecord(_ context.Context, k lifecycle.RecordKey) (*lifecycle.DailyCheckRecord, error) {
	return t.m.getRecord(k), nil
}

func (t *txView) ListRecords(_ context.Context, date lifecycle.Date) ([]lifecycle.DailyCheckRecord, error) {
	return t.m.listRecords(date), nil
}

func (t *txView) ListAudit(_ context.Context, f lifecycle.AuditFilter) ([]lifecycle.AuditEntry, error) {
	return t.m.listAudit(f), nil
}

func (t *txView) InsertDriver(_ context.Context, d lifecycle.Driver) error {
	if _, ok := t.m.drivers[d.ID]; ok {
		return &lifecycle.ConflictError{Op: "insert driver", Err: fmt.Errorf("driver %s exists", d.ID)}
	}
	t.m.drivers[d.ID] = d
	return nil
}

func (t *txView) UpdateDriver(_ context.Context, d lifecycle.Driver) error {
	if _, ok := t.m.drivers[d.ID]; !ok {
		return &lifecycle.NotFoundError{Kind: "driver", ID: d.ID}
	}
	t.m.drivers[d.ID] = d
	return nil
}

func (t *txView) InsertCheckColumn(_ context.Context, c lifecycle.CheckColumn) error {
	if _, ok := t.m.columns[c.ID]; ok {
		return &lifecycle.ConflictError{Op: "insert check", Err: fmt.Errorf("check %s exists", c.ID)}
	}
	for _, other := range t.m.columns {
		if other.SystemName == c.SystemName {
			return &lifecycle.ConflictError{Op: "insert check", Err: fmt.Errorf("system name %s exists", c.SystemName)}
		}
	}
	t.m.columns[c.ID] = c
	return nil
}

func (t *txView) UpdateCheckColumn(_ context.Context, c lifecycle.CheckColumn) error {
	if _, ok := t.m.columns[c.ID]; !ok {
		return &lifecycle.NotFoundError{Kind: "check", ID: c.ID}
	}
	t.m.columns[c.ID] = c
	return nil
}

func (t *txView) UpsertRecord(_ context.Context, r lifecycle.DailyCheckRecord) (string, error) {
	if _, ok := t.m.drivers[r.DriverID]; !ok {
		return "", fmt.Errorf("record references unknown driver %s", r.DriverID)
	}
	if _, ok := t.m.columns[r.CheckID]; !ok {
		return "", fmt.Errorf("record references unknown check %s", r.CheckID)
	}
	if prev, ok := t.m.records[r.Key()]; ok {
		r.ID = prev.ID
	}
	t.m.records[r.Key()] = r
	return r.ID, nil
}

func (t *txView) SetSortOrders(_ context.Context, scope lifecycle.Scope, ps []lifecycle.Position, at time.Time) error {
	for _, p := range ps {
		switch scope.Type {
		case lifecycle.ScopeDriverGroup:
			d, ok := t.m.drivers[p.ID]
			if !ok || string(d.Group) != scope.Key {
				return &lifecycle.NotFoundError{Kind: "scope member", ID: p.ID}
			}
			d.SortOrder, d.UpdatedAt = p.SortOrder, at
			t.m.drivers[p.ID] = d
		case lifecycle.ScopeTimeBlock:
			c, ok := t.m.columns[p.ID]
			if !ok || string(c.TimeBlock) != scope.Key {
				return &lifecycle.NotFoundError{Kind: "scope member", ID: p.ID}
			}
			c.SortOrder, c.UpdatedAt = p.SortOrder, at
			t.m.columns[p.ID] = c
		default:
			return fmt.Errorf("unknown scope type %q", scope.Type)
		}
	}
	return nil
}

func (t *txView) AppendAudit(_ context.Context, e lifecycle.AuditEntry) error {
	if t.m.auditErr != nil {
		return t.m.auditErr
	}
	e.Diff = slices.Clone(e.Diff)
	t.m.audit = append(t.m.audit, e)
	return nil
}
