package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warp/checkboard/lifecycle"
)

// timeLayout is fixed-width so TEXT comparison orders by time.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the read side, shared by Store and txStore.
type queries struct {
	q querier
	d Dialect
}

func (s queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.d.rebind(query), args...)
}

func (s queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.d.rebind(query), args...)
}

// =============================================================================
// DRIVERS
// =============================================================================

const driverColumns = `id, name, truck_number, driver_group, sort_order, is_active, created_at, updated_at`

func (s queries) GetDriver(ctx context.Context, id string) (*lifecycle.Driver, error) {
	ds, err := s.selectDrivers(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ?`, id)
	if err != nil || len(ds) == 0 {
		return nil, err
	}
	return &ds[0], nil
}

func (s queries) ListDrivers(ctx context.Context, f lifecycle.DriverFilter) ([]lifecycle.Driver, error) {
	var (
		where []string
		args  []any
	)
	if f.Group != nil {
		where = append(where, "driver_group = ?")
		args = append(args, string(*f.Group))
	}
	if f.ActiveOnly {
		where = append(where, "is_active = ?")
		args = append(args, true)
	}
	ds, err := s.selectDrivers(ctx, `SELECT `+driverColumns+` FROM drivers`+whereClause(where)+` ORDER BY sort_order, id`, args...)
	if err != nil {
		return nil, err
	}
	lifecycle.SortDrivers(ds)
	return ds, nil
}

func (s queries) selectDrivers(ctx context.Context, query string, args ...any) ([]lifecycle.Driver, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query drivers: %w", err)
	}
	defer rows.Close()

	var out []lifecycle.Driver
	for rows.Next() {
		var (
			d                    lifecycle.Driver
			truck                sql.NullString
			group                string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&d.ID, &d.Name, &truck, &group, &d.SortOrder, &d.IsActive, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		d.TruckNumber = fromNull(truck)
		d.Group = lifecycle.DriverGroup(group)
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// =============================================================================
// CHECK COLUMNS
// =============================================================================

const columnColumns = `id, system_name, display_name, time_block, sort_order, instruction_text,
	column_type, is_active, expires_at, created_at, updated_at`

func (s queries) GetCheckColumn(ctx context.Context, id string) (*lifecycle.CheckColumn, error) {
	cs, err := s.selectColumns(ctx, `SELECT `+columnColumns+` FROM check_columns WHERE id = ?`, id)
	if err != nil || len(cs) == 0 {
		return nil, err
	}
	return &cs[0], nil
}

func (s queries) ListCheckColumns(ctx context.Context, f lifecycle.ColumnFilter) ([]lifecycle.CheckColumn, error) {
	var (
		where []string
		args  []any
	)
	if f.TimeBlock != nil {
		where = append(where, "time_block = ?")
		args = append(args, string(*f.TimeBlock))
	}
	if f.ActiveOnly {
		where = append(where, "is_active = ?")
		args = append(args, true)
	}
	cs, err := s.selectColumns(ctx, `SELECT `+columnColumns+` FROM check_columns`+whereClause(where)+` ORDER BY sort_order, id`, args...)
	if err != nil {
		return nil, err
	}
	lifecycle.SortColumns(cs)
	return cs, nil
}

func (s queries) selectColumns(ctx context.Context, query string, args ...any) ([]lifecycle.CheckColumn, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query check columns: %w", err)
	}
	defer rows.Close()

	var out []lifecycle.CheckColumn
	for rows.Next() {
		var (
			c                    lifecycle.CheckColumn
			block, colType       string
			expiresAt            sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&c.ID, &c.SystemName, &c.DisplayName, &block, &c.SortOrder, &c.InstructionText,
			&colType, &c.IsActive, &expiresAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan check column: %w", err)
		}
		c.TimeBlock = lifecycle.TimeBlock(block)
		c.ColumnType = lifecycle.ColumnType(colType)
		if c.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// DAILY CHECK RECORDS
// =============================================================================

const recordColumns = `id, record_date, driver_id, check_id, status, started_at, completed_at,
	updated_at, updated_by_user_id, blocked_reason, note`

func (s queries) GetRecord(ctx context.Context, k lifecycle.RecordKey) (*lifecycle.DailyCheckRecord, error) {
	rs, err := s.selectRecords(ctx,
		`SELECT `+recordColumns+` FROM daily_check_records WHERE record_date = ? AND driver_id = ? AND check_id = ?`,
		string(k.Date), k.DriverID, k.CheckID)
	if err != nil || len(rs) == 0 {
		return nil, err
	}
	return &rs[0], nil
}

func (s queries) ListRecords(ctx context.Context, date lifecycle.Date) ([]lifecycle.DailyCheckRecord, error) {
	return s.selectRecords(ctx,
		`SELECT `+recordColumns+` FROM daily_check_records WHERE record_date = ? ORDER BY driver_id, check_id`,
		string(date))
}

func (s queries) selectRecords(ctx context.Context, query string, args ...any) ([]lifecycle.DailyCheckRecord, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []lifecycle.DailyCheckRecord
	for rows.Next() {
		var (
			r                      lifecycle.DailyCheckRecord
			date, status           string
			startedAt, completedAt sql.NullString
			updatedAt              string
			reason, note           sql.NullString
		)
		if err := rows.Scan(&r.ID, &date, &r.DriverID, &r.CheckID, &status, &startedAt, &completedAt,
			&updatedAt, &r.UpdatedByUserID, &reason, &note); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Date = lifecycle.Date(date)
		r.Status = lifecycle.RecordStatus(status)
		if r.StartedAt, err = parseNullTime(startedAt); err != nil {
			return nil, err
		}
		if r.CompletedAt, err = parseNullTime(completedAt); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		r.BlockedReason = fromNull(reason)
		r.Note = fromNull(note)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s queries) ListAudit(ctx context.Context, f lifecycle.AuditFilter) ([]lifecycle.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if !f.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, formatTime(f.Since))
	}
	if f.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(f.EntityType))
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	query := `SELECT id, occurred_at, user_id, entity_type, entity_id, action, summary, ` + s.d.jsonText("diff") +
		` FROM audit_log` + whereClause(where) + ` ORDER BY occurred_at DESC, seq DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []lifecycle.AuditEntry
	for rows.Next() {
		var (
			e                       lifecycle.AuditEntry
			occurredAt, entity, act string
			diff                    string
		)
		if err := rows.Scan(&e.ID, &occurredAt, &e.UserID, &entity, &e.EntityID, &act, &e.Summary, &diff); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		e.EntityType = lifecycle.EntityType(entity)
		e.Action = lifecycle.Action(act)
		e.Diff = []byte(diff)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// WRITES (txStore only)
// =============================================================================

func (t *txStore) InsertDriver(ctx context.Context, d lifecycle.Driver) error {
	_, err := t.exec(ctx, `
		INSERT INTO drivers (`+driverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, toNull(d.TruckNumber), string(d.Group), d.SortOrder, d.IsActive,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert driver: %w", classify("insert driver", err))
	}
	return nil
}

func (t *txStore) UpdateDriver(ctx context.Context, d lifecycle.Driver) error {
	res, err := t.exec(ctx, `
		UPDATE drivers
		SET name = ?, truck_number = ?, driver_group = ?, sort_order = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		d.Name, toNull(d.TruckNumber), string(d.Group), d.SortOrder, d.IsActive, formatTime(d.UpdatedAt), d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update driver: %w", classify("update driver", err))
	}
	return requireRow(res, "driver", d.ID)
}

func (t *txStore) InsertCheckColumn(ctx context.Context, c lifecycle.CheckColumn) error {
	_, err := t.exec(ctx, `
		INSERT INTO check_columns (`+columnColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SystemName, c.DisplayName, string(c.TimeBlock), c.SortOrder, c.InstructionText,
		string(c.ColumnType), c.IsActive, formatNullTime(c.ExpiresAt), formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert check column: %w", classify("insert check", err))
	}
	return nil
}

// UpdateCheckColumn never touches system_name, which is immutable.
func (t *txStore) UpdateCheckColumn(ctx context.Context, c lifecycle.CheckColumn) error {
	res, err := t.exec(ctx, `
		UPDATE check_columns
		SET display_name = ?, time_block = ?, sort_order = ?, instruction_text = ?,
		    column_type = ?, is_active = ?, expires_at = ?, updated_at = ?
		WHERE id = ?`,
		c.DisplayName, string(c.TimeBlock), c.SortOrder, c.InstructionText,
		string(c.ColumnType), c.IsActive, formatNullTime(c.ExpiresAt), formatTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update check column: %w", classify("update check", err))
	}
	return requireRow(res, "check", c.ID)
}

// UpsertRecord writes through the (record_date, driver_id, check_id)
// unique key. On conflict the existing row keeps its id.
func (t *txStore) UpsertRecord(ctx context.Context, r lifecycle.DailyCheckRecord) (string, error) {
	var id string
	err := t.q.QueryRowContext(ctx, t.d.rebind(`
		INSERT INTO daily_check_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (record_date, driver_id, check_id) DO UPDATE SET
			status             = excluded.status,
			started_at         = excluded.started_at,
			completed_at       = excluded.completed_at,
			updated_at         = excluded.updated_at,
			updated_by_user_id = excluded.updated_by_user_id,
			blocked_reason     = excluded.blocked_reason,
			note               = excluded.note
		RETURNING id`),
		r.ID, string(r.Date), r.DriverID, r.CheckID, string(r.Status),
		formatNullTime(r.StartedAt), formatNullTime(r.CompletedAt), formatTime(r.UpdatedAt),
		r.UpdatedByUserID, toNull(r.BlockedReason), toNull(r.Note),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert record: %w", classify("upsert record", err))
	}
	return id, nil
}

func (t *txStore) SetSortOrders(ctx context.Context, scope lifecycle.Scope, ps []lifecycle.Position, at time.Time) error {
	var query string
	switch scope.Type {
	case lifecycle.ScopeDriverGroup:
		query = `UPDATE drivers SET sort_order = ?, updated_at = ? WHERE id = ? AND driver_group = ?`
	case lifecycle.ScopeTimeBlock:
		query = `UPDATE check_columns SET sort_order = ?, updated_at = ? WHERE id = ? AND time_block = ?`
	default:
		return fmt.Errorf("unknown scope type %q", scope.Type)
	}
	for _, p := range ps {
		res, err := t.exec(ctx, query, p.SortOrder, formatTime(at), p.ID, scope.Key)
		if err != nil {
			return fmt.Errorf("failed to set sort order: %w", classify("set sort order", err))
		}
		if err := requireRow(res, "scope member", p.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *txStore) AppendAudit(ctx context.Context, e lifecycle.AuditEntry) error {
	_, err := t.exec(ctx, `
		INSERT INTO audit_log (id, occurred_at, user_id, entity_type, entity_id, action, summary, diff)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.OccurredAt), e.UserID, string(e.EntityType), e.EntityID, string(e.Action), e.Summary, string(e.Diff),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &lifecycle.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
