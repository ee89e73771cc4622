/*
engine.go - Lifecycle engine: the operations collaborators call

PURPOSE:
  Composes the transition engine, ordering coordinator, classifier and
  audit recorder into single units of work against a Store. Every
  accepted mutation writes its entity change and exactly one audit entry
  in the same transaction.

REQUEST FLOW (mutations):
  1. Read the clock once. Every timestamp the operation writes uses it.
  2. Validate input. Validation failures return before any store access.
  3. Open a unit of work holding the record or scope lock(s).
  4. Read current state, compute next state, write, append audit.
  5. On ErrConflict, run steps 3-4 once more. A second conflict surfaces.

OPERATIONS:
  UpsertRecordStatus  Set one grid cell (transition.go)
  CreateDriver        Append a driver to its group
  UpdateDriver        Partial update, including group moves and reorders
  CreateCheckColumn   Append a temporary column to its time block
  UpdateCheckColumn   Partial update, including promotion and time block moves
  Reorder             Drag-and-drop within one scope
  ListOverview        Grid projection for one date
  ListRecentAudit     Audit entries within the last N days
  ListExceptions      Blocked records and per-block progress (projection.go)
  Import              Roster seed (import.go)

SEE ALSO:
  - store.go:  Store / Tx contract
  - audit.go:  Recorder
*/
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTemporaryTTL is the lifetime of a newly created temporary column.
	DefaultTemporaryTTL = 14 * 24 * time.Hour

	// DefaultAuditWindowDays is the window ListRecentAudit uses for sinceDays 0.
	DefaultAuditWindowDays = 7

	// MaxAuditWindowDays bounds how far back ListRecentAudit reads.
	MaxAuditWindowDays = 366

	tracerName = "github.com/warp/checkboard/lifecycle"
)

// Observer receives operation outcomes. telemetry.Metrics implements it.
type Observer interface {
	OperationCompleted(op, kind string, elapsed time.Duration)
	ConflictRetried(op string)
	AuditAppended(entity EntityType, action Action)
}

type nopObserver struct{}

func (nopObserver) OperationCompleted(string, string, time.Duration) {}
func (nopObserver) ConflictRetried(string)                           {}
func (nopObserver) AuditAppended(EntityType, Action)                 {}

// Engine runs lifecycle operations against a Store. It is safe for
// concurrent use; all coordination happens in the store's locks.
type Engine struct {
	store    Store
	clock    Clock
	logger   zerolog.Logger
	observer Observer
	tracer   trace.Tracer
	validate *validator.Validate
	recorder *Recorder
	newID    func() string

	temporaryTTL    time.Duration
	auditWindowDays int
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c Clock) Option               { return func(e *Engine) { e.clock = c } }
func WithLogger(l zerolog.Logger) Option     { return func(e *Engine) { e.logger = l } }
func WithObserver(o Observer) Option         { return func(e *Engine) { e.observer = o } }
func WithTracer(t trace.Tracer) Option       { return func(e *Engine) { e.tracer = t } }
func WithIDGenerator(f func() string) Option { return func(e *Engine) { e.newID = f } }

// WithTemporaryTTL sets the default expiry of new temporary columns.
func WithTemporaryTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.temporaryTTL = d
		}
	}
}

// WithAuditWindow sets the default window of ListRecentAudit.
func WithAuditWindow(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.auditWindowDays = days
		}
	}
}

// NewEngine creates an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		clock:           SystemClock{},
		logger:          zerolog.Nop(),
		observer:        nopObserver{},
		tracer:          otel.Tracer(tracerName),
		newID:           uuid.NewString,
		temporaryTTL:    DefaultTemporaryTTL,
		auditWindowDays: DefaultAuditWindowDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.validate = newValidator()
	e.recorder = NewRecorder(e.newID)
	return e
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

type auditFunc func(Mutation) error

// run traces op and retries attempt once when it fails with a conflict.
func (e *Engine) run(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "lifecycle."+op)
	defer span.End()

	err := attempt(ctx)
	if IsRetryable(err) {
		e.observer.ConflictRetried(op)
		e.logger.Warn().Err(err).Str("op", op).Msg("conflict, retrying once")
		span.AddEvent("retry")
		err = attempt(ctx)
	}

	kind := Kind(err)
	e.observer.OperationCompleted(op, kind, time.Since(start))
	span.SetAttributes(attribute.String("lifecycle.outcome", kind))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		level := zerolog.InfoLevel
		if kind == "audit_write" || kind == "internal" || kind == "conflict" {
			level = zerolog.ErrorLevel
		}
		e.logger.WithLevel(level).Err(err).Str("op", op).Str("kind", kind).Msg("operation rejected")
	}
	return err
}

// inTx opens a unit of work and hands fn a function that appends audit
// entries inside it. Observers hear about entries only after commit.
func (e *Engine) inTx(ctx context.Context, locks []string, fn func(tx Tx, audit auditFunc) error) error {
	var appended []AuditEntry
	err := e.store.WithTx(ctx, locks, func(tx Tx) error {
		appended = appended[:0]
		return fn(tx, func(m Mutation) error {
			entry, err := e.recorder.Record(ctx, tx, m)
			if err != nil {
				return err
			}
			appended = append(appended, entry)
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, a := range appended {
		e.observer.AuditAppended(a.EntityType, a.Action)
		e.logger.Debug().
			Str("entity_type", string(a.EntityType)).
			Str("entity_id", a.EntityID).
			Str("action", string(a.Action)).
			Msg("mutation committed")
	}
	return nil
}

func lockSet(scopes ...Scope) []string {
	var keys []string
	for _, s := range scopes {
		keys = append(keys, s.LockKey())
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

func (e *Engine) checkInput(in any, actorID string) error {
	var errs ValidationErrors
	if err := check(e.validate, in); err != nil {
		var ve ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		errs = append(errs, ve...)
	}
	if err := validActor(actorID); err != nil {
		errs = append(errs, err.(*ValidationError))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// RECORDS
// =============================================================================

// labeledRecord names a record by its column, driver and date in summaries.
type labeledRecord struct {
	DailyCheckRecord
	driver string
	column string
}

func (r labeledRecord) AuditSnapshot() Snapshot {
	s := r.DailyCheckRecord.AuditSnapshot()
	s.Label = fmt.Sprintf("%s / %s on %s", r.column, r.driver, r.Date)
	return s
}

// UpsertRecordStatus sets the status of one (date, driver, check) cell,
// creating the record on first touch.
func (e *Engine) UpsertRecordStatus(ctx context.Context, in UpsertRecordInput, actorID string) (DailyCheckRecord, error) {
	now := e.clock.Now()
	if err := e.checkInput(in, actorID); err != nil {
		return DailyCheckRecord{}, err
	}
	key := RecordKey{Date: Date(in.Date), DriverID: in.DriverID, CheckID: in.CheckID}

	var out DailyCheckRecord
	err := e.run(ctx, "upsert_record", func(ctx context.Context) error {
		return e.inTx(ctx, []string{RecordLockKey(key)}, func(tx Tx, audit auditFunc) error {
			driver, err := tx.GetDriver(ctx, key.DriverID)
			if err != nil {
				return err
			}
			if driver == nil {
				return notFound("driver", key.DriverID)
			}
			col, err := tx.GetCheckColumn(ctx, key.CheckID)
			if err != nil {
				return err
			}
			if col == nil {
				return notFound("check", key.CheckID)
			}

			existing, err := tx.GetRecord(ctx, key)
			if err != nil {
				return err
			}
			res, err := Transition(TransitionInput{
				Existing:      existing,
				Status:        in.Status,
				BlockedReason: in.BlockedReason,
				Note:          in.Note,
				Now:           now,
			})
			if err != nil {
				return err
			}

			next := DailyCheckRecord{ID: e.newID(), Date: key.Date, DriverID: key.DriverID, CheckID: key.CheckID}
			if existing != nil {
				next = *existing
			}
			res.Apply(&next)
			next.UpdatedAt = now
			next.UpdatedByUserID = actorID

			id, err := tx.UpsertRecord(ctx, next)
			if err != nil {
				return err
			}
			next.ID = id

			var before Snapshotter
			var beforeState any
			if existing != nil {
				before = labeledRecord{*existing, driver.Name, col.DisplayName}
				beforeState = *existing
			}
			class := Classify(before, labeledRecord{next, driver.Name, col.DisplayName})
			class.Summary = fmt.Sprintf("%s: %s", class.Summary, next.Status)

			if err := audit(Mutation{
				ActorID:    actorID,
				EntityType: EntityRecord,
				EntityID:   next.ID,
				Class:      class,
				Before:     beforeState,
				After:      next,
				At:         now,
			}); err != nil {
				return err
			}
			out = next
			return nil
		})
	})
	return out, err
}

// =============================================================================
// DRIVERS
// =============================================================================

// CreateDriver adds an active driver at the end of its group.
func (e *Engine) CreateDriver(ctx context.Context, in CreateDriverInput, actorID string) (Driver, error) {
	now := e.clock.Now()
	if err := e.checkInput(in, actorID); err != nil {
		return Driver{}, err
	}
	scope := DriverScope(in.Group)

	var out Driver
	err := e.run(ctx, "create_driver", func(ctx context.Context) error {
		return e.inTx(ctx, lockSet(scope), func(tx Tx, audit auditFunc) error {
			members, err := scopePositions(ctx, tx, scope)
			if err != nil {
				return err
			}
			d := Driver{
				ID:          e.newID(),
				Name:        strings.TrimSpace(in.Name),
				TruckNumber: optional(in.TruckNumber),
				Group:       in.Group,
				SortOrder:   NextSortOrder(members),
				IsActive:    true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.InsertDriver(ctx, d); err != nil {
				return err
			}
			if err := audit(Mutation{
				ActorID:    actorID,
				EntityType: EntityDriver,
				EntityID:   d.ID,
				Class:      Classify(nil, d),
				After:      d,
				At:         now,
			}); err != nil {
				return err
			}
			out = d
			return nil
		})
	})
	return out, err
}

// UpdateDriver applies any subset of name, truckNumber, group, isActive
// and sortOrder. A group move appends the driver to the new group.
// Reactivation appends it to the end of its group.
func (e *Engine) UpdateDriver(ctx context.Context, id string, patch DriverPatch, actorID string) (Driver, error) {
	now := e.clock.Now()
	if err := e.checkInput(patch, actorID); err != nil {
		return Driver{}, err
	}
	if patch.empty() {
		return Driver{}, invalid("patch", "at least one field is required")
	}

	var out Driver
	err := e.run(ctx, "update_driver", func(ctx context.Context) error {
		// The lock set depends on the current group, which is read before
		// the unit of work opens and re-checked inside it.
		peek, err := e.store.GetDriver(ctx, id)
		if err != nil {
			return err
		}
		if peek == nil {
			return notFound("driver", id)
		}
		from, to := peek.Scope(), peek.Scope()
		if patch.Group != nil {
			to = DriverScope(*patch.Group)
		}

		return e.inTx(ctx, lockSet(from, to), func(tx Tx, audit auditFunc) error {
			cur, err := tx.GetDriver(ctx, id)
			if err != nil {
				return err
			}
			if cur == nil {
				return notFound("driver", id)
			}
			if cur.Group != peek.Group {
				return &ConflictError{Op: "update_driver", Err: errors.New("driver changed group concurrently")}
			}

			next := *cur
			if patch.Name != nil {
				next.Name = strings.TrimSpace(*patch.Name)
			}
			if patch.TruckNumber != nil {
				next.TruckNumber = optional(patch.TruckNumber)
			}
			if patch.Group != nil {
				next.Group = *patch.Group
			}
			if patch.IsActive != nil {
				next.IsActive = *patch.IsActive
			}
			next.UpdatedAt = now

			members, err := scopePositions(ctx, tx, next.Scope())
			if err != nil {
				return err
			}
			toEnd := next.Group != cur.Group || (!cur.IsActive && next.IsActive)
			placed, err := Place(without(members, id), Position{ID: id, SortOrder: cur.SortOrder}, toEnd, patch.SortOrder)
			if err != nil {
				return err
			}
			next.SortOrder = placed.Self.SortOrder

			if err := tx.UpdateDriver(ctx, next); err != nil {
				return err
			}
			if len(placed.Others) > 0 {
				if err := tx.SetSortOrders(ctx, next.Scope(), placed.Others, now); err != nil {
					return err
				}
			}
			if err := audit(Mutation{
				ActorID:    actorID,
				EntityType: EntityDriver,
				EntityID:   id,
				Class:      Classify(*cur, placedSnapshot(next, placed)),
				Before:     *cur,
				After:      next,
				At:         now,
			}); err != nil {
				return err
			}
			out = next
			return nil
		})
	})
	return out, err
}

// =============================================================================
// CHECK COLUMNS
// =============================================================================

// CreateCheckColumn adds a temporary column at the end of its time block.
// It expires after the engine's temporary TTL unless promoted.
func (e *Engine) CreateCheckColumn(ctx context.Context, in CreateCheckColumnInput, actorID string) (CheckColumn, error) {
	now := e.clock.Now()
	if err := e.checkInput(in, actorID); err != nil {
		return CheckColumn{}, err
	}
	scope := ColumnScope(in.TimeBlock)

	var out CheckColumn
	err := e.run(ctx, "create_check", func(ctx context.Context) error {
		return e.inTx(ctx, lockSet(scope), func(tx Tx, audit auditFunc) error {
			members, err := scopePositions(ctx, tx, scope)
			if err != nil {
				return err
			}
			id := e.newID()
			c := CheckColumn{
				ID:              id,
				SystemName:      systemName(in.TimeBlock, now, id),
				DisplayName:     strings.TrimSpace(in.DisplayName),
				TimeBlock:       in.TimeBlock,
				SortOrder:       NextSortOrder(members),
				InstructionText: in.InstructionText,
				ColumnType:      ColumnTemporary,
				IsActive:        true,
				ExpiresAt:       timePtr(now.Add(e.temporaryTTL)),
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.InsertCheckColumn(ctx, c); err != nil {
				return err
			}
			if err := audit(Mutation{
				ActorID:    actorID,
				EntityType: EntityCheck,
				EntityID:   c.ID,
				Class:      Classify(nil, c),
				After:      c,
				At:         now,
			}); err != nil {
				return err
			}
			out = c
			return nil
		})
	})
	return out, err
}

// UpdateCheckColumn applies any subset of displayName, timeBlock,
// instructionText, isActive, sortOrder, columnType and expiresAt.
// Promotion to standard clears expiresAt. Demotion to temporary without
// an explicit expiresAt sets it to now plus the temporary TTL.
func (e *Engine) UpdateCheckColumn(ctx context.Context, id string, patch ColumnPatch, actorID string) (CheckColumn, error) {
	now := e.clock.Now()
	if err := e.checkInput(patch, actorID); err != nil {
		return CheckColumn{}, err
	}
	if patch.empty() {
		return CheckColumn{}, invalid("patch", "at least one field is required")
	}
	if patch.ExpiresAt != nil && patch.ColumnType != nil && *patch.ColumnType == ColumnStandard {
		return CheckColumn{}, invalid("expiresAt", "standard columns do not expire")
	}

	var out CheckColumn
	err := e.run(ctx, "update_check", func(ctx context.Context) error {
		peek, err := e.store.GetCheckColumn(ctx, id)
		if err != nil {
			return err
		}
		if peek == nil {
			return notFound("check", id)
		}
		from, to := peek.Scope(), peek.Scope()
		if patch.TimeBlock != nil {
			to = ColumnScope(*patch.TimeBlock)
		}

		return e.inTx(ctx, lockSet(from, to), func(tx Tx, audit auditFunc) error {
			cur, err := tx.GetCheckColumn(ctx, id)
			if err != nil {
				return err
			}
			if cur == nil {
				return notFound("check", id)
			}
			if cur.TimeBlock != peek.TimeBlock {
				return &ConflictError{Op: "update_check", Err: errors.New("column changed time block concurrently")}
			}

			next := *cur
			if patch.DisplayName != nil {
				next.DisplayName = strings.TrimSpace(*patch.DisplayName)
			}
			if patch.TimeBlock != nil {
				next.TimeBlock = *patch.TimeBlock
			}
			if patch.InstructionText != nil {
				next.InstructionText = *patch.InstructionText
			}
			if patch.IsActive != nil {
				next.IsActive = *patch.IsActive
			}
			if patch.ColumnType != nil {
				switch *patch.ColumnType {
				case ColumnStandard:
					next.ExpiresAt = nil
				case ColumnTemporary:
					if cur.ColumnType != ColumnTemporary {
						next.ExpiresAt = timePtr(now.Add(e.temporaryTTL))
					}
				}
				next.ColumnType = *patch.ColumnType
			}
			if patch.ExpiresAt != nil {
				if next.ColumnType != ColumnTemporary {
					return invalid("expiresAt", "standard columns do not expire")
				}
				next.ExpiresAt = timePtr(patch.ExpiresAt.UTC())
			}
			next.UpdatedAt = now

			members, err := scopePositions(ctx, tx, next.Scope())
			if err != nil {
				return err
			}
			toEnd := next.TimeBlock != cur.TimeBlock || (!cur.IsActive && next.IsActive)
			placed, err := Place(without(members, id), Position{ID: id, SortOrder: cur.SortOrder}, toEnd, patch.SortOrder)
			if err != nil {
				return err
			}
			next.SortOrder = placed.Self.SortOrder

			if err := tx.UpdateCheckColumn(ctx, next); err != nil {
				return err
			}
			if len(placed.Others) > 0 {
				if err := tx.SetSortOrders(ctx, next.Scope(), placed.Others, now); err != nil {
					return err
				}
			}
			if err := audit(Mutation{
				ActorID:    actorID,
				EntityType: EntityCheck,
				EntityID:   id,
				Class:      Classify(*cur, placedSnapshot(next, placed)),
				Before:     *cur,
				After:      next,
				At:         now,
			}); err != nil {
				return err
			}
			out = next
			return nil
		})
	})
	return out, err
}

// systemName builds the immutable internal key of a new column, e.g.
// "morning_1741600800000_3f2a9c1d".
func systemName(b TimeBlock, now time.Time, id string) string {
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return strings.ToLower(string(b)) + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}

// =============================================================================
// REORDER
// =============================================================================

// Reorder moves the source item to immediately before the target within one
// scope and renumbers the scope 1..N. It returns the scope in its new order.
// A reorder that leaves the sequence unchanged writes nothing.
func (e *Engine) Reorder(ctx context.Context, in ReorderInput, actorID string) ([]Position, error) {
	now := e.clock.Now()
	if err := e.checkInput(in, actorID); err != nil {
		return nil, err
	}
	scope, err := ParseScope(in.ScopeType, in.ScopeKey)
	if err != nil {
		return nil, err
	}

	var out []Position
	err = e.run(ctx, "reorder", func(ctx context.Context) error {
		return e.inTx(ctx, lockSet(scope), func(tx Tx, audit auditFunc) error {
			members, err := scopePositions(ctx, tx, scope)
			if err != nil {
				return err
			}
			moved, err := Reorder(members, in.SourceID, in.TargetID)
			if err != nil {
				return err
			}
			if SameSequence(members, moved) {
				out = members
				return nil
			}

			before, err := loadMember(ctx, tx, scope, in.SourceID)
			if err != nil {
				return err
			}
			if err := tx.SetSortOrders(ctx, scope, Changed(members, moved), now); err != nil {
				return err
			}
			after, err := loadMember(ctx, tx, scope, in.SourceID)
			if err != nil {
				return err
			}

			if err := audit(Mutation{
				ActorID:    actorID,
				EntityType: before.AuditSnapshot().Entity,
				EntityID:   in.SourceID,
				Class:      Classify(before, Resequenced{Snapshotter: after}),
				Before:     before,
				After:      after,
				At:         now,
			}); err != nil {
				return err
			}
			out = moved
			return nil
		})
	})
	return out, err
}

// placedSnapshot marks next as resequenced when Place moved it.
func placedSnapshot(next Snapshotter, p Placement) Snapshotter {
	if p.Resequenced {
		return Resequenced{Snapshotter: next}
	}
	return next
}

// loadMember returns the driver or column with id as a snapshot source.
func loadMember(ctx context.Context, r Reader, scope Scope, id string) (Snapshotter, error) {
	switch scope.Type {
	case ScopeDriverGroup:
		d, err := r.GetDriver(ctx, id)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, notFound("driver", id)
		}
		return *d, nil
	default:
		c, err := r.GetCheckColumn(ctx, id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, notFound("check", id)
		}
		return *c, nil
	}
}

// =============================================================================
// READS
// =============================================================================

// GetDriver returns one driver.
func (e *Engine) GetDriver(ctx context.Context, id string) (Driver, error) {
	d, err := e.store.GetDriver(ctx, id)
	if err != nil {
		return Driver{}, err
	}
	if d == nil {
		return Driver{}, notFound("driver", id)
	}
	return *d, nil
}

// GetCheckColumn returns one column.
func (e *Engine) GetCheckColumn(ctx context.Context, id string) (CheckColumn, error) {
	c, err := e.store.GetCheckColumn(ctx, id)
	if err != nil {
		return CheckColumn{}, err
	}
	if c == nil {
		return CheckColumn{}, notFound("check", id)
	}
	return *c, nil
}

// ListDrivers returns every driver, inactive included, in display order.
func (e *Engine) ListDrivers(ctx context.Context) ([]Driver, error) {
	drivers, err := e.store.ListDrivers(ctx, DriverFilter{})
	if err != nil {
		return nil, err
	}
	SortDrivers(drivers)
	return drivers, nil
}

// ListCheckColumns returns every column, inactive and expired included,
// in display order.
func (e *Engine) ListCheckColumns(ctx context.Context) ([]CheckColumn, error) {
	cols, err := e.store.ListCheckColumns(ctx, ColumnFilter{})
	if err != nil {
		return nil, err
	}
	SortColumns(cols)
	return cols, nil
}

// ListOverview builds the grid for date: active drivers, eligible columns,
// and every record stored for that date.
func (e *Engine) ListOverview(ctx context.Context, date string) (Overview, error) {
	now := e.clock.Now()
	d, err := ParseDate(date)
	if err != nil {
		return Overview{}, invalid("date", "must be a date in YYYY-MM-DD form")
	}

	var out Overview
	err = e.run(ctx, "list_overview", func(ctx context.Context) error {
		drivers, cols, err := e.grid(ctx, now)
		if err != nil {
			return err
		}
		records, err := e.store.ListRecords(ctx, d)
		if err != nil {
			return err
		}
		out = Overview{Date: d, ActiveDrivers: drivers, EligibleColumns: cols, Records: records}
		return nil
	})
	return out, err
}

// grid returns the active drivers and eligible columns at now, sorted.
func (e *Engine) grid(ctx context.Context, now time.Time) ([]Driver, []CheckColumn, error) {
	drivers, err := e.store.ListDrivers(ctx, DriverFilter{ActiveOnly: true})
	if err != nil {
		return nil, nil, err
	}
	SortDrivers(drivers)

	all, err := e.store.ListCheckColumns(ctx, ColumnFilter{ActiveOnly: true})
	if err != nil {
		return nil, nil, err
	}
	cols := make([]CheckColumn, 0, len(all))
	for _, c := range all {
		if c.Eligible(now) {
			cols = append(cols, c)
		}
	}
	SortColumns(cols)
	return drivers, cols, nil
}

// ListRecentAudit returns audit entries from the last sinceDays days, most
// recent first. sinceDays 0 uses the engine's default window.
func (e *Engine) ListRecentAudit(ctx context.Context, sinceDays int) ([]AuditEntry, error) {
	now := e.clock.Now()
	if sinceDays < 0 || sinceDays > MaxAuditWindowDays {
		return nil, invalid("days", fmt.Sprintf("must be between 0 and %d", MaxAuditWindowDays))
	}
	if sinceDays == 0 {
		sinceDays = e.auditWindowDays
	}

	var out []AuditEntry
	err := e.run(ctx, "list_audit", func(ctx context.Context) error {
		entries, err := e.store.ListAudit(ctx, AuditFilter{Since: now.Add(-time.Duration(sinceDays) * 24 * time.Hour)})
		if err != nil {
			return err
		}
		out = entries
		return nil
	})
	return out, err
}

// AuditWindowDays is the window ListRecentAudit uses when asked for 0 days.
func (e *Engine) AuditWindowDays() int { return e.auditWindowDays }

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
