/*
types.go - Core entity types for the checklist record lifecycle

PURPOSE:
  Defines the entities the lifecycle engine owns and the fixed enumerations
  that scope them. Every other file in this package works in terms of these
  types; the store packages persist them verbatim.

ENTITIES:
  Driver:           A tracked driver, ordered within a driver group
  CheckColumn:      A checklist item, ordered within a time block
  DailyCheckRecord: One cell of the grid, keyed by (date, driver, check)
  AuditEntry:       Immutable record of one accepted mutation

ENUMERATIONS:
  DriverGroup:  New Drivers < Local Drivers < Experienced Drivers
  TimeBlock:    Morning < Midday < Afternoon
  RecordStatus: not_started, in_progress, done, blocked
  ColumnType:   standard (permanent), temporary (auto-expiring)

  The slice order of AllDriverGroups / AllTimeBlocks is the display order.
  Listings sort by that order first, then by SortOrder.

SEE ALSO:
  - transition.go: RecordStatus state machine
  - ordering.go:   SortOrder maintenance within a Scope
  - classify.go:   Snapshot-based audit classification
*/
package lifecycle

import (
	"fmt"
	"time"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// DriverGroup is the cohort a driver belongs to. It scopes driver ordering.
type DriverGroup string

const (
	GroupNew         DriverGroup = "New Drivers"
	GroupLocal       DriverGroup = "Local Drivers"
	GroupExperienced DriverGroup = "Experienced Drivers"
)

// AllDriverGroups lists groups in display order.
var AllDriverGroups = []DriverGroup{GroupNew, GroupLocal, GroupExperienced}

// Valid reports whether g is one of the fixed groups.
func (g DriverGroup) Valid() bool { return rank(AllDriverGroups, g) >= 0 }

// Rank returns the display position of g, or -1 if unknown.
func (g DriverGroup) Rank() int { return rank(AllDriverGroups, g) }

// TimeBlock is the day segment a check column belongs to. It scopes column ordering.
type TimeBlock string

const (
	BlockMorning   TimeBlock = "Morning"
	BlockMidday    TimeBlock = "Midday"
	BlockAfternoon TimeBlock = "Afternoon"
)

// AllTimeBlocks lists time blocks in display order.
var AllTimeBlocks = []TimeBlock{BlockMorning, BlockMidday, BlockAfternoon}

// Valid reports whether b is one of the fixed time blocks.
func (b TimeBlock) Valid() bool { return rank(AllTimeBlocks, b) >= 0 }

// Rank returns the display position of b, or -1 if unknown.
func (b TimeBlock) Rank() int { return rank(AllTimeBlocks, b) }

// RecordStatus is the state of one grid cell.
type RecordStatus string

const (
	StatusNotStarted RecordStatus = "not_started"
	StatusInProgress RecordStatus = "in_progress"
	StatusDone       RecordStatus = "done"
	StatusBlocked    RecordStatus = "blocked"
)

// AllStatuses lists the record statuses in cycle order.
var AllStatuses = []RecordStatus{StatusNotStarted, StatusInProgress, StatusDone, StatusBlocked}

// Valid reports whether s is a known status.
func (s RecordStatus) Valid() bool { return rank(AllStatuses, s) >= 0 }

// ColumnType distinguishes permanent columns from auto-expiring ones.
type ColumnType string

const (
	ColumnStandard  ColumnType = "standard"
	ColumnTemporary ColumnType = "temporary"
)

// Valid reports whether t is a known column type.
func (t ColumnType) Valid() bool { return t == ColumnStandard || t == ColumnTemporary }

func rank[T comparable](all []T, v T) int {
	for i, x := range all {
		if x == v {
			return i
		}
	}
	return -1
}

// =============================================================================
// DRIVER
// =============================================================================

// Driver is a tracked driver. Drivers are never physically deleted.
type Driver struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	TruckNumber *string     `json:"truckNumber"`
	Group       DriverGroup `json:"group"`
	SortOrder   int         `json:"sortOrder"`
	IsActive    bool        `json:"isActive"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Scope returns the ordering scope the driver currently lives in.
func (d Driver) Scope() Scope { return DriverScope(d.Group) }

// =============================================================================
// CHECK COLUMN
// =============================================================================

// CheckColumn is one checklist item shown as a grid column.
type CheckColumn struct {
	ID              string     `json:"id"`
	SystemName      string     `json:"systemName"`
	DisplayName     string     `json:"displayName"`
	TimeBlock       TimeBlock  `json:"timeBlock"`
	SortOrder       int        `json:"sortOrder"`
	InstructionText string     `json:"instructionText"`
	ColumnType      ColumnType `json:"columnType"`
	IsActive        bool       `json:"isActive"`
	ExpiresAt       *time.Time `json:"expiresAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Scope returns the ordering scope the column currently lives in.
func (c CheckColumn) Scope() Scope { return ColumnScope(c.TimeBlock) }

// Eligible reports whether the column may appear in the live grid at now:
// it must be active, and either standard or a temporary column not yet expired.
func (c CheckColumn) Eligible(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.ColumnType == ColumnStandard || c.ExpiresAt == nil {
		return true
	}
	return c.ExpiresAt.After(now)
}

// =============================================================================
// DAILY CHECK RECORD
// =============================================================================

// RecordKey is the (date, driver, check) triple. At most one record exists per key.
type RecordKey struct {
	Date     Date   `json:"date"`
	DriverID string `json:"driverId"`
	CheckID  string `json:"checkId"`
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Date, k.DriverID, k.CheckID)
}

// DailyCheckRecord is the status of one driver against one check on one day.
// StartedAt and CompletedAt are only ever set by the transition engine.
type DailyCheckRecord struct {
	ID              string       `json:"id"`
	Date            Date         `json:"date"`
	DriverID        string       `json:"driverId"`
	CheckID         string       `json:"checkId"`
	Status          RecordStatus `json:"status"`
	StartedAt       *time.Time   `json:"startedAt"`
	CompletedAt     *time.Time   `json:"completedAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
	UpdatedByUserID string       `json:"updatedByUserId"`
	BlockedReason   *string      `json:"blockedReason"`
	Note            *string      `json:"note"`
}

// Key returns the record's uniqueness triple.
func (r DailyCheckRecord) Key() RecordKey {
	return RecordKey{Date: r.Date, DriverID: r.DriverID, CheckID: r.CheckID}
}

// =============================================================================
// AUDIT
// =============================================================================

// EntityType names the kind of entity an audit entry describes.
type EntityType string

const (
	EntityDriver EntityType = "driver"
	EntityCheck  EntityType = "check"
	EntityRecord EntityType = "record"
)

// Action is the single classified label attached to an audit entry.
type Action string

const (
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDeactivate    Action = "deactivate"
	ActionReactivate    Action = "reactivate"
	ActionRename        Action = "rename"
	ActionReorder       Action = "reorder"
	ActionMoveTimeBlock Action = "move_timeblock"
)

// Diff stores full before/after snapshots. Before is nil for creates.
type Diff struct {
	Before any `json:"before,omitempty"`
	After  any `json:"after"`
}

// AuditEntry is immutable once appended.
type AuditEntry struct {
	ID         string     `json:"id"`
	OccurredAt time.Time  `json:"occurredAt"`
	UserID     string     `json:"userId"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Action     Action     `json:"action"`
	Summary    string     `json:"summary"`
	// Diff holds the JSON-encoded Diff as persisted.
	Diff []byte `json:"diff"`
}

// =============================================================================
// READ PROJECTIONS
// =============================================================================

// Overview is the read-only grid projection for one date.
type Overview struct {
	Date            Date               `json:"date"`
	ActiveDrivers   []Driver           `json:"activeDrivers"`
	EligibleColumns []CheckColumn      `json:"eligibleColumns"`
	Records         []DailyCheckRecord `json:"recordsForDate"`
}
