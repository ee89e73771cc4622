/*
classify.go - Change classifier for audit entries

PURPOSE:
  Derives exactly one Action and a one-line summary from the before/after
  state of an entity. Several fields may change in one request, so the
  rules form a priority cascade: the first matching rule wins.

CASCADE (order is part of the contract):
  1. no before state                      -> create
  2. isActive false -> true               -> reactivate
  3. isActive true -> false               -> deactivate
  4. place in scope changed, same scope   -> reorder
  5. timeBlock changed (columns)          -> move_timeblock
  6. label (name/displayName) changed     -> rename
  7. otherwise                            -> update

  Rule 4 requires the scope to be unchanged because a cross-scope move
  always changes sortOrder too, and must still classify by rule 5.
  A scope with gaps can hand a moved item back its old sortOrder when it
  is re-indexed; callers that moved an item wrap it in Resequenced so
  rule 4 still applies.

ADDING RULES:
  Append to classificationRules in the desired priority position. Each rule
  sees both snapshots and is tested independently in classify_test.go.
*/
package lifecycle

import "fmt"

// Snapshot is the subset of entity state the classifier inspects.
type Snapshot struct {
	Entity    EntityType
	Label     string
	IsActive  bool
	SortOrder int
	Scope     Scope

	// Resequenced is set when the entity changed place in its scope's
	// sequence, whether or not its sortOrder number changed.
	Resequenced bool
}

// Snapshotter is implemented by every audited entity.
type Snapshotter interface {
	AuditSnapshot() Snapshot
}

func (d Driver) AuditSnapshot() Snapshot {
	return Snapshot{
		Entity:    EntityDriver,
		Label:     d.Name,
		IsActive:  d.IsActive,
		SortOrder: d.SortOrder,
		Scope:     d.Scope(),
	}
}

func (c CheckColumn) AuditSnapshot() Snapshot {
	return Snapshot{
		Entity:    EntityCheck,
		Label:     c.DisplayName,
		IsActive:  c.IsActive,
		SortOrder: c.SortOrder,
		Scope:     c.Scope(),
	}
}

// Resequenced marks an entity whose place in its scope's sequence changed.
type Resequenced struct {
	Snapshotter
}

func (r Resequenced) AuditSnapshot() Snapshot {
	s := r.Snapshotter.AuditSnapshot()
	s.Resequenced = true
	return s
}

// Records carry no activation or ordering; they classify as create or update.
func (r DailyCheckRecord) AuditSnapshot() Snapshot {
	return Snapshot{
		Entity:   EntityRecord,
		Label:    fmt.Sprintf("record %s", r.Key()),
		IsActive: true,
	}
}

// =============================================================================
// RULES
// =============================================================================

type classificationRule struct {
	action Action
	match  func(before *Snapshot, after Snapshot) bool
}

var classificationRules = []classificationRule{
	{ActionCreate, func(b *Snapshot, _ Snapshot) bool {
		return b == nil
	}},
	{ActionReactivate, func(b *Snapshot, a Snapshot) bool {
		return !b.IsActive && a.IsActive
	}},
	{ActionDeactivate, func(b *Snapshot, a Snapshot) bool {
		return b.IsActive && !a.IsActive
	}},
	{ActionReorder, func(b *Snapshot, a Snapshot) bool {
		return b.IsActive == a.IsActive && b.Scope == a.Scope &&
			(b.SortOrder != a.SortOrder || a.Resequenced)
	}},
	{ActionMoveTimeBlock, func(b *Snapshot, a Snapshot) bool {
		return a.Entity == EntityCheck && b.Scope != a.Scope
	}},
	{ActionRename, func(b *Snapshot, a Snapshot) bool {
		return b.Label != a.Label
	}},
}

// Classification is the classifier output.
type Classification struct {
	Action  Action
	Summary string
}

// Classify runs the cascade. before is nil for newly created entities.
func Classify(before, after Snapshotter) Classification {
	a := after.AuditSnapshot()
	var b *Snapshot
	if before != nil {
		s := before.AuditSnapshot()
		b = &s
	}

	action := ActionUpdate
	for _, rule := range classificationRules {
		if rule.match(b, a) {
			action = rule.action
			break
		}
	}

	return Classification{Action: action, Summary: summarize(action, a)}
}

var entityNouns = map[EntityType]string{
	EntityDriver: "Driver",
	EntityCheck:  "Column",
	EntityRecord: "Record",
}

var actionVerbs = map[Action]string{
	ActionCreate:        "created",
	ActionUpdate:        "updated",
	ActionDeactivate:    "deactivated",
	ActionReactivate:    "reactivated",
	ActionRename:        "renamed",
	ActionReorder:       "reordered",
	ActionMoveTimeBlock: "moved",
}

func summarize(action Action, a Snapshot) string {
	base := fmt.Sprintf("%s %s %s", entityNouns[a.Entity], a.Label, actionVerbs[action])
	switch action {
	case ActionReorder:
		return fmt.Sprintf("%s to position %d in %s", base, a.SortOrder, a.Scope.Key)
	case ActionMoveTimeBlock:
		return fmt.Sprintf("%s to %s", base, a.Scope.Key)
	}
	return base
}
