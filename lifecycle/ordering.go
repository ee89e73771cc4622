/*
ordering.go - Ordering coordinator for drivers and check columns

PURPOSE:
  Maintains a total order of sortOrder values within a Scope. Drivers are
  scoped by group, columns by time block. This file holds the pure
  order arithmetic; engine.go applies it inside a scope-locked unit of work
  (read current order, compute, write all) so that two reorders in the same
  scope can't interleave.

OPERATIONS:
  NextSortOrder  Create / cross-scope arrival: max(scope) + 1, or 1 if empty.
  Reorder        Drag-and-drop: remove source, reinsert immediately before
                 target, then renumber the whole scope 1..N.
  MoveToPosition Absolute move to a 1-based position, then renumber 1..N.

  Leaving a scope doesn't renumber it. The gap is closed by the next
  full re-index of that scope.

FAILURE:
  Unknown source or target returns a NotFoundError and no positions.
  Nothing is written in that case.
*/
package lifecycle

import (
	"fmt"
	"slices"
	"sort"
)

// =============================================================================
// SCOPE
// =============================================================================

// ScopeType distinguishes driver groups from time blocks.
type ScopeType string

const (
	ScopeDriverGroup ScopeType = "driver_group"
	ScopeTimeBlock   ScopeType = "time_block"
)

// Scope is the boundary within which sortOrder is totally ordered.
type Scope struct {
	Type ScopeType `json:"type"`
	Key  string    `json:"key"`
}

// DriverScope returns the scope of a driver group.
func DriverScope(g DriverGroup) Scope { return Scope{Type: ScopeDriverGroup, Key: string(g)} }

// ColumnScope returns the scope of a time block.
func ColumnScope(b TimeBlock) Scope { return Scope{Type: ScopeTimeBlock, Key: string(b)} }

// ParseScope validates a (type, key) pair from a request.
func ParseScope(scopeType, key string) (Scope, error) {
	switch ScopeType(scopeType) {
	case ScopeDriverGroup:
		if !DriverGroup(key).Valid() {
			return Scope{}, invalid("scopeKey", fmt.Sprintf("unknown driver group %q", key))
		}
	case ScopeTimeBlock:
		if !TimeBlock(key).Valid() {
			return Scope{}, invalid("scopeKey", fmt.Sprintf("unknown time block %q", key))
		}
	default:
		return Scope{}, invalid("scopeType", "must be driver_group or time_block")
	}
	return Scope{Type: ScopeType(scopeType), Key: key}, nil
}

// LockKey is the name a store serializes scope writers on.
func (s Scope) LockKey() string { return fmt.Sprintf("scope:%s:%s", s.Type, s.Key) }

func (s Scope) String() string { return fmt.Sprintf("%s %s", s.Type, s.Key) }

// =============================================================================
// POSITIONS
// =============================================================================

// Position is one item's place within a scope.
type Position struct {
	ID        string `json:"id"`
	SortOrder int    `json:"sortOrder"`
}

// SortPositions orders items by sortOrder, breaking ties by id so the order
// is total even when legacy data holds duplicate sortOrder values.
func SortPositions(items []Position) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].SortOrder != items[j].SortOrder {
			return items[i].SortOrder < items[j].SortOrder
		}
		return items[i].ID < items[j].ID
	})
}

// NextSortOrder returns max(sortOrder) + 1, or 1 for an empty scope.
func NextSortOrder(items []Position) int {
	highest := 0
	for _, p := range items {
		if p.SortOrder > highest {
			highest = p.SortOrder
		}
	}
	return highest + 1
}

// Reorder moves sourceID to immediately before targetID and renumbers the
// scope 1..N. items need not be sorted. The returned slice is in new order.
func Reorder(items []Position, sourceID, targetID string) ([]Position, error) {
	ordered := sortedCopy(items)

	from := indexOf(ordered, sourceID)
	if from < 0 {
		return nil, notFound("scope member", sourceID)
	}
	if indexOf(ordered, targetID) < 0 {
		return nil, notFound("scope member", targetID)
	}
	if sourceID == targetID {
		return renumber(ordered), nil
	}

	moved := ordered[from]
	ordered = slices.Delete(ordered, from, from+1)
	to := indexOf(ordered, targetID)
	ordered = slices.Insert(ordered, to, moved)

	return renumber(ordered), nil
}

// MoveToPosition moves id to the 1-based position (clamped to the scope
// bounds) and renumbers the scope 1..N.
func MoveToPosition(items []Position, id string, position int) ([]Position, error) {
	ordered := sortedCopy(items)

	from := indexOf(ordered, id)
	if from < 0 {
		return nil, notFound("scope member", id)
	}

	moved := ordered[from]
	ordered = slices.Delete(ordered, from, from+1)
	to := min(max(position-1, 0), len(ordered))
	ordered = slices.Insert(ordered, to, moved)

	return renumber(ordered), nil
}

// SameSequence reports whether a and b list the same ids in the same order.
func SameSequence(a, b []Position) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// Changed returns the positions in after whose sortOrder differs from before.
func Changed(before, after []Position) []Position {
	prev := make(map[string]int, len(before))
	for _, p := range before {
		prev[p.ID] = p.SortOrder
	}
	var out []Position
	for _, p := range after {
		if old, ok := prev[p.ID]; !ok || old != p.SortOrder {
			out = append(out, p)
		}
	}
	return out
}

func sortedCopy(items []Position) []Position {
	out := slices.Clone(items)
	SortPositions(out)
	return out
}

func renumber(ordered []Position) []Position {
	for i := range ordered {
		ordered[i].SortOrder = i + 1
	}
	return ordered
}

func indexOf(items []Position, id string) int {
	return slices.IndexFunc(items, func(p Position) bool { return p.ID == id })
}

// Placement is the outcome of Place.
type Placement struct {
	Self        Position   // the item's settled position
	Others      []Position // other members whose sortOrder must change
	Resequenced bool       // the item changed place in the scope's sequence
}

// Place settles an updated item's position in its (possibly new) scope.
// members are the scope's current members excluding the item. An item that
// arrives from another scope or is reactivated goes to the end first. A
// requested position is then applied with MoveToPosition.
func Place(members []Position, self Position, toEnd bool, requested *int) (Placement, error) {
	if toEnd {
		self.SortOrder = NextSortOrder(members)
	}
	if requested == nil {
		return Placement{Self: self}, nil
	}

	all := append(slices.Clone(members), self)
	current := sortedCopy(all)
	moved, err := MoveToPosition(all, self.ID, *requested)
	if err != nil {
		return Placement{}, err
	}
	if SameSequence(current, moved) {
		return Placement{Self: self}, nil
	}

	p := Placement{Self: moved[indexOf(moved, self.ID)], Resequenced: true}
	for _, c := range Changed(all, moved) {
		if c.ID != self.ID {
			p.Others = append(p.Others, c)
		}
	}
	return p, nil
}
