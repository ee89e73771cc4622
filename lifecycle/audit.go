/*
audit.go - Audit recorder

PURPOSE:
  Appends exactly one AuditEntry per accepted mutation, inside the same
  Tx as the mutation. A failed append is returned as AuditWriteError,
  which the engine propagates out of WithTx so the mutation rolls back.

ENTRY SHAPE:
  occurredAt  the instant captured at request entry
  userId      the actor
  action      from Classify
  diff        {"before": <full snapshot or absent>, "after": <full snapshot>}

  The diff holds whole snapshots, not field deltas, so any entry can be
  read on its own to reconstruct what changed.
*/
package lifecycle

import (
	"context"
	"encoding/json"
	"time"
)

// Recorder builds and appends audit entries.
type Recorder struct {
	newID func() string
}

// NewRecorder creates a recorder using newID for entry ids.
func NewRecorder(newID func() string) *Recorder {
	return &Recorder{newID: newID}
}

// Mutation describes one accepted write for the recorder.
type Mutation struct {
	ActorID    string
	EntityType EntityType
	EntityID   string
	Class      Classification
	Before     any // nil for creates
	After      any
	At         time.Time
}

// Record appends the entry for m to tx.
func (r *Recorder) Record(ctx context.Context, tx Tx, m Mutation) (AuditEntry, error) {
	diff, err := json.Marshal(Diff{Before: m.Before, After: m.After})
	if err != nil {
		return AuditEntry{}, &AuditWriteError{EntityType: m.EntityType, EntityID: m.EntityID, Err: err}
	}

	entry := AuditEntry{
		ID:         r.newID(),
		OccurredAt: m.At,
		UserID:     m.ActorID,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		Action:     m.Class.Action,
		Summary:    m.Class.Summary,
		Diff:       diff,
	}

	if err := tx.AppendAudit(ctx, entry); err != nil {
		return AuditEntry{}, &AuditWriteError{EntityType: m.EntityType, EntityID: m.EntityID, Err: err}
	}
	return entry, nil
}

// DecodeDiff unmarshals an entry's diff into before/after targets.
// Either target may be nil to skip it.
func DecodeDiff(e AuditEntry, before, after any) error {
	var raw struct {
		Before json.RawMessage `json:"before"`
		After  json.RawMessage `json:"after"`
	}
	if err := json.Unmarshal(e.Diff, &raw); err != nil {
		return err
	}
	if before != nil && len(raw.Before) > 0 {
		if err := json.Unmarshal(raw.Before, before); err != nil {
			return err
		}
	}
	if after != nil && len(raw.After) > 0 {
		if err := json.Unmarshal(raw.After, after); err != nil {
			return err
		}
	}
	return nil
}
