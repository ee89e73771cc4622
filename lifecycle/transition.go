/*
transition.go - Status transition engine for daily check records

PURPOSE:
  Computes the next field values of a DailyCheckRecord from the existing
  record (or none) and a requested status. Pure: no I/O, no clock reads.
  The caller passes the instant captured at request entry.

RULES (evaluated top to bottom, first match applies):
  not_started  Full reset: startedAt, completedAt, blockedReason, note cleared.
  in_progress  startedAt kept if set, else now. completedAt left as it was.
  done         completedAt kept if set, else now. startedAt left as it was.
  blocked      Timestamps left as they were. blockedReason from the request,
               or DefaultBlockedReason.

  Re-entering in_progress after done keeps completedAt. This is observed
  behavior of the dispatch board and is preserved pending product review.

NOTE AND REASON:
  Every transition other than not_started takes note from the request.
  An omitted or empty note is stored as none. blockedReason is kept only
  on blocked records; in_progress and done clear it.

SEE ALSO:
  - engine.go: UpsertRecordStatus wires this into a unit of work
*/
package lifecycle

import "time"

// DefaultBlockedReason is recorded when a record is blocked without a reason.
const DefaultBlockedReason = "No reason"

// TransitionInput is everything the engine needs to compute a transition.
type TransitionInput struct {
	Existing      *DailyCheckRecord // nil if the triple has never been touched
	Status        RecordStatus
	BlockedReason *string
	Note          *string
	Now           time.Time
}

// TransitionResult holds the computed field values. Identity fields
// (id, date, driver, check) and actor are filled in by the caller.
type TransitionResult struct {
	Status        RecordStatus
	StartedAt     *time.Time
	CompletedAt   *time.Time
	BlockedReason *string
	Note          *string
}

// Transition applies the status rules. It fails only for an unknown status.
func Transition(in TransitionInput) (TransitionResult, error) {
	if !in.Status.Valid() {
		return TransitionResult{}, invalid("status", "must be one of not_started, in_progress, done, blocked")
	}

	var prev DailyCheckRecord
	if in.Existing != nil {
		prev = *in.Existing
	}

	switch in.Status {
	case StatusNotStarted:
		return TransitionResult{Status: StatusNotStarted}, nil

	case StatusInProgress:
		started := prev.StartedAt
		if started == nil {
			started = timePtr(in.Now)
		}
		return TransitionResult{
			Status:      StatusInProgress,
			StartedAt:   started,
			CompletedAt: prev.CompletedAt,
			Note:        fromRequest(in.Note),
		}, nil

	case StatusDone:
		completed := prev.CompletedAt
		if completed == nil {
			completed = timePtr(in.Now)
		}
		return TransitionResult{
			Status:      StatusDone,
			StartedAt:   prev.StartedAt,
			CompletedAt: completed,
			Note:        fromRequest(in.Note),
		}, nil

	default: // StatusBlocked
		reason := DefaultBlockedReason
		if r := fromRequest(in.BlockedReason); r != nil {
			reason = *r
		}
		return TransitionResult{
			Status:        StatusBlocked,
			StartedAt:     prev.StartedAt,
			CompletedAt:   prev.CompletedAt,
			BlockedReason: strPtr(reason),
			Note:          fromRequest(in.Note),
		}, nil
	}
}

// fromRequest copies a request value, mapping omitted and empty to nil.
func fromRequest(requested *string) *string {
	if requested == nil || *requested == "" {
		return nil
	}
	return strPtr(*requested)
}

// Apply copies the result onto r.
func (res TransitionResult) Apply(r *DailyCheckRecord) {
	r.Status = res.Status
	r.StartedAt = res.StartedAt
	r.CompletedAt = res.CompletedAt
	r.BlockedReason = res.BlockedReason
	r.Note = res.Note
}
