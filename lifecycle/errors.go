/*
errors.go - Centralized error types for the lifecycle engine

PURPOSE:
  Every failure the engine reports falls into one of four kinds. Callers
  distinguish them with errors.Is against the sentinels, or errors.As
  against the structured types for detail.

ERROR CATEGORIES:
  1. Validation   - malformed input, rejected before any store access
  2. Not found    - unknown id referenced by an update or reorder
  3. Conflict     - uniqueness violation or lost race; retried once
  4. Audit write  - the trail could not be written; the mutation is rolled back

  None of these are fatal to the process. They are per-request outcomes.

USAGE:
  if lifecycle.IsNotFound(err) {
      // 404
  }

  var verr *lifecycle.ValidationError
  if errors.As(err, &verr) {
      fields[verr.Field] = verr.Reason
  }
*/
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or missing required input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced driver, column, or scope member doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the store rejects a write because of a
	// uniqueness violation or a concurrent writer.
	ErrConflict = errors.New("conflict")

	// ErrAuditWrite is returned when the audit entry for a mutation could not
	// be persisted. The paired mutation has been rolled back.
	ErrAuditWrite = errors.New("audit write failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes one offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ValidationErrors aggregates several field failures from one request.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

func (es ValidationErrors) Unwrap() error { return ErrValidation }

// Fields returns field -> reason, for response bodies.
func (es ValidationErrors) Fields() map[string]string {
	m := make(map[string]string, len(es))
	for _, e := range es {
		m[e.Field] = e.Reason
	}
	return m
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "driver", "check", "scope member"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError wraps the store-level cause of a conflict.
type ConflictError struct {
	Op  string
	Err error
}

func (e *ConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("conflict during %s", e.Op)
	}
	return fmt.Sprintf("conflict during %s: %v", e.Op, e.Err)
}

func (e *ConflictError) Unwrap() []error { return []error{ErrConflict, e.Err} }

// AuditWriteError wraps the cause of a failed audit append.
type AuditWriteError struct {
	EntityType EntityType
	EntityID   string
	Err        error
}

func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("audit write for %s %s: %v", e.EntityType, e.EntityID, e.Err)
}

func (e *AuditWriteError) Unwrap() []error { return []error{ErrAuditWrite, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsValidation returns true if err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound returns true if err indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict returns true if err is a store conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsAuditWrite returns true if err came from a failed audit append.
func IsAuditWrite(err error) bool { return errors.Is(err, ErrAuditWrite) }

// IsRetryable returns true if the unit of work might succeed if run again.
func IsRetryable(err error) bool { return IsConflict(err) }

// Kind names the error category for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsValidation(err):
		return "validation"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	case IsAuditWrite(err):
		return "audit_write"
	default:
		return "internal"
	}
}
