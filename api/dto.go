/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON envelopes the HTTP surface speaks. Request bodies decode
  straight into the lifecycle input types (they carry json + validate tags);
  responses wrap lifecycle entities in named envelopes so clients can grow
  without breaking.

NAMING CONVENTION:
  - *Response: Envelope returned to clients
  - *DTO:      Reshaped entity (only where the wire form differs)

TYPES:
  Overview:  OverviewResponse
  Records:   RecordResponse
  Drivers:   DriverResponse, DriversResponse
  Checks:    CheckResponse, ChecksResponse
  Ordering:  ReorderResponse
  Audit:     ChangesResponse, ChangeDTO
  Errors:    ErrorResponse

SEE ALSO:
  - handlers.go: Uses these types
  - lifecycle/validate.go: Request input types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/checkboard/lifecycle"
)

// =============================================================================
// RESPONSE ENVELOPES
// =============================================================================

// OverviewResponse is the grid for one date.
type OverviewResponse struct {
	Date    lifecycle.Date               `json:"date"`
	Drivers []lifecycle.Driver           `json:"drivers"`
	Checks  []lifecycle.CheckColumn      `json:"checks"`
	Records []lifecycle.DailyCheckRecord `json:"records"`
}

// RecordResponse wraps one grid cell.
type RecordResponse struct {
	Record lifecycle.DailyCheckRecord `json:"record"`
}

// DriverResponse wraps one driver.
type DriverResponse struct {
	Driver lifecycle.Driver `json:"driver"`
}

// DriversResponse lists drivers in display order.
type DriversResponse struct {
	Drivers []lifecycle.Driver `json:"drivers"`
}

// CheckResponse wraps one check column.
type CheckResponse struct {
	Check lifecycle.CheckColumn `json:"check"`
}

// ChecksResponse lists check columns in display order.
type ChecksResponse struct {
	Checks []lifecycle.CheckColumn `json:"checks"`
}

// ReorderResponse is the scope's resulting order.
type ReorderResponse struct {
	ScopeType string               `json:"scopeType"`
	ScopeKey  string               `json:"scopeKey"`
	Items     []lifecycle.Position `json:"items"`
}

// ChangeDTO is an audit entry with its diff inlined as JSON rather than bytes.
type ChangeDTO struct {
	ID         string               `json:"id"`
	OccurredAt time.Time            `json:"occurredAt"`
	UserID     string               `json:"userId"`
	EntityType lifecycle.EntityType `json:"entityType"`
	EntityID   string               `json:"entityId"`
	Action     lifecycle.Action     `json:"action"`
	Summary    string               `json:"summary"`
	Diff       json.RawMessage      `json:"diff"`
}

// ChangesResponse lists recent audit entries, newest first.
type ChangesResponse struct {
	Days    int         `json:"days"`
	Changes []ChangeDTO `json:"changes"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toChangeDTO(e lifecycle.AuditEntry) ChangeDTO {
	diff := json.RawMessage(e.Diff)
	if len(diff) == 0 {
		diff = json.RawMessage("null")
	}
	return ChangeDTO{
		ID:         e.ID,
		OccurredAt: e.OccurredAt,
		UserID:     e.UserID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		Summary:    e.Summary,
		Diff:       diff,
	}
}

// orEmpty keeps list fields as [] rather than null on the wire.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
