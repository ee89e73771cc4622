/*
handlers.go - HTTP API handlers for the dispatcher checklist

PURPOSE:
  Exposes the lifecycle engine via REST. Handlers parse the request, pass
  the actor id from the configured header, call exactly one engine
  operation and serialize the result. No business rules live here.

ENDPOINTS:
  Grid:
    GET    /api/overview?date=YYYY-MM-DD   Active drivers, eligible checks, records
    POST   /api/records                    Set one cell's status
    GET    /api/exceptions?date=           Blocked items and per-block summary

  Drivers:
    GET    /api/drivers                    All drivers, inactive included
    POST   /api/drivers                    Create (appended to its group)
    GET    /api/drivers/{id}
    PATCH  /api/drivers/{id}               Partial update

  Checks:
    GET    /api/checks                     All columns, inactive included
    POST   /api/checks                     Create (temporary)
    GET    /api/checks/{id}
    PATCH  /api/checks/{id}                Partial update

  Ordering:
    POST   /api/reorder                    Move source before target in a scope

  Audit:
    GET    /api/audit?days=N               Recent changes, newest first

ERROR HANDLING:
  - 400: Validation errors, malformed JSON, missing actor
  - 404: Unknown id
  - 409: Conflict that survived the engine's retry
  - 500: Audit write failures and everything else

SECURITY NOTE:
  The actor header is trusted as-is. Authentication happens upstream.

SEE ALSO:
  - dto.go:    Envelope types
  - server.go: Router and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/warp/checkboard/lifecycle"
)

// DefaultActorHeader carries the acting user's id.
const DefaultActorHeader = "X-Actor-ID"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the dependencies shared by all HTTP handlers.
type Handler struct {
	engine      *lifecycle.Engine
	actorHeader string
	ready       func(context.Context) error
}

// NewHandler creates a handler over engine. ready backs /readyz and may be nil.
func NewHandler(engine *lifecycle.Engine, actorHeader string, ready func(context.Context) error) *Handler {
	if actorHeader == "" {
		actorHeader = DefaultActorHeader
	}
	if ready == nil {
		ready = func(context.Context) error { return nil }
	}
	return &Handler{engine: engine, actorHeader: actorHeader, ready: ready}
}

func (h *Handler) actor(r *http.Request) string {
	return r.Header.Get(h.actorHeader)
}

// =============================================================================
// GRID HANDLERS
// =============================================================================

// GetOverview returns the grid for a date.
// GET /api/overview?date=2025-03-10
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.engine.ListOverview(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OverviewResponse{
		Date:    ov.Date,
		Drivers: orEmpty(ov.ActiveDrivers),
		Checks:  orEmpty(ov.EligibleColumns),
		Records: orEmpty(ov.Records),
	})
}

// UpsertRecord sets the status of one cell.
// POST /api/records
func (h *Handler) UpsertRecord(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.UpsertRecordInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := h.engine.UpsertRecordStatus(r.Context(), in, h.actor(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordResponse{Record: rec})
}

// GetExceptions returns blocked items and completion per time block.
// GET /api/exceptions?date=2025-03-10
func (h *Handler) GetExceptions(w http.ResponseWriter, r *http.Request) {
	ex, err := h.engine.ListExceptions(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	ex.Blocked = orEmpty(ex.Blocked)
	writeJSON(w, http.StatusOK, ex)
}

// =============================================================================
// DRIVER HANDLERS
// =============================================================================

// ListDrivers returns every driver in display order.
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	ds, err := h.engine.ListDrivers(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DriversResponse{Drivers: orEmpty(ds)})
}

func (h *Handler) GetDriver(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.GetDriver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DriverResponse{Driver: d})
}

// CreateDriver adds a driver at the end of its group.
func (h *Handler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.CreateDriverInput
	if !decode(w, r, &in) {
		return
	}
	d, err := h.engine.CreateDriver(r.Context(), in, h.actor(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DriverResponse{Driver: d})
}

// UpdateDriver applies a partial update.
func (h *Handler) UpdateDriver(w http.ResponseWriter, r *http.Request) {
	var patch lifecycle.DriverPatch
	if !decode(w, r, &patch) {
		return
	}
	d, err := h.engine.UpdateDriver(r.Context(), chi.URLParam(r, "id"), patch, h.actor(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DriverResponse{Driver: d})
}

// =============================================================================
// CHECK HANDLERS
// =============================================================================

func (h *Handler) ListChecks(w http.ResponseWriter, r *http.Request) {
	cs, err := h.engine.ListCheckColumns(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChecksResponse{Checks: orEmpty(cs)})
}

func (h *Handler) GetCheck(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.GetCheckColumn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{Check: c})
}

// CreateCheck adds a temporary column at the end of its time block.
func (h *Handler) CreateCheck(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.CreateCheckColumnInput
	if !decode(w, r, &in) {
		return
	}
	c, err := h.engine.CreateCheckColumn(r.Context(), in, h.actor(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CheckResponse{Check: c})
}

func (h *Handler) UpdateCheck(w http.ResponseWriter, r *http.Request) {
	var patch lifecycle.ColumnPatch
	if !decode(w, r, &patch) {
		return
	}
	c, err := h.engine.UpdateCheckColumn(r.Context(), chi.URLParam(r, "id"), patch, h.actor(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{Check: c})
}

// =============================================================================
// ORDERING & AUDIT HANDLERS
// =============================================================================

// Reorder moves source to just before target within one scope.
// POST /api/reorder
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.ReorderInput
	if !decode(w, r, &in) {
		return
	}
	items, err := h.engine.Reorder(r.Context(), in, h.actor(r))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReorderResponse{ScopeType: in.ScopeType, ScopeKey: in.ScopeKey, Items: orEmpty(items)})
}

// ListChanges returns the audit window.
// GET /api/audit?days=7
func (h *Handler) ListChanges(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "validation failed",
				Fields: map[string]string{"days": "must be an integer"},
			})
			return
		}
		days = n
	}

	entries, err := h.engine.ListRecentAudit(r.Context(), days)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if days == 0 {
		days = h.engine.AuditWindowDays()
	}

	changes := make([]ChangeDTO, len(entries))
	for i, e := range entries {
		changes[i] = toChangeDTO(e)
	}
	writeJSON(w, http.StatusOK, ChangesResponse{Days: days, Changes: changes})
}

// =============================================================================
// PROBES
// =============================================================================

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not ready", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst. It writes a 400 and returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, http.StatusBadRequest, msg, err)
		return false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, "invalid JSON body", fmt.Errorf("unexpected data after JSON object"))
		return false
	}
	return true
}

// writeEngineError maps engine error kinds onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs lifecycle.ValidationErrors
	var verr *lifecycle.ValidationError

	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: err.Error(), Fields: verrs.Fields()})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: err.Error(), Fields: map[string]string{verr.Field: verr.Reason}})
	case lifecycle.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case lifecycle.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		hlog.FromRequest(r).Error().Err(err).Str("kind", lifecycle.Kind(err)).Msg("request failed")
		// Internal details stay in the log.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
