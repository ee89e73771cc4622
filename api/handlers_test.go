/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Status mapping (400/404/409/500) and the error body
- Actor header handling
- End-to-end grid flow through the router
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/checkboard/lifecycle"
	"github.com/warp/checkboard/lifecycle/store"
)

var t0 = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	router http.Handler
	mem    *store.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var n atomic.Int64
	mem := store.NewMemory()
	engine := lifecycle.NewEngine(mem,
		lifecycle.WithClock(&lifecycle.FixedClock{T: t0}),
		lifecycle.WithIDGenerator(func() string { return fmt.Sprintf("id-%03d", n.Add(1)) }),
	)
	h := NewHandler(engine, "", nil)
	return &fixture{router: NewRouter(h, RouterOptions{Logger: zerolog.Nop()}), mem: mem}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DefaultActorHeader, "dispatcher-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestGridFlow(t *testing.T) {
	// GIVEN: A driver and a check created over HTTP
	// WHEN: A cell is set blocked, then the overview and exceptions are read
	// THEN: Both views reflect the record, and the audit feed lists every change

	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/drivers", map[string]any{"name": "Kelly Olson", "truckNumber": "147", "group": "Local Drivers"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	d := decodeBody[DriverResponse](t, rec).Driver
	assert.Equal(t, 1, d.SortOrder)

	rec = f.do(t, http.MethodPost, "/api/checks", map[string]any{"displayName": "PTA", "timeBlock": "Morning"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decodeBody[CheckResponse](t, rec).Check
	assert.Equal(t, lifecycle.ColumnTemporary, c.ColumnType)

	rec = f.do(t, http.MethodPost, "/api/records", map[string]any{
		"date": "2025-03-10", "driverId": d.ID, "checkId": c.ID, "status": "blocked", "blockedReason": "Dock closed",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r := decodeBody[RecordResponse](t, rec).Record
	assert.Equal(t, lifecycle.StatusBlocked, r.Status)
	assert.Equal(t, "dispatcher-1", r.UpdatedByUserID)

	rec = f.do(t, http.MethodGet, "/api/overview?date=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ov := decodeBody[OverviewResponse](t, rec)
	assert.Len(t, ov.Drivers, 1)
	assert.Len(t, ov.Checks, 1)
	assert.Len(t, ov.Records, 1)

	rec = f.do(t, http.MethodGet, "/api/exceptions?date=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ex := decodeBody[lifecycle.Exceptions](t, rec)
	require.Len(t, ex.Blocked, 1)
	assert.Equal(t, "Dock closed", ex.Blocked[0].Reason)

	rec = f.do(t, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ch := decodeBody[ChangesResponse](t, rec)
	assert.Equal(t, 7, ch.Days)
	require.Len(t, ch.Changes, 3)
	assert.Equal(t, lifecycle.EntityRecord, ch.Changes[0].EntityType)
	assert.Contains(t, string(ch.Changes[0].Diff), `"after"`)
}

func TestOverview_Empty(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/overview?date=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"date":"2025-03-10","drivers":[],"checks":[],"records":[]}`, rec.Body.String())
}

func TestValidationErrors_Return400WithFields(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/drivers", map[string]any{"name": " ", "group": "Night Shift"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation failed", body.Error)
	assert.Contains(t, body.Fields, "name")
	assert.Contains(t, body.Fields, "group")

	rec = f.do(t, http.MethodGet, "/api/overview?date=03/10/2025", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/audit?days=many", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/audit?days=400", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedBody_Returns400(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/records", `{"date":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/records", `{"date":"2025-03-10","colour":"red"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/reorder", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body is required", decodeBody[ErrorResponse](t, rec).Error)
}

func TestMissingActor_Returns400(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/drivers", bytes.NewBufferString(`{"name":"Kelly","group":"Local Drivers"}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Fields, "actorId")
}

func TestUnknownIDs_Return404(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/drivers/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/checks/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/api/drivers/nope", map[string]any{"name": "X"}).Code)

	rec := f.do(t, http.MethodPost, "/api/records", map[string]any{
		"date": "2025-03-10", "driverId": "nope", "checkId": "nope", "status": "done",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReorder(t *testing.T) {
	// GIVEN: Two drivers in Local Drivers
	// WHEN: The second is dragged onto the first
	// THEN: The response carries the new order and the driver reads back at position 1

	f := newFixture(t)
	a := decodeBody[DriverResponse](t, f.do(t, http.MethodPost, "/api/drivers", map[string]any{"name": "A", "group": "Local Drivers"})).Driver
	b := decodeBody[DriverResponse](t, f.do(t, http.MethodPost, "/api/drivers", map[string]any{"name": "B", "group": "Local Drivers"})).Driver

	rec := f.do(t, http.MethodPost, "/api/reorder", map[string]any{
		"scopeType": "driver_group", "scopeKey": "Local Drivers", "sourceId": b.ID, "targetId": a.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	items := decodeBody[ReorderResponse](t, rec).Items
	require.Len(t, items, 2)
	assert.Equal(t, b.ID, items[0].ID)

	got := decodeBody[DriverResponse](t, f.do(t, http.MethodGet, "/api/drivers/"+b.ID, nil)).Driver
	assert.Equal(t, 1, got.SortOrder)

	rec = f.do(t, http.MethodPost, "/api/reorder", map[string]any{
		"scopeType": "region", "scopeKey": "north", "sourceId": b.ID, "targetId": a.ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchCheck_Promote(t *testing.T) {
	f := newFixture(t)
	c := decodeBody[CheckResponse](t, f.do(t, http.MethodPost, "/api/checks", map[string]any{"displayName": "PTA", "timeBlock": "Morning"})).Check

	rec := f.do(t, http.MethodPatch, "/api/checks/"+c.ID, map[string]any{"columnType": "standard"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[CheckResponse](t, rec).Check
	assert.Equal(t, lifecycle.ColumnStandard, got.ColumnType)
	assert.Nil(t, got.ExpiresAt)

	rec = f.do(t, http.MethodGet, "/api/checks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[ChecksResponse](t, rec).Checks, 1)
}

func TestAuditWriteFailure_Returns500(t *testing.T) {
	f := newFixture(t)
	f.mem.FailAudit(errors.New("disk full"))

	rec := f.do(t, http.MethodPost, "/api/drivers", map[string]any{"name": "Kelly", "group": "Local Drivers"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeBody[ErrorResponse](t, rec).Error)

	f.mem.FailAudit(nil)
	rec = f.do(t, http.MethodGet, "/api/drivers", nil)
	assert.JSONEq(t, `{"drivers":[]}`, rec.Body.String())
}

func TestConflict_Returns409(t *testing.T) {
	f := newFixture(t)
	d := decodeBody[DriverResponse](t, f.do(t, http.MethodPost, "/api/drivers", map[string]any{"name": "Kelly", "group": "Local Drivers"})).Driver

	// Two injected conflicts outlast the single retry.
	f.mem.FailCommits(2)
	rec := f.do(t, http.MethodPatch, "/api/drivers/"+d.ID, map[string]any{"name": "Kelly Olson"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProbes(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", nil).Code)

	engine := lifecycle.NewEngine(store.NewMemory())
	down := NewHandler(engine, "", func(context.Context) error { return errors.New("db unreachable") })
	rec := httptest.NewRecorder()
	NewRouter(down, RouterOptions{Logger: zerolog.Nop()}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
