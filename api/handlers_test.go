/*
handlers_test.go - HTTP-level tests for the emissions API

Tests drive the real router with httptest requests against the in-memory
store, covering the measurement flow, ledger reads, and the analysis
endpoints including the daily gate.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdant/emissions-engine/analysis"
	"github.com/verdant/emissions-engine/api"
	memstore "github.com/verdant/emissions-engine/emission/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// cannedGen always returns the same well-formed model response.
type cannedGen struct{}

func (cannedGen) Generate(context.Context, string) (string, error) {
	return "[Key Insights]\n- insight\n[Recommendations]\n- recommendation", nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memstore.NewMemory()
	h := api.NewHandler(store, cannedGen{})
	h.Analysis.WithRunner(&analysis.Runner{Delay: time.Millisecond, CallTimeout: time.Second})
	return api.NewRouter(h)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func createUser(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/users", api.CreateUserRequest{
		ID: id, Name: "Test User", Email: "test@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func submission(userID string) api.SubmitMeasurementRequest {
	return api.SubmitMeasurementRequest{
		UserID:         userID,
		Date:           "2026-03-10",
		Subtype:        "car",
		Quantity:       100,
		EmissionFactor: 0.2,
	}
}

// =============================================================================
// USERS
// =============================================================================

func TestAPI_CreateAndGetUser(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/users", api.CreateUserRequest{Name: "Ada"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[api.UserDTO](t, rec)
	assert.NotEmpty(t, created.ID, "missing ID is generated")

	rec = do(t, router, http.MethodGet, "/api/users/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.UserDTO](t, rec)
	assert.Equal(t, "Ada", got.Name)

	rec = do(t, router, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.UserDTO](t, rec), 1)
}

func TestAPI_CreateUser_MissingName(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/users", api.CreateUserRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetUser_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/users/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// MEASUREMENTS
// =============================================================================

func TestAPI_SubmitMeasurement_ReturnsEntryAndTotal(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "user-1")

	rec := do(t, router, http.MethodPost, "/api/emissions/transportation", submission("user-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[api.SubmitMeasurementResponse](t, rec)
	assert.Equal(t, "transportation", resp.Entry.Category)
	assert.Equal(t, "car", resp.Entry.Subtype)
	assert.InDelta(t, 100, resp.Entry.Quantity, 1e-9)
	assert.InDelta(t, 20, resp.Entry.Emissions, 1e-9)
	assert.InDelta(t, 20, resp.Total.Transportation, 1e-9)
	assert.InDelta(t, 20, resp.Total.Total, 1e-9)
}

func TestAPI_SubmitMeasurement_Accumulates(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "user-1")

	do(t, router, http.MethodPost, "/api/emissions/transportation", submission("user-1"))
	rec := do(t, router, http.MethodPost, "/api/emissions/transportation", submission("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[api.SubmitMeasurementResponse](t, rec)
	assert.InDelta(t, 200, resp.Entry.Quantity, 1e-9)
	assert.InDelta(t, 40, resp.Entry.Emissions, 1e-9)
	assert.InDelta(t, 40, resp.Total.Total, 1e-9)
}

func TestAPI_SubmitMeasurement_Errors(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "user-1")

	t.Run("unknown category", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/emissions/cheese", submission("user-1"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		body := submission("user-1")
		body.Date = "03/10/2026"
		rec := do(t, router, http.MethodPost, "/api/emissions/transportation", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/emissions/transportation", submission("ghost"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid energy subtype", func(t *testing.T) {
		body := submission("user-1")
		body.Subtype = "coal"
		rec := do(t, router, http.MethodPost, "/api/emissions/energy", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_GetCategoryData(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "user-1")
	do(t, router, http.MethodPost, "/api/emissions/transportation", submission("user-1"))

	rec := do(t, router, http.MethodGet, "/api/emissions/transportation?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]api.EmissionEntryDTO](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "car", entries[0].Subtype)

	t.Run("missing user_id", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/emissions/transportation", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no data", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/emissions/energy?user_id=user-1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad sort field", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/emissions/transportation?user_id=user-1&sort_by=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// =============================================================================
// TOTALS
// =============================================================================

func TestAPI_Totals(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "user-1")

	// No data yet
	rec := do(t, router, http.MethodGet, "/api/emissions/total?user_id=user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Two days of data
	day1 := submission("user-1")
	day1.Date = "2026-03-09"
	do(t, router, http.MethodPost, "/api/emissions/transportation", day1)
	do(t, router, http.MethodPost, "/api/emissions/transportation", submission("user-1"))

	rec = do(t, router, http.MethodGet, "/api/emissions/total?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	total := decode[api.LedgerDTO](t, rec)
	assert.Equal(t, "2026-03-10", total.Date)
	assert.InDelta(t, 40, total.Total, 1e-9, "day 2 carries day 1 forward")

	rec = do(t, router, http.MethodGet, "/api/emissions/total/history?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]api.LedgerDTO](t, rec)
	require.Len(t, history, 2)
	assert.InDelta(t, 20, history[0].Total, 1e-9)
	assert.InDelta(t, 40, history[1].Total, 1e-9)
}

// =============================================================================
// ANALYSIS
// =============================================================================

func TestAPI_RunAnalysis_ThenDailyGate(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "user-1")

	// Today's data so at least one section reaches the generator.
	body := submission("user-1")
	body.Date = time.Now().UTC().Format("2006-01-02")
	do(t, router, http.MethodPost, "/api/emissions/transportation", body)

	rec := do(t, router, http.MethodPost, "/api/analysis/run?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	record := decode[api.AnalysisDTO](t, rec)
	assert.Equal(t, "7d", record.Range)
	require.Len(t, record.Sections, 7)
	assert.Equal(t, "- insight", record.Sections["transportation"].Insights)
	assert.Equal(t, "- recommendation", record.Sections["transportation"].Recommendations)

	// Second run the same day hits the gate
	rec = do(t, router, http.MethodPost, "/api/analysis/run?user_id=user-1", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAPI_RunAnalysis_Errors(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/analysis/run", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/analysis/run?user_id=ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_PreviousAnalyses(t *testing.T) {
	router := newTestRouter(t)
	createUser(t, router, "user-1")

	rec := do(t, router, http.MethodGet, "/api/analysis/previous?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]api.AnalysisDTO](t, rec))

	do(t, router, http.MethodPost, "/api/analysis/run?user_id=user-1", nil)

	rec = do(t, router, http.MethodGet, "/api/analysis/previous?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]api.AnalysisDTO](t, rec)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Sections, 7)
}
