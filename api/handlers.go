/*
handlers.go - HTTP API handlers for the emissions tracking service

PURPOSE:
  Exposes the emissions engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    GET    /api/users                   List all users
    POST   /api/users                   Create user
    GET    /api/users/{id}              Get user details

  Emissions:
    POST   /api/emissions/{category}    Log an activity measurement
    GET    /api/emissions/{category}    Category entries for a user
    GET    /api/emissions/total         Most recent cumulative total
    GET    /api/emissions/total/history Full daily ledger history

  Analysis:
    POST   /api/analysis/run            Run the AI analysis pipeline
    GET    /api/analysis/previous       Previously stored analyses

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (record store, ledger, analysis service)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found, no data for user
  - 429: Daily analysis limit reached
  - 500: Internal errors
  Domain errors carry their classification (emission/errors.go);
  handlers only translate it to a status code.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/verdant/emissions-engine/analysis"
	"github.com/verdant/emissions-engine/emission"
	"github.com/verdant/emissions-engine/genai"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    emission.Store
	Records  *emission.RecordStore
	Ledger   *emission.TotalLedger
	Analysis *analysis.Service
}

// NewHandler wires the domain services over the given store.
func NewHandler(store emission.Store, gen genai.Generator) *Handler {
	ledger := emission.NewTotalLedger(store)
	return &Handler{
		Store:    store,
		Records:  emission.NewRecordStore(store, ledger),
		Ledger:   ledger,
		Analysis: analysis.NewService(store, gen),
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users.
// GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns a single user.
// GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

// CreateUser creates a new user.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	user := emission.User{
		ID:        req.ID,
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// =============================================================================
// EMISSION HANDLERS
// =============================================================================

// SubmitMeasurement logs one activity measurement. Repeated submissions
// for the same (user, date, category, subtype) accumulate into one entry.
// POST /api/emissions/{category}
func (h *Handler) SubmitMeasurement(w http.ResponseWriter, r *http.Request) {
	category, err := emission.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}

	var req SubmitMeasurementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := emission.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	user, err := h.Store.GetUser(r.Context(), req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}

	m := emission.Measurement{
		UserID:         req.UserID,
		Date:           date,
		Category:       category,
		Subtype:        req.Subtype,
		Quantity:       decimal.NewFromFloat(req.Quantity),
		PowerRating:    decimal.NewFromFloat(req.PowerRating),
		EmissionFactor: decimal.NewFromFloat(req.EmissionFactor),
	}

	entry, total, err := h.Records.Record(r.Context(), m)
	if err != nil {
		writeDomainError(w, "Failed to record measurement", err)
		return
	}

	writeJSON(w, http.StatusOK, SubmitMeasurementResponse{
		Entry: toEntryDTO(*entry),
		Total: toLedgerDTO(*total),
	})
}

// GetCategoryData returns a user's accumulated entries for one category.
// GET /api/emissions/{category}?user_id=...&sort_by=date
func (h *Handler) GetCategoryData(w http.ResponseWriter, r *http.Request) {
	category, err := emission.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	sortBy := r.URL.Query().Get("sort_by")
	if sortBy == "" {
		sortBy = "date"
	}

	entries, err := h.Records.CategoryData(r.Context(), userID, category, sortBy)
	if err != nil {
		writeDomainError(w, "Failed to get category data", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// GetMostRecentTotal returns the user's most recent cumulative total row.
// GET /api/emissions/total?user_id=...
func (h *Handler) GetMostRecentTotal(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	row, err := h.Ledger.MostRecent(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to get total emissions", err)
		return
	}

	writeJSON(w, http.StatusOK, toLedgerDTO(*row))
}

// GetTotalHistory returns the user's full daily ledger history.
// GET /api/emissions/total/history?user_id=...&sort_by=date
func (h *Handler) GetTotalHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	sortBy := r.URL.Query().Get("sort_by")
	if sortBy == "" {
		sortBy = "date"
	}

	rows, err := h.Ledger.History(r.Context(), userID, sortBy)
	if err != nil {
		writeDomainError(w, "Failed to get total emissions history", err)
		return
	}

	writeJSON(w, http.StatusOK, toLedgerDTOs(rows))
}

// =============================================================================
// ANALYSIS HANDLERS
// =============================================================================

// RunAnalysis runs the full analysis pipeline for a user. At most one
// run per user per calendar day; a second attempt returns 429.
// POST /api/analysis/run?user_id=...
func (h *Handler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	record, err := h.Analysis.Run(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to run analysis", err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalysisDTO(*record))
}

// GetPreviousAnalyses returns stored analyses for a user, newest first.
// GET /api/analysis/previous?user_id=...
func (h *Handler) GetPreviousAnalyses(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	records, err := h.Analysis.Previous(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to get previous analyses", err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalysisDTOs(records))
}

// =============================================================================
// HELPERS
// =============================================================================

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

// writeDomainError maps a domain error to its HTTP status. The fallback
// message is used only for unclassified (500) errors; classified errors
// surface their own message.
func writeDomainError(w http.ResponseWriter, fallback string, err error) {
	switch {
	case emission.IsRateLimited(err):
		writeError(w, http.StatusTooManyRequests, err.Error(), nil)
	case emission.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case emission.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, fallback, err)
	}
}
