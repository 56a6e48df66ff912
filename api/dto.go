/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

PRECISION NOTE:
  Domain quantities are decimal.Decimal. DTOs convert to float64 at the
  boundary because JSON clients expect numbers; the ledger itself never
  computes on floats.

VALIDATION:
  Validation is done in the domain layer (Measurement.Validate), not in
  DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - emission/types.go: Domain model these map from
*/
package api

import (
	"time"

	"github.com/verdant/emissions-engine/emission"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
	LastAnalysisDate string `json:"last_analysis_date,omitempty"`
}

// CreateUserRequest is the request to create a user.
type CreateUserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SubmitMeasurementRequest is the request body for logging an activity.
// The category comes from the URL, not the body.
type SubmitMeasurementRequest struct {
	UserID         string  `json:"user_id"`
	Date           string  `json:"date"`
	Subtype        string  `json:"subtype"`
	Quantity       float64 `json:"quantity"`
	PowerRating    float64 `json:"power_rating,omitempty"`
	EmissionFactor float64 `json:"emission_factor"`
}

// EmissionEntryDTO represents one accumulated entry in API responses.
type EmissionEntryDTO struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Date           string  `json:"date"`
	Category       string  `json:"category"`
	Subtype        string  `json:"subtype"`
	Quantity       float64 `json:"quantity"`
	PowerRating    float64 `json:"power_rating,omitempty"`
	EmissionFactor float64 `json:"emission_factor"`
	Emissions      float64 `json:"emissions"`
	CreatedAt      string  `json:"created_at,omitempty"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

// LedgerDTO represents one per-day cumulative total row.
type LedgerDTO struct {
	UserID         string  `json:"user_id"`
	Date           string  `json:"date"`
	Transportation float64 `json:"transportation"`
	Energy         float64 `json:"energy"`
	Waste          float64 `json:"waste"`
	Appliances     float64 `json:"appliances"`
	Water          float64 `json:"water"`
	AirTravel      float64 `json:"air_travel"`
	Total          float64 `json:"total"`
	CreatedAt      string  `json:"created_at,omitempty"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

// SubmitMeasurementResponse bundles the accumulated entry with the
// updated daily total so clients refresh in one round trip.
type SubmitMeasurementResponse struct {
	Entry EmissionEntryDTO `json:"entry"`
	Total LedgerDTO        `json:"total"`
}

// AnalysisSectionDTO is one section of an analysis.
type AnalysisSectionDTO struct {
	Insights        string `json:"insights"`
	Recommendations string `json:"recommendations"`
}

// AnalysisDTO represents a stored analysis run.
type AnalysisDTO struct {
	ID       string                        `json:"id"`
	UserID   string                        `json:"user_id"`
	Range    string                        `json:"range"`
	RunDate  string                        `json:"run_date"`
	Sections map[string]AnalysisSectionDTO `json:"sections"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserDTO(u emission.User) UserDTO {
	dto := UserDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
	if u.LastAnalysisDate != nil {
		dto.LastAnalysisDate = u.LastAnalysisDate.String()
	}
	return dto
}

func toEntryDTO(e emission.EmissionEntry) EmissionEntryDTO {
	quantity, _ := e.Quantity.Float64()
	powerRating, _ := e.PowerRating.Float64()
	factor, _ := e.EmissionFactor.Float64()
	emissions, _ := e.Emissions.Float64()
	return EmissionEntryDTO{
		ID:             e.ID,
		UserID:         e.UserID,
		Date:           e.Date.String(),
		Category:       string(e.Category),
		Subtype:        e.Subtype,
		Quantity:       quantity,
		PowerRating:    powerRating,
		EmissionFactor: factor,
		Emissions:      emissions,
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      e.UpdatedAt.Format(time.RFC3339),
	}
}

func toEntryDTOs(entries []emission.EmissionEntry) []EmissionEntryDTO {
	dtos := make([]EmissionEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toLedgerDTO(row emission.LedgerEntry) LedgerDTO {
	categoryTotal := func(c emission.Category) float64 {
		f, _ := row.CategoryTotal(c).Float64()
		return f
	}
	total, _ := row.GrandTotal.Float64()
	return LedgerDTO{
		UserID:         row.UserID,
		Date:           row.Date.String(),
		Transportation: categoryTotal(emission.CategoryTransportation),
		Energy:         categoryTotal(emission.CategoryEnergy),
		Waste:          categoryTotal(emission.CategoryWaste),
		Appliances:     categoryTotal(emission.CategoryAppliances),
		Water:          categoryTotal(emission.CategoryWater),
		AirTravel:      categoryTotal(emission.CategoryAirTravel),
		Total:          total,
		CreatedAt:      row.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      row.UpdatedAt.Format(time.RFC3339),
	}
}

func toLedgerDTOs(rows []emission.LedgerEntry) []LedgerDTO {
	dtos := make([]LedgerDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toLedgerDTO(row)
	}
	return dtos
}

func toAnalysisDTO(record emission.AnalysisRecord) AnalysisDTO {
	sections := make(map[string]AnalysisSectionDTO, len(record.Sections))
	for name, sec := range record.Sections {
		sections[name] = AnalysisSectionDTO{
			Insights:        sec.Insights,
			Recommendations: sec.Recommendations,
		}
	}
	return AnalysisDTO{
		ID:       record.ID,
		UserID:   record.UserID,
		Range:    record.RangeLabel,
		RunDate:  record.RunDate.Format(time.RFC3339),
		Sections: sections,
	}
}

func toAnalysisDTOs(records []emission.AnalysisRecord) []AnalysisDTO {
	dtos := make([]AnalysisDTO, len(records))
	for i, r := range records {
		dtos[i] = toAnalysisDTO(r)
	}
	return dtos
}
