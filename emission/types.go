/*
Package emission provides the core emissions-tracking engine.

PURPOSE:
  This package contains the domain types and algorithms for logging activity
  across six emission categories and maintaining a per-user, per-day
  cumulative emissions ledger. Raw measurements accumulate into entries
  keyed by (user, date, category, subtype); every accepted measurement
  folds its delta into the running ledger totals.

KEY CONCEPTS IN THIS FILE (types.go):
  - Category: one of the six tracked emission categories
  - Date: a calendar day with no time-of-day component (ledger key)
  - Measurement: a raw activity submission from a user
  - EmissionEntry: the accumulated row for one (user, date, category, subtype)
  - LedgerEntry: the per-user, per-day snapshot of cumulative totals
  - AnalysisRecord: a persisted AI analysis run across all categories

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, no floating-point drift
  2. Accumulation, not replacement: repeat measurements add in place
  3. The ledger invariant: GrandTotal == sum of category totals, always

SEE ALSO:
  - record.go: Measurement validation and upsert-accumulate
  - ledger.go: Carry-forward totals and the ledger invariant
  - store.go: Persistence interfaces
*/
package emission

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATEGORY - The six tracked emission categories
// =============================================================================

type Category string

const (
	CategoryTransportation Category = "transportation"
	CategoryEnergy         Category = "energy"
	CategoryWaste          Category = "waste"
	CategoryAppliances     Category = "appliances"
	CategoryWater          Category = "water"
	CategoryAirTravel      Category = "air_travel"
)

// Categories lists all categories in their canonical processing order.
// The analysis pipeline and ledger seeding both follow this order.
var Categories = []Category{
	CategoryTransportation,
	CategoryEnergy,
	CategoryWaste,
	CategoryAppliances,
	CategoryWater,
	CategoryAirTravel,
}

// ParseCategory converts a URL/API string into a Category.
// Accepts "air-travel" and "airtravel" as aliases for air_travel.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "transportation":
		return CategoryTransportation, nil
	case "energy":
		return CategoryEnergy, nil
	case "waste":
		return CategoryWaste, nil
	case "appliances":
		return CategoryAppliances, nil
	case "water":
		return CategoryWater, nil
	case "air_travel", "air-travel", "airtravel":
		return CategoryAirTravel, nil
	}
	return "", &InvalidInputError{Field: "category", Message: fmt.Sprintf("unknown category %q", s)}
}

// QuantityUnit returns the display unit of the raw quantity for a category.
func (c Category) QuantityUnit() string {
	switch c {
	case CategoryTransportation, CategoryAirTravel:
		return "km"
	case CategoryEnergy:
		return "kWh"
	case CategoryWaste:
		return "kg"
	case CategoryAppliances:
		return "hours"
	case CategoryWater:
		return "liters"
	}
	return ""
}

// =============================================================================
// DATE - Calendar day, no time-of-day
// =============================================================================

// Date is a calendar day. Entries and ledger rows are keyed by Date;
// two Dates are equal iff they name the same day.
type Date struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

// ParseDate parses a strict YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, &InvalidInputError{Field: "date", Message: "invalid date format, use YYYY-MM-DD"}
	}
	return Date{Time: t.UTC()}, nil
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a wall-clock instant to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now().UTC()) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Date) Before(other Date) bool { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool  { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool  { return d.normalize().Equal(other.normalize()) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

func (d Date) AddDays(n int) Date {
	return Date{Time: d.normalize().AddDate(0, 0, n)}
}

func (d Date) String() string { return d.normalize().Format(dateLayout) }

// =============================================================================
// MEASUREMENT - A raw activity submission
// =============================================================================

// Measurement is one logged activity. Quantity is category-specific:
// distance (km) for transportation and air travel, usage (kWh) for energy,
// quantity (kg) for waste, usage time (hours) for appliances, and usage
// (liters) for water. PowerRating (kW) applies to appliances only.
type Measurement struct {
	UserID         string
	Date           Date
	Category       Category
	Subtype        string
	Quantity       decimal.Decimal
	PowerRating    decimal.Decimal
	EmissionFactor decimal.Decimal
}

// Emissions computes the kg CO2 contribution of this measurement.
// Appliances multiply usage time by power rating by factor; every other
// category multiplies quantity by factor.
func (m Measurement) Emissions() decimal.Decimal {
	if m.Category == CategoryAppliances {
		return m.Quantity.Mul(m.PowerRating).Mul(m.EmissionFactor)
	}
	return m.Quantity.Mul(m.EmissionFactor)
}

// =============================================================================
// EMISSION ENTRY - Accumulated row per (user, date, category, subtype)
// =============================================================================

// EmissionEntry holds the accumulated quantity and emissions for one key.
// At most one entry exists per (UserID, Date, Category, Subtype);
// repeat measurements are added in place, never replacing the row.
type EmissionEntry struct {
	ID             string
	UserID         string
	Date           Date
	Category       Category
	Subtype        string
	Quantity       decimal.Decimal
	PowerRating    decimal.Decimal
	EmissionFactor decimal.Decimal
	Emissions      decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EntrySortFields are the accepted sort keys for category data queries.
var EntrySortFields = map[string]bool{
	"date":      true,
	"quantity":  true,
	"emissions": true,
	"subtype":   true,
}

// =============================================================================
// LEDGER ENTRY - Per-user, per-day cumulative totals
// =============================================================================

// LedgerEntry is the cumulative totals snapshot for one user and day.
// INVARIANT: GrandTotal equals the sum of all six category totals.
// Rows are created by carrying forward the most recent prior row's totals
// and only ever incremented; totals are non-decreasing over dates.
type LedgerEntry struct {
	UserID     string
	Date       Date
	Totals     map[Category]decimal.Decimal
	GrandTotal decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewLedgerEntry returns a zeroed row for a user and day.
func NewLedgerEntry(userID string, date Date) *LedgerEntry {
	totals := make(map[Category]decimal.Decimal, len(Categories))
	for _, c := range Categories {
		totals[c] = decimal.Zero
	}
	return &LedgerEntry{
		UserID:     userID,
		Date:       date,
		Totals:     totals,
		GrandTotal: decimal.Zero,
	}
}

// CategoryTotal returns the running total for one category (zero if unset).
func (e *LedgerEntry) CategoryTotal(c Category) decimal.Decimal {
	if v, ok := e.Totals[c]; ok {
		return v
	}
	return decimal.Zero
}

// Clone deep-copies the row so carry-forward never aliases the source map.
func (e *LedgerEntry) Clone() *LedgerEntry {
	cp := *e
	cp.Totals = make(map[Category]decimal.Decimal, len(e.Totals))
	for c, v := range e.Totals {
		cp.Totals[c] = v
	}
	return &cp
}

// CheckInvariant verifies GrandTotal == sum of category totals.
func (e *LedgerEntry) CheckInvariant() error {
	sum := decimal.Zero
	for _, c := range Categories {
		sum = sum.Add(e.CategoryTotal(c))
	}
	if !sum.Equal(e.GrandTotal) {
		return &LedgerInvariantError{
			UserID:     e.UserID,
			Date:       e.Date,
			GrandTotal: e.GrandTotal,
			Sum:        sum,
		}
	}
	return nil
}

// LedgerSortFields are the accepted sort keys for ledger history queries.
var LedgerSortFields = map[string]bool{
	"date":        true,
	"grand_total": true,
}

// =============================================================================
// USER - Gate state and ownership
// =============================================================================

// User owns entries, ledger rows, and analyses. LastAnalysisDate is the
// daily analysis gate: a run is refused while it equals the current day.
type User struct {
	ID               string
	Name             string
	Email            string
	CreatedAt        time.Time
	LastAnalysisDate *Date
}

// =============================================================================
// ANALYSIS RECORD - Persisted result of one analysis run
// =============================================================================

// AnalysisSection is the parsed output for one category: a hyphen-bulleted
// insights block and a hyphen-bulleted recommendations block.
type AnalysisSection struct {
	Insights        string
	Recommendations string
}

// SectionOverall is the cross-category section name; the remaining section
// names are the Category constants.
const SectionOverall = "overall"

// SectionNames is the fixed output order of an analysis run.
var SectionNames = []string{
	SectionOverall,
	string(CategoryTransportation),
	string(CategoryEnergy),
	string(CategoryWaste),
	string(CategoryAppliances),
	string(CategoryWater),
	string(CategoryAirTravel),
}

// AnalysisRecord is one completed analysis run. Immutable once created.
type AnalysisRecord struct {
	ID         string
	UserID     string
	RangeLabel string
	RunDate    time.Time
	Sections   map[string]AnalysisSection
}
