/*
Package analysis implements the throttled multi-category emissions analysis
pipeline.

PURPOSE:
  An analysis run fetches a week of cross-category data, summarizes each
  category into compact text, issues one rate-limited text-generation call
  per category (overall + six categories, fixed order), parses the
  free-form responses into insight/recommendation sections, and persists
  the result under a once-per-day gate.

DEGRADATION LADDER:
  Every stage has a local fallback and nothing aborts the batch:
    - empty category data     -> canned "no usage data" section, no model call
    - summarization failure   -> "Data summary unavailable", pipeline continues
    - model call failure      -> canned "service unavailable" section
    - unparseable model text  -> per-section fallback sentence

THIS FILE (summary.go):
  Converts raw per-category rows into the compact textual summaries that
  are embedded in prompts.
*/
package analysis

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/verdant/emissions-engine/emission"
)

// =============================================================================
// CATEGORY SUMMARIES
// =============================================================================

const (
	noDataSummary      = "No data available"
	summaryUnavailable = "Data summary unavailable"
)

// Summarize renders one category's rows as a compact text block.
// Subtype categories get one line per subtype with summed quantity and
// emissions; air travel gets two aggregate lines. Summarization never
// fails: an internal panic degrades to a fixed placeholder.
func Summarize(category emission.Category, entries []emission.EmissionEntry) (out string) {
	defer func() {
		if recover() != nil {
			out = summaryUnavailable
		}
	}()

	if len(entries) == 0 {
		return noDataSummary
	}

	if category == emission.CategoryAirTravel {
		totalDistance := decimal.Zero
		totalEmissions := decimal.Zero
		for _, e := range entries {
			totalDistance = totalDistance.Add(e.Quantity)
			totalEmissions = totalEmissions.Add(e.Emissions)
		}
		return fmt.Sprintf("Total Distance: %s km\nTotal Emissions: %s kg CO2",
			totalDistance.StringFixed(2), totalEmissions.StringFixed(2))
	}

	// Group by subtype, preserving first-seen order for stable output.
	type bucket struct {
		quantity  decimal.Decimal
		emissions decimal.Decimal
	}
	order := make([]string, 0, len(entries))
	buckets := make(map[string]*bucket)
	for _, e := range entries {
		b, ok := buckets[e.Subtype]
		if !ok {
			b = &bucket{quantity: decimal.Zero, emissions: decimal.Zero}
			buckets[e.Subtype] = b
			order = append(order, e.Subtype)
		}
		b.quantity = b.quantity.Add(e.Quantity)
		b.emissions = b.emissions.Add(e.Emissions)
	}

	unit := category.QuantityUnit()
	lines := make([]string, 0, len(order))
	for _, subtype := range order {
		b := buckets[subtype]
		lines = append(lines, fmt.Sprintf("- %s: %s %s, %s kg CO2",
			subtype, b.quantity.StringFixed(2), unit, b.emissions.StringFixed(2)))
	}
	return strings.Join(lines, "\n")
}

// SummarizeOverall renders the ledger rows for the window as a one-line
// grand-total summary.
func SummarizeOverall(rows []emission.LedgerEntry) string {
	if len(rows) == 0 {
		return "No overall emissions data"
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.GrandTotal)
	}
	return fmt.Sprintf("Total emissions: %s kg CO2", total.StringFixed(2))
}
