package emission_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdant/emissions-engine/emission"
	memstore "github.com/verdant/emissions-engine/emission/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRecordStore() (*emission.RecordStore, *emission.TotalLedger) {
	store := memstore.NewMemory()
	ledger := emission.NewTotalLedger(store)
	return emission.NewRecordStore(store, ledger), ledger
}

func measurement(category emission.Category, subtype, quantity, factor string) emission.Measurement {
	return emission.Measurement{
		UserID:         "user-1",
		Date:           emission.NewDate(2026, 3, 10),
		Category:       category,
		Subtype:        subtype,
		Quantity:       dec(quantity),
		EmissionFactor: dec(factor),
	}
}

// =============================================================================
// FORMULAS
// =============================================================================

func TestRecord_Transportation_DistanceTimesFactor(t *testing.T) {
	records, _ := newTestRecordStore()

	entry, _, err := records.Record(context.Background(),
		measurement(emission.CategoryTransportation, "car", "100", "0.21"))
	require.NoError(t, err)

	assert.True(t, entry.Emissions.Equal(dec("21")), "100 km x 0.21 = 21 kg")
}

func TestRecord_Appliances_UsageTimesPowerTimesFactor(t *testing.T) {
	records, _ := newTestRecordStore()

	m := measurement(emission.CategoryAppliances, "washer", "2", "0.5")
	m.PowerRating = dec("1.5")

	entry, _, err := records.Record(context.Background(), m)
	require.NoError(t, err)

	assert.True(t, entry.Emissions.Equal(dec("1.5")), "2 h x 1.5 kW x 0.5 = 1.5 kg")
}

// =============================================================================
// ACCUMULATION
// =============================================================================

func TestRecord_SameKey_AccumulatesIntoOneEntry(t *testing.T) {
	// GIVEN: An existing entry for (user, date, transportation, car)
	// WHEN: A second measurement arrives for the same key
	// THEN: Quantity and emissions add in place; the entry keeps its ID

	records, _ := newTestRecordStore()
	ctx := context.Background()

	first, _, err := records.Record(ctx, measurement(emission.CategoryTransportation, "car", "10", "0.2"))
	require.NoError(t, err)

	second, _, err := records.Record(ctx, measurement(emission.CategoryTransportation, "car", "20", "0.2"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same key accumulates, never creates a second row")
	assert.True(t, second.Quantity.Equal(dec("30")))
	assert.True(t, second.Emissions.Equal(dec("6")))
}

func TestRecord_DifferentSubtype_SeparateEntries(t *testing.T) {
	records, _ := newTestRecordStore()
	ctx := context.Background()

	car, _, err := records.Record(ctx, measurement(emission.CategoryTransportation, "car", "10", "0.2"))
	require.NoError(t, err)
	bus, _, err := records.Record(ctx, measurement(emission.CategoryTransportation, "bus", "10", "0.1"))
	require.NoError(t, err)

	assert.NotEqual(t, car.ID, bus.ID)

	entries, err := records.CategoryData(ctx, "user-1", emission.CategoryTransportation, "subtype")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRecord_LedgerReceivesDelta_NotAccumulatedTotal(t *testing.T) {
	// GIVEN: Two measurements accumulating into one entry
	// WHEN: Each feeds the ledger
	// THEN: The ledger total is the sum of deltas, not double-counted

	records, ledger := newTestRecordStore()
	ctx := context.Background()

	_, _, err := records.Record(ctx, measurement(emission.CategoryTransportation, "car", "10", "0.2"))
	require.NoError(t, err)
	_, total, err := records.Record(ctx, measurement(emission.CategoryTransportation, "car", "20", "0.2"))
	require.NoError(t, err)

	assert.True(t, total.GrandTotal.Equal(dec("6")), "2 + 4, not 2 + 6")

	row, err := ledger.MostRecent(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, row.GrandTotal.Equal(dec("6")))
	assert.NoError(t, row.CheckInvariant())
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestRecord_Validation(t *testing.T) {
	records, _ := newTestRecordStore()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*emission.Measurement)
	}{
		{"missing user", func(m *emission.Measurement) { m.UserID = "" }},
		{"zero date", func(m *emission.Measurement) { m.Date = emission.Date{} }},
		{"missing subtype", func(m *emission.Measurement) { m.Subtype = "" }},
		{"negative quantity", func(m *emission.Measurement) { m.Quantity = dec("-1") }},
		{"negative factor", func(m *emission.Measurement) { m.EmissionFactor = dec("-0.1") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := measurement(emission.CategoryWaste, "organic", "5", "0.3")
			tc.mutate(&m)

			_, _, err := records.Record(ctx, m)
			assert.True(t, emission.IsClientError(err))
		})
	}
}

func TestRecord_Energy_SubtypeAllowlist(t *testing.T) {
	records, _ := newTestRecordStore()
	ctx := context.Background()

	_, _, err := records.Record(ctx, measurement(emission.CategoryEnergy, "coal", "5", "0.3"))
	assert.True(t, emission.IsClientError(err), "only grid and renewable are accepted")

	_, _, err = records.Record(ctx, measurement(emission.CategoryEnergy, "renewable", "5", "0.3"))
	assert.NoError(t, err)
}

func TestRecord_Appliances_RequiresPowerRating(t *testing.T) {
	records, _ := newTestRecordStore()

	m := measurement(emission.CategoryAppliances, "fridge", "24", "0.4")
	_, _, err := records.Record(context.Background(), m)
	assert.True(t, emission.IsClientError(err))
}

func TestRecord_ZeroQuantity_Accepted(t *testing.T) {
	// Zero quantity is a valid no-op data point, distinct from negative.
	records, _ := newTestRecordStore()

	entry, _, err := records.Record(context.Background(),
		measurement(emission.CategoryWater, "shower", "0", "0.3"))
	require.NoError(t, err)
	assert.True(t, entry.Emissions.IsZero())
}

// =============================================================================
// CATEGORY DATA
// =============================================================================

func TestCategoryData_SortedByRequestedField(t *testing.T) {
	records, _ := newTestRecordStore()
	ctx := context.Background()

	_, _, err := records.Record(ctx, measurement(emission.CategoryWaste, "plastic", "2", "6"))
	require.NoError(t, err)
	_, _, err = records.Record(ctx, measurement(emission.CategoryWaste, "organic", "8", "0.5"))
	require.NoError(t, err)

	entries, err := records.CategoryData(ctx, "user-1", emission.CategoryWaste, "emissions")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "organic", entries[0].Subtype, "4 kg sorts before 12 kg")
	assert.Equal(t, "plastic", entries[1].Subtype)
}

func TestCategoryData_Empty_NotFound(t *testing.T) {
	records, _ := newTestRecordStore()

	_, err := records.CategoryData(context.Background(), "user-1", emission.CategoryEnergy, "date")
	assert.True(t, emission.IsNotFound(err))
}

func TestCategoryData_UnknownSortField_Rejected(t *testing.T) {
	records, _ := newTestRecordStore()

	_, err := records.CategoryData(context.Background(), "user-1", emission.CategoryEnergy, "bogus")
	assert.True(t, emission.IsClientError(err))
}
