package emission_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdant/emissions-engine/emission"
	memstore "github.com/verdant/emissions-engine/emission/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger() (*emission.TotalLedger, *memstore.Memory) {
	store := memstore.NewMemory()
	return emission.NewTotalLedger(store), store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// DELTA APPLICATION
// =============================================================================

func TestTotalLedger_FirstDelta_CreatesZeroSeededRow(t *testing.T) {
	// GIVEN: A user with no ledger rows at all
	// WHEN: Applying a transportation delta of 10
	// THEN: A row is created with transportation=10, other categories=0, grand=10

	ledger, _ := newTestLedger()
	ctx := context.Background()
	day := emission.NewDate(2026, 3, 10)

	row, err := ledger.ApplyDelta(ctx, "user-1", day, emission.CategoryTransportation, dec("10"))
	require.NoError(t, err)

	assert.True(t, row.CategoryTotal(emission.CategoryTransportation).Equal(dec("10")))
	assert.True(t, row.CategoryTotal(emission.CategoryEnergy).IsZero())
	assert.True(t, row.GrandTotal.Equal(dec("10")))
	assert.NoError(t, row.CheckInvariant())
}

func TestTotalLedger_CarryForward_SeedsNewDayFromPreviousRow(t *testing.T) {
	// GIVEN: Day 1 has transportation=10
	// WHEN: Day 2 receives an energy delta of 5
	// THEN: Day 2 carries transportation=10 forward and adds energy=5, grand=15

	ledger, _ := newTestLedger()
	ctx := context.Background()
	day1 := emission.NewDate(2026, 3, 10)
	day2 := day1.AddDays(1)

	_, err := ledger.ApplyDelta(ctx, "user-1", day1, emission.CategoryTransportation, dec("10"))
	require.NoError(t, err)

	row, err := ledger.ApplyDelta(ctx, "user-1", day2, emission.CategoryEnergy, dec("5"))
	require.NoError(t, err)

	assert.True(t, row.CategoryTotal(emission.CategoryTransportation).Equal(dec("10")),
		"untouched category keeps carried total")
	assert.True(t, row.CategoryTotal(emission.CategoryEnergy).Equal(dec("5")))
	assert.True(t, row.GrandTotal.Equal(dec("15")))

	// Day 1 row is untouched
	prev, err := ledger.History(ctx, "user-1", "date")
	require.NoError(t, err)
	require.Len(t, prev, 2)
	assert.True(t, prev[0].GrandTotal.Equal(dec("10")))
}

func TestTotalLedger_SameDay_MergesIntoOneRow(t *testing.T) {
	// GIVEN: A day that already has a transportation total
	// WHEN: More deltas land on the same day
	// THEN: The single row accumulates; no second row appears

	ledger, _ := newTestLedger()
	ctx := context.Background()
	day := emission.NewDate(2026, 3, 10)

	_, err := ledger.ApplyDelta(ctx, "user-1", day, emission.CategoryTransportation, dec("10"))
	require.NoError(t, err)
	_, err = ledger.ApplyDelta(ctx, "user-1", day, emission.CategoryTransportation, dec("2.5"))
	require.NoError(t, err)
	row, err := ledger.ApplyDelta(ctx, "user-1", day, emission.CategoryWater, dec("1"))
	require.NoError(t, err)

	assert.True(t, row.CategoryTotal(emission.CategoryTransportation).Equal(dec("12.5")))
	assert.True(t, row.CategoryTotal(emission.CategoryWater).Equal(dec("1")))
	assert.True(t, row.GrandTotal.Equal(dec("13.5")))

	rows, err := ledger.History(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTotalLedger_Backfill_NeverCarriesFromTheFuture(t *testing.T) {
	// GIVEN: A row already exists for day 5
	// WHEN: A delta is backfilled for day 2
	// THEN: Day 2 seeds from zero (no earlier row), not from day 5's totals,
	//       and day 5 is not retro-adjusted

	ledger, _ := newTestLedger()
	ctx := context.Background()
	day2 := emission.NewDate(2026, 3, 2)
	day5 := emission.NewDate(2026, 3, 5)

	_, err := ledger.ApplyDelta(ctx, "user-1", day5, emission.CategoryTransportation, dec("10"))
	require.NoError(t, err)

	row, err := ledger.ApplyDelta(ctx, "user-1", day2, emission.CategoryEnergy, dec("5"))
	require.NoError(t, err)

	assert.True(t, row.CategoryTotal(emission.CategoryTransportation).IsZero(),
		"backfilled row must not absorb later totals")
	assert.True(t, row.GrandTotal.Equal(dec("5")))

	rows, err := ledger.History(ctx, "user-1", "date")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[1].GrandTotal.Equal(dec("10")), "day 5 row unchanged")
}

func TestTotalLedger_DifferentUsers_Isolated(t *testing.T) {
	// GIVEN: Two users writing on the same day
	// WHEN: Each applies their own delta
	// THEN: Totals never cross user boundaries

	ledger, _ := newTestLedger()
	ctx := context.Background()
	day := emission.NewDate(2026, 3, 10)

	_, err := ledger.ApplyDelta(ctx, "user-a", day, emission.CategoryWaste, dec("3"))
	require.NoError(t, err)
	_, err = ledger.ApplyDelta(ctx, "user-b", day, emission.CategoryWaste, dec("7"))
	require.NoError(t, err)

	a, err := ledger.MostRecent(ctx, "user-a")
	require.NoError(t, err)
	b, err := ledger.MostRecent(ctx, "user-b")
	require.NoError(t, err)

	assert.True(t, a.GrandTotal.Equal(dec("3")))
	assert.True(t, b.GrandTotal.Equal(dec("7")))
}

func TestTotalLedger_ConcurrentDeltas_NoLostUpdates(t *testing.T) {
	// GIVEN: 50 goroutines writing deltas for the same user and day
	// WHEN: All complete
	// THEN: Every delta is reflected; the grand total equals the sum

	ledger, _ := newTestLedger()
	ctx := context.Background()
	day := emission.NewDate(2026, 3, 10)

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := ledger.ApplyDelta(ctx, "user-1", day, emission.CategoryEnergy, dec("1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	row, err := ledger.MostRecent(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, row.GrandTotal.Equal(decimal.NewFromInt(writers)),
		"expected %d, got %s", writers, row.GrandTotal)
	assert.NoError(t, row.CheckInvariant())
}

// =============================================================================
// READS
// =============================================================================

func TestTotalLedger_MostRecent_NoRows_NotFound(t *testing.T) {
	ledger, _ := newTestLedger()

	_, err := ledger.MostRecent(context.Background(), "ghost")
	assert.True(t, emission.IsNotFound(err))
}

func TestTotalLedger_MostRecent_ReturnsLatestDay(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	_, err := ledger.ApplyDelta(ctx, "user-1", emission.NewDate(2026, 3, 1), emission.CategoryWater, dec("1"))
	require.NoError(t, err)
	_, err = ledger.ApplyDelta(ctx, "user-1", emission.NewDate(2026, 3, 8), emission.CategoryWater, dec("2"))
	require.NoError(t, err)

	row, err := ledger.MostRecent(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-08", row.Date.String())
	assert.True(t, row.GrandTotal.Equal(dec("3")))
}

func TestTotalLedger_History_UnknownSortField_Rejected(t *testing.T) {
	ledger, _ := newTestLedger()

	_, err := ledger.History(context.Background(), "user-1", "emissions; DROP TABLE")
	assert.True(t, emission.IsClientError(err))
}

func TestTotalLedger_History_Empty_NotFound(t *testing.T) {
	ledger, _ := newTestLedger()

	_, err := ledger.History(context.Background(), "ghost", "date")
	assert.True(t, emission.IsNotFound(err))
}
