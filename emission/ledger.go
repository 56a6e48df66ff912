/*
ledger.go - Cumulative per-user, per-day emission totals

PURPOSE:
  TotalLedger maintains the carried-forward cumulative totals across all
  six categories plus the grand total. Every accepted measurement feeds
  its *delta* emissions here, so ledger updates are incremental and the
  invariant GrandTotal == sum(category totals) holds by construction:
  the touched category and the grand total are always incremented
  together, never recomputed independently.

CARRY-FORWARD:
  A write for a day with no existing row seeds the new row from the most
  recent row dated on or before the written day (zeroes if none), then
  adds the delta. Untouched categories keep their carried totals, so
  "most recent row" reads always see complete running totals.

  Carry-forward deliberately ignores rows dated later than the written
  day: a backfilled write must never absorb totals from its own future.
  Rows already written after a backfilled date are not retro-adjusted.

CONCURRENCY:
  The update is a read-modify-write across two lookups (most-recent row,
  then same-day row). Concurrent writers for the same user would race and
  lose deltas, so ApplyDelta serializes per user with a keyed mutex.
  Different users never contend.

SEE ALSO:
  - record.go: The only caller feeding deltas
  - store.go: LedgerStore interface
*/
package emission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TOTAL LEDGER
// =============================================================================

// TotalLedger folds emission deltas into per-user daily total rows.
type TotalLedger struct {
	store LedgerStore

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func NewTotalLedger(store LedgerStore) *TotalLedger {
	return &TotalLedger{
		store: store,
		users: make(map[string]*sync.Mutex),
	}
}

// lockUser serializes ledger mutations for one user. Returns the unlock.
func (l *TotalLedger) lockUser(userID string) func() {
	l.mu.Lock()
	um, ok := l.users[userID]
	if !ok {
		um = &sync.Mutex{}
		l.users[userID] = um
	}
	l.mu.Unlock()

	um.Lock()
	return um.Unlock
}

// ApplyDelta folds deltaEmissions for one category into the user's row for
// date, creating the row via carry-forward if it does not exist yet.
// Returns the updated row.
func (l *TotalLedger) ApplyDelta(ctx context.Context, userID string, date Date, category Category, deltaEmissions decimal.Decimal) (*LedgerEntry, error) {
	unlock := l.lockUser(userID)
	defer unlock()

	return l.applyDelta(ctx, l.store, userID, date, category, deltaEmissions)
}

// applyDelta is the lock-free core, usable against a transactional store
// view while the caller holds the user lock.
func (l *TotalLedger) applyDelta(ctx context.Context, store LedgerStore, userID string, date Date, category Category, deltaEmissions decimal.Decimal) (*LedgerEntry, error) {
	row, err := store.LedgerRow(ctx, userID, date)
	if err != nil {
		return nil, &StorageError{Op: "ledger lookup", Err: err}
	}

	now := time.Now().UTC()
	if row == nil {
		// New day: seed every category from the carry-forward source.
		prev, err := store.MostRecentLedgerRow(ctx, userID, &date)
		if err != nil {
			return nil, &StorageError{Op: "ledger carry-forward lookup", Err: err}
		}
		if prev != nil {
			row = prev.Clone()
			row.Date = date
		} else {
			row = NewLedgerEntry(userID, date)
		}
		row.CreatedAt = now
	}

	row.Totals[category] = row.CategoryTotal(category).Add(deltaEmissions)
	row.GrandTotal = row.GrandTotal.Add(deltaEmissions)
	row.UpdatedAt = now

	if err := row.CheckInvariant(); err != nil {
		return nil, fmt.Errorf("refusing ledger write: %w", err)
	}

	if err := store.SaveLedgerRow(ctx, *row); err != nil {
		return nil, &StorageError{Op: "ledger write", Err: err}
	}
	return row, nil
}

// MostRecent returns the user's latest ledger row.
func (l *TotalLedger) MostRecent(ctx context.Context, userID string) (*LedgerEntry, error) {
	row, err := l.store.MostRecentLedgerRow(ctx, userID, nil)
	if err != nil {
		return nil, &StorageError{Op: "ledger lookup", Err: err}
	}
	if row == nil {
		return nil, &NotFoundError{Resource: "emission records", UserID: userID}
	}
	return row, nil
}

// History returns all of the user's ledger rows sorted by sortBy.
func (l *TotalLedger) History(ctx context.Context, userID, sortBy string) ([]LedgerEntry, error) {
	if sortBy != "" && !LedgerSortFields[sortBy] {
		return nil, &InvalidInputError{Field: "sort_by", Message: fmt.Sprintf("unknown sort field %q", sortBy)}
	}
	rows, err := l.store.LedgerRowsByUser(ctx, userID, sortBy)
	if err != nil {
		return nil, &StorageError{Op: "ledger history", Err: err}
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Resource: "total emissions data", UserID: userID}
	}
	return rows, nil
}
