/*
record.go - Measurement intake: validate, compute, upsert-accumulate

PURPOSE:
  RecordStore owns the raw per-category measurement rows. A submission is
  validated, its emissions computed from the category formula, then folded
  into the existing row for (user, date, category, subtype) - accumulation,
  not replacement. The delta emissions (never the accumulated total) feed
  TotalLedger so the ledger update stays incremental.

ATOMICITY:
  The entry upsert and the ledger update run inside one store transaction.
  If the ledger write fails, the entry accumulation rolls back with it:
  a measurement is either fully applied or not applied at all.

FORMULAS:
  transportation, air travel:  distance x factor
  energy, water, waste:        usage x factor
  appliances:                  usage time x power rating x factor
*/
package emission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// RECORD STORE
// =============================================================================

// RecordStore validates and accumulates raw measurements.
type RecordStore struct {
	store  Store
	ledger *TotalLedger
}

func NewRecordStore(store Store, ledger *TotalLedger) *RecordStore {
	return &RecordStore{store: store, ledger: ledger}
}

// validEnergySubtypes mirrors the accepted energy sources.
var validEnergySubtypes = map[string]bool{
	"grid":      true,
	"renewable": true,
}

// Validate checks required fields and category-specific constraints.
func (m Measurement) Validate() error {
	if m.UserID == "" {
		return &InvalidInputError{Field: "user_id", Message: "required"}
	}
	if m.Date.IsZero() {
		return &InvalidInputError{Field: "date", Message: "invalid date format, use YYYY-MM-DD"}
	}
	if m.Subtype == "" {
		return &InvalidInputError{Field: "subtype", Message: "required"}
	}
	if m.Category == CategoryEnergy && !validEnergySubtypes[m.Subtype] {
		return &InvalidInputError{Field: "subtype", Message: "invalid energy type, use 'grid' or 'renewable'"}
	}
	if m.Quantity.IsNegative() {
		return &InvalidInputError{Field: "quantity", Message: "must not be negative"}
	}
	if m.EmissionFactor.IsNegative() {
		return &InvalidInputError{Field: "emission_factor", Message: "must not be negative"}
	}
	if m.Category == CategoryAppliances && !m.PowerRating.IsPositive() {
		return &InvalidInputError{Field: "power_rating", Message: "required for appliances"}
	}
	return nil
}

// Record applies one measurement: upsert-accumulate the raw entry and feed
// the delta emissions to the ledger. Returns the updated entry and the
// updated ledger row.
func (r *RecordStore) Record(ctx context.Context, m Measurement) (*EmissionEntry, *LedgerEntry, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}

	delta := m.Emissions()

	// Hold the user's ledger lock across the whole read-modify-write so a
	// concurrent submission cannot interleave between the entry lookup
	// and the ledger update.
	unlock := r.ledger.lockUser(m.UserID)
	defer unlock()

	var (
		entry *EmissionEntry
		row   *LedgerEntry
	)
	err := r.store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.FindEntry(ctx, m.UserID, m.Date, m.Category, m.Subtype)
		if err != nil {
			return &StorageError{Op: "entry lookup", Err: err}
		}

		now := time.Now().UTC()
		if existing != nil {
			existing.Quantity = existing.Quantity.Add(m.Quantity)
			existing.Emissions = existing.Emissions.Add(delta)
			existing.UpdatedAt = now
			entry = existing
		} else {
			entry = &EmissionEntry{
				ID:             uuid.NewString(),
				UserID:         m.UserID,
				Date:           m.Date,
				Category:       m.Category,
				Subtype:        m.Subtype,
				Quantity:       m.Quantity,
				PowerRating:    m.PowerRating,
				EmissionFactor: m.EmissionFactor,
				Emissions:      delta,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
		}

		if err := tx.UpsertEntry(ctx, *entry); err != nil {
			return &StorageError{Op: "entry write", Err: err}
		}

		row, err = r.ledger.applyDelta(ctx, tx, m.UserID, m.Date, m.Category, delta)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, row, nil
}

// CategoryData returns a user's rows for one category, sorted ascending.
func (r *RecordStore) CategoryData(ctx context.Context, userID string, category Category, sortBy string) ([]EmissionEntry, error) {
	if userID == "" {
		return nil, &InvalidInputError{Field: "user_id", Message: "required"}
	}
	if sortBy != "" && !EntrySortFields[sortBy] {
		return nil, &InvalidInputError{Field: "sort_by", Message: fmt.Sprintf("unknown sort field %q", sortBy)}
	}

	entries, err := r.store.EntriesByUser(ctx, userID, category, sortBy)
	if err != nil {
		return nil, &StorageError{Op: "entry query", Err: err}
	}
	if len(entries) == 0 {
		return nil, &NotFoundError{Resource: string(category) + " data", UserID: userID}
	}
	return entries, nil
}
