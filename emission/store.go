/*
store.go - Persistence interfaces for the emissions engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  The core treats persistence as a generic transactional record store;
  implementations exist for SQLite (store/sqlite) and in-memory
  (emission/store) for tests and development.

KEY INTERFACES:
  EntryStore:    Raw per-category measurement rows
  LedgerStore:   Per-user, per-day cumulative total rows
  UserStore:     Users and the last-analysis-date gate
  AnalysisStore: Immutable analysis records
  Store:         All of the above plus WithTx

ATOMICITY:
  WithTx gives all-or-nothing semantics across multiple writes. Recording
  a measurement touches two tables (entry upsert + ledger row); persisting
  an analysis touches two as well (record insert + gate advance). Either
  both writes land or neither does, so the ledger is never left partially
  updated and the daily gate never advances past a failed record write.

SORT KEYS:
  List queries take a sort field already validated against
  EntrySortFields / LedgerSortFields; implementations may treat an empty
  field as "date".

SEE ALSO:
  - store/sqlite/sqlite.go: Production implementation
  - emission/store/memory.go: In-memory implementation for testing
*/
package emission

import "context"

// =============================================================================
// ENTRY STORE - Raw measurement rows
// =============================================================================

// EntryStore persists accumulated measurement rows.
type EntryStore interface {
	// FindEntry returns the entry for the exact accumulation key, or nil.
	FindEntry(ctx context.Context, userID string, date Date, category Category, subtype string) (*EmissionEntry, error)

	// UpsertEntry inserts or replaces the entry for its accumulation key.
	UpsertEntry(ctx context.Context, entry EmissionEntry) error

	// EntriesByUser returns all of a user's rows in one category, sorted
	// ascending by sortBy ("" means date).
	EntriesByUser(ctx context.Context, userID string, category Category, sortBy string) ([]EmissionEntry, error)

	// EntriesSince returns a user's rows in one category with date >= from.
	EntriesSince(ctx context.Context, userID string, category Category, from Date) ([]EmissionEntry, error)
}

// =============================================================================
// LEDGER STORE - Cumulative total rows
// =============================================================================

// LedgerStore persists ledger rows. One row per (user, date).
type LedgerStore interface {
	// LedgerRow returns the row keyed exactly by (userID, date), or nil.
	LedgerRow(ctx context.Context, userID string, date Date) (*LedgerEntry, error)

	// MostRecentLedgerRow returns the user's latest row, or nil if none.
	// When onOrBefore is non-nil, rows dated after it are ignored; this is
	// the carry-forward source lookup, which must never see the future of
	// the date being written.
	MostRecentLedgerRow(ctx context.Context, userID string, onOrBefore *Date) (*LedgerEntry, error)

	// SaveLedgerRow inserts or replaces the row for (UserID, Date).
	SaveLedgerRow(ctx context.Context, row LedgerEntry) error

	// LedgerRowsByUser returns all of a user's rows sorted ascending by
	// sortBy ("" means date).
	LedgerRowsByUser(ctx context.Context, userID string, sortBy string) ([]LedgerEntry, error)

	// LedgerRowsSince returns a user's rows with date >= from.
	LedgerRowsSince(ctx context.Context, userID string, from Date) ([]LedgerEntry, error)
}

// =============================================================================
// USER STORE - Gate state
// =============================================================================

type UserStore interface {
	SaveUser(ctx context.Context, user User) error

	// GetUser returns the user or nil.
	GetUser(ctx context.Context, id string) (*User, error)

	ListUsers(ctx context.Context) ([]User, error)

	// SetLastAnalysisDate advances the daily analysis gate.
	SetLastAnalysisDate(ctx context.Context, userID string, date Date) error
}

// =============================================================================
// ANALYSIS STORE - Immutable analysis records
// =============================================================================

type AnalysisStore interface {
	// SaveAnalysis persists a completed run. Records are never updated.
	SaveAnalysis(ctx context.Context, record AnalysisRecord) error

	// AnalysesByUser returns a user's records newest-first.
	AnalysesByUser(ctx context.Context, userID string) ([]AnalysisRecord, error)

	// RecentAnalyses returns up to n newest records for prompt context.
	RecentAnalyses(ctx context.Context, userID string, n int) ([]AnalysisRecord, error)
}

// =============================================================================
// STORE - Everything, plus transactions
// =============================================================================

// Store is the full persistence surface consumed by the engine.
type Store interface {
	EntryStore
	LedgerStore
	UserStore
	AnalysisStore

	// WithTx executes fn against a transactional view of the store.
	// If fn returns an error, every write made through the view is
	// rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
