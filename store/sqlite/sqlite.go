/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements emission.Store (entries, ledger rows, users, analyses) using
  SQLite. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  users:            User records plus the last-analysis-date gate
  emission_entries: Accumulated measurements, one row per
                    (user, date, category, subtype)
  total_ledger:     Per-user, per-day cumulative totals, one row per
                    (user, date)
  analyses:         Analysis records (insert-only, never updated)

INDEXES:
  Critical indexes for performance:
  - idx_entries_user_category_date: Category queries and 7-day windows
  - idx_ledger_user_date: Carry-forward source lookup (hot path)
  - idx_analyses_user_run: Recent-analysis retrieval

PRECISION:
  Quantities, factors, and totals are stored as decimal strings and
  parsed back through shopspring/decimal. Floating point never touches
  the ledger. CAST(... AS REAL) is used only for ORDER BY.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Per-user write serialization is
  the ledger's job, not the store's. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/emissions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - emission/store.go: Interface definitions
  - emission/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/verdant/emissions-engine/emission"
)

// Store implements emission.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Users and the daily analysis gate
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		created_at TEXT NOT NULL,
		last_analysis_date TEXT
	);

	-- Accumulated measurements
	CREATE TABLE IF NOT EXISTS emission_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		category TEXT NOT NULL,
		subtype TEXT NOT NULL,
		quantity TEXT NOT NULL,
		power_rating TEXT,
		emission_factor TEXT NOT NULL,
		emissions TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(user_id, date, category, subtype)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_user_category_date
		ON emission_entries(user_id, category, date);

	-- Per-user, per-day cumulative totals
	CREATE TABLE IF NOT EXISTS total_ledger (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		total_transportation TEXT NOT NULL,
		total_energy TEXT NOT NULL,
		total_waste TEXT NOT NULL,
		total_appliances TEXT NOT NULL,
		total_water TEXT NOT NULL,
		total_air_travel TEXT NOT NULL,
		grand_total TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_user_date
		ON total_ledger(user_id, date DESC);

	-- Analysis records (insert-only)
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		range_label TEXT NOT NULL,
		run_date TEXT NOT NULL,
		sections_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_user_run
		ON analyses(user_id, run_date DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer abstracts *sql.DB and *sql.Tx so the same statement helpers
// serve both direct calls and WithTx views.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// ENTRY STORE (emission.EntryStore interface)
// =============================================================================

func (s *Store) FindEntry(ctx context.Context, userID string, date emission.Date, category emission.Category, subtype string) (*emission.EmissionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findEntry(ctx, s.db, userID, date, category, subtype)
}

func findEntry(ctx context.Context, q queryer, userID string, date emission.Date, category emission.Category, subtype string) (*emission.EmissionEntry, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, date, category, subtype, quantity, power_rating,
		       emission_factor, emissions, created_at, updated_at
		FROM emission_entries
		WHERE user_id = ? AND date = ? AND category = ? AND subtype = ?
	`, userID, date.String(), string(category), subtype)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entry: %w", err)
	}
	return entry, nil
}

func (s *Store) UpsertEntry(ctx context.Context, entry emission.EmissionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertEntry(ctx, s.db, entry)
}

func upsertEntry(ctx context.Context, q queryer, entry emission.EmissionEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO emission_entries
		(id, user_id, date, category, subtype, quantity, power_rating,
		 emission_factor, emissions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date, category, subtype) DO UPDATE SET
			quantity = excluded.quantity,
			emissions = excluded.emissions,
			updated_at = excluded.updated_at
	`,
		entry.ID,
		entry.UserID,
		entry.Date.String(),
		string(entry.Category),
		entry.Subtype,
		entry.Quantity.String(),
		nullString(decimalString(entry.PowerRating)),
		entry.EmissionFactor.String(),
		entry.Emissions.String(),
		entry.CreatedAt.UTC().Format(time.RFC3339),
		entry.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

// entrySortColumns whitelists ORDER BY targets. Anything not listed
// falls back to date ordering; user input never reaches the SQL text.
var entrySortColumns = map[string]string{
	"date":      "date",
	"quantity":  "CAST(quantity AS REAL)",
	"emissions": "CAST(emissions AS REAL)",
	"subtype":   "subtype",
}

func (s *Store) EntriesByUser(ctx context.Context, userID string, category emission.Category, sortBy string) ([]emission.EmissionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesByUser(ctx, s.db, userID, category, sortBy)
}

func entriesByUser(ctx context.Context, q queryer, userID string, category emission.Category, sortBy string) ([]emission.EmissionEntry, error) {
	orderBy, ok := entrySortColumns[sortBy]
	if !ok {
		orderBy = "date"
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, date, category, subtype, quantity, power_rating,
		       emission_factor, emissions, created_at, updated_at
		FROM emission_entries
		WHERE user_id = ? AND category = ?
		ORDER BY %s ASC, date ASC, subtype ASC
	`, orderBy)

	return queryEntries(ctx, q, query, userID, string(category))
}

func (s *Store) EntriesSince(ctx context.Context, userID string, category emission.Category, from emission.Date) ([]emission.EmissionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesSince(ctx, s.db, userID, category, from)
}

func entriesSince(ctx context.Context, q queryer, userID string, category emission.Category, from emission.Date) ([]emission.EmissionEntry, error) {
	return queryEntries(ctx, q, `
		SELECT id, user_id, date, category, subtype, quantity, power_rating,
		       emission_factor, emissions, created_at, updated_at
		FROM emission_entries
		WHERE user_id = ? AND category = ? AND date >= ?
		ORDER BY date ASC, subtype ASC
	`, userID, string(category), from.String())
}

func queryEntries(ctx context.Context, q queryer, query string, args ...any) ([]emission.EmissionEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []emission.EmissionEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanEntry(r rowScanner) (*emission.EmissionEntry, error) {
	var (
		entry       emission.EmissionEntry
		date        string
		category    string
		quantity    string
		powerRating sql.NullString
		factor      string
		emissions   string
		createdAt   string
		updatedAt   string
	)

	err := r.Scan(
		&entry.ID, &entry.UserID, &date, &category, &entry.Subtype,
		&quantity, &powerRating, &factor, &emissions, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Date, _ = emission.ParseDate(date)
	entry.Category = emission.Category(category)
	entry.Quantity = parseDecimal(quantity)
	entry.PowerRating = parseDecimal(powerRating.String)
	entry.EmissionFactor = parseDecimal(factor)
	entry.Emissions = parseDecimal(emissions)
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	entry.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &entry, nil
}

// =============================================================================
// LEDGER STORE (emission.LedgerStore interface)
// =============================================================================

const ledgerColumns = `user_id, date, total_transportation, total_energy,
	total_waste, total_appliances, total_water, total_air_travel,
	grand_total, created_at, updated_at`

func (s *Store) LedgerRow(ctx context.Context, userID string, date emission.Date) (*emission.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledgerRow(ctx, s.db, userID, date)
}

func ledgerRow(ctx context.Context, q queryer, userID string, date emission.Date) (*emission.LedgerEntry, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM total_ledger
		WHERE user_id = ? AND date = ?
	`, userID, date.String())

	entry, err := scanLedgerRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger row: %w", err)
	}
	return entry, nil
}

func (s *Store) MostRecentLedgerRow(ctx context.Context, userID string, onOrBefore *emission.Date) (*emission.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return mostRecentLedgerRow(ctx, s.db, userID, onOrBefore)
}

func mostRecentLedgerRow(ctx context.Context, q queryer, userID string, onOrBefore *emission.Date) (*emission.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM total_ledger
		WHERE user_id = ?`
	args := []any{userID}
	if onOrBefore != nil {
		query += ` AND date <= ?`
		args = append(args, onOrBefore.String())
	}
	query += ` ORDER BY date DESC LIMIT 1`

	entry, err := scanLedgerRow(q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query most recent ledger row: %w", err)
	}
	return entry, nil
}

func (s *Store) SaveLedgerRow(ctx context.Context, row emission.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveLedgerRow(ctx, s.db, row)
}

func saveLedgerRow(ctx context.Context, q queryer, row emission.LedgerEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO total_ledger
		(user_id, date, total_transportation, total_energy, total_waste,
		 total_appliances, total_water, total_air_travel, grand_total,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			total_transportation = excluded.total_transportation,
			total_energy = excluded.total_energy,
			total_waste = excluded.total_waste,
			total_appliances = excluded.total_appliances,
			total_water = excluded.total_water,
			total_air_travel = excluded.total_air_travel,
			grand_total = excluded.grand_total,
			updated_at = excluded.updated_at
	`,
		row.UserID,
		row.Date.String(),
		row.CategoryTotal(emission.CategoryTransportation).String(),
		row.CategoryTotal(emission.CategoryEnergy).String(),
		row.CategoryTotal(emission.CategoryWaste).String(),
		row.CategoryTotal(emission.CategoryAppliances).String(),
		row.CategoryTotal(emission.CategoryWater).String(),
		row.CategoryTotal(emission.CategoryAirTravel).String(),
		row.GrandTotal.String(),
		row.CreatedAt.UTC().Format(time.RFC3339),
		row.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save ledger row: %w", err)
	}
	return nil
}

var ledgerSortColumns = map[string]string{
	"date":        "date",
	"grand_total": "CAST(grand_total AS REAL)",
}

func (s *Store) LedgerRowsByUser(ctx context.Context, userID string, sortBy string) ([]emission.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledgerRowsByUser(ctx, s.db, userID, sortBy)
}

func ledgerRowsByUser(ctx context.Context, q queryer, userID string, sortBy string) ([]emission.LedgerEntry, error) {
	orderBy, ok := ledgerSortColumns[sortBy]
	if !ok {
		orderBy = "date"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM total_ledger
		WHERE user_id = ?
		ORDER BY %s ASC, date ASC
	`, ledgerColumns, orderBy)

	return queryLedgerRows(ctx, q, query, userID)
}

func (s *Store) LedgerRowsSince(ctx context.Context, userID string, from emission.Date) ([]emission.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ledgerRowsSince(ctx, s.db, userID, from)
}

func ledgerRowsSince(ctx context.Context, q queryer, userID string, from emission.Date) ([]emission.LedgerEntry, error) {
	return queryLedgerRows(ctx, q, `
		SELECT `+ledgerColumns+`
		FROM total_ledger
		WHERE user_id = ? AND date >= ?
		ORDER BY date ASC
	`, userID, from.String())
}

func queryLedgerRows(ctx context.Context, q queryer, query string, args ...any) ([]emission.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger rows: %w", err)
	}
	defer rows.Close()

	var entries []emission.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanLedgerRow(r rowScanner) (*emission.LedgerEntry, error) {
	var (
		userID         string
		date           string
		transportation string
		energy         string
		waste          string
		appliances     string
		water          string
		airTravel      string
		grandTotal     string
		createdAt      string
		updatedAt      string
	)

	err := r.Scan(&userID, &date, &transportation, &energy, &waste,
		&appliances, &water, &airTravel, &grandTotal, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d, _ := emission.ParseDate(date)
	entry := emission.NewLedgerEntry(userID, d)
	entry.Totals[emission.CategoryTransportation] = parseDecimal(transportation)
	entry.Totals[emission.CategoryEnergy] = parseDecimal(energy)
	entry.Totals[emission.CategoryWaste] = parseDecimal(waste)
	entry.Totals[emission.CategoryAppliances] = parseDecimal(appliances)
	entry.Totals[emission.CategoryWater] = parseDecimal(water)
	entry.Totals[emission.CategoryAirTravel] = parseDecimal(airTravel)
	entry.GrandTotal = parseDecimal(grandTotal)
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	entry.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return entry, nil
}

// =============================================================================
// USER STORE (emission.UserStore interface)
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, user emission.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveUser(ctx, s.db, user)
}

func saveUser(ctx context.Context, q queryer, user emission.User) error {
	var lastAnalysis any
	if user.LastAnalysisDate != nil {
		lastAnalysis = user.LastAnalysisDate.String()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, created_at, last_analysis_date)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			last_analysis_date = excluded.last_analysis_date
	`,
		user.ID,
		user.Name,
		nullString(user.Email),
		user.CreatedAt.UTC().Format(time.RFC3339),
		lastAnalysis,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*emission.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(ctx, s.db, id)
}

func getUser(ctx context.Context, q queryer, id string) (*emission.User, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, email, created_at, last_analysis_date
		FROM users WHERE id = ?
	`, id)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]emission.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUsers(ctx, s.db)
}

func listUsers(ctx context.Context, q queryer) ([]emission.User, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, email, created_at, last_analysis_date
		FROM users ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []emission.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func scanUser(r rowScanner) (*emission.User, error) {
	var (
		user         emission.User
		email        sql.NullString
		createdAt    string
		lastAnalysis sql.NullString
	)

	if err := r.Scan(&user.ID, &user.Name, &email, &createdAt, &lastAnalysis); err != nil {
		return nil, err
	}

	user.Email = email.String
	user.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastAnalysis.Valid && lastAnalysis.String != "" {
		if d, err := emission.ParseDate(lastAnalysis.String); err == nil {
			user.LastAnalysisDate = &d
		}
	}
	return &user, nil
}

func (s *Store) SetLastAnalysisDate(ctx context.Context, userID string, date emission.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setLastAnalysisDate(ctx, s.db, userID, date)
}

func setLastAnalysisDate(ctx context.Context, q queryer, userID string, date emission.Date) error {
	res, err := q.ExecContext(ctx,
		`UPDATE users SET last_analysis_date = ? WHERE id = ?`,
		date.String(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set last analysis date: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &emission.NotFoundError{Resource: "user", UserID: userID}
	}
	return nil
}

// =============================================================================
// ANALYSIS STORE (emission.AnalysisStore interface)
// =============================================================================

// sectionJSON is the persisted shape of one analysis section.
type sectionJSON struct {
	Insights        string `json:"insights"`
	Recommendations string `json:"recommendations"`
}

func (s *Store) SaveAnalysis(ctx context.Context, record emission.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAnalysis(ctx, s.db, record)
}

func saveAnalysis(ctx context.Context, q queryer, record emission.AnalysisRecord) error {
	sections := make(map[string]sectionJSON, len(record.Sections))
	for name, sec := range record.Sections {
		sections[name] = sectionJSON{
			Insights:        sec.Insights,
			Recommendations: sec.Recommendations,
		}
	}
	payload, err := json.Marshal(sections)
	if err != nil {
		return fmt.Errorf("failed to encode analysis sections: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO analyses (id, user_id, range_label, run_date, sections_json)
		VALUES (?, ?, ?, ?, ?)
	`,
		record.ID,
		record.UserID,
		record.RangeLabel,
		record.RunDate.UTC().Format(time.RFC3339),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

func (s *Store) AnalysesByUser(ctx context.Context, userID string) ([]emission.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return analysesByUser(ctx, s.db, userID, 0)
}

func (s *Store) RecentAnalyses(ctx context.Context, userID string, n int) ([]emission.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return analysesByUser(ctx, s.db, userID, n)
}

func analysesByUser(ctx context.Context, q queryer, userID string, limit int) ([]emission.AnalysisRecord, error) {
	query := `
		SELECT id, user_id, range_label, run_date, sections_json
		FROM analyses
		WHERE user_id = ?
		ORDER BY run_date DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var records []emission.AnalysisRecord
	for rows.Next() {
		var (
			record       emission.AnalysisRecord
			runDate      string
			sectionsJSON string
		)
		err := rows.Scan(&record.ID, &record.UserID, &record.RangeLabel,
			&runDate, &sectionsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		record.RunDate, _ = time.Parse(time.RFC3339, runDate)

		var sections map[string]sectionJSON
		if err := json.Unmarshal([]byte(sectionsJSON), &sections); err != nil {
			return nil, fmt.Errorf("failed to decode analysis sections: %w", err)
		}
		record.Sections = make(map[string]emission.AnalysisSection, len(sections))
		for name, sec := range sections {
			record.Sections[name] = emission.AnalysisSection{
				Insights:        sec.Insights,
				Recommendations: sec.Recommendations,
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The transaction is
// rolled back if fn returns an error and committed otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(emission.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the transactional view handed to WithTx callbacks.
// The parent's mutex is already held; no further locking here.
type txStore struct {
	q queryer
}

func (t *txStore) FindEntry(ctx context.Context, userID string, date emission.Date, category emission.Category, subtype string) (*emission.EmissionEntry, error) {
	return findEntry(ctx, t.q, userID, date, category, subtype)
}

func (t *txStore) UpsertEntry(ctx context.Context, entry emission.EmissionEntry) error {
	return upsertEntry(ctx, t.q, entry)
}

func (t *txStore) EntriesByUser(ctx context.Context, userID string, category emission.Category, sortBy string) ([]emission.EmissionEntry, error) {
	return entriesByUser(ctx, t.q, userID, category, sortBy)
}

func (t *txStore) EntriesSince(ctx context.Context, userID string, category emission.Category, from emission.Date) ([]emission.EmissionEntry, error) {
	return entriesSince(ctx, t.q, userID, category, from)
}

func (t *txStore) LedgerRow(ctx context.Context, userID string, date emission.Date) (*emission.LedgerEntry, error) {
	return ledgerRow(ctx, t.q, userID, date)
}

func (t *txStore) MostRecentLedgerRow(ctx context.Context, userID string, onOrBefore *emission.Date) (*emission.LedgerEntry, error) {
	return mostRecentLedgerRow(ctx, t.q, userID, onOrBefore)
}

func (t *txStore) SaveLedgerRow(ctx context.Context, row emission.LedgerEntry) error {
	return saveLedgerRow(ctx, t.q, row)
}

func (t *txStore) LedgerRowsByUser(ctx context.Context, userID string, sortBy string) ([]emission.LedgerEntry, error) {
	return ledgerRowsByUser(ctx, t.q, userID, sortBy)
}

func (t *txStore) LedgerRowsSince(ctx context.Context, userID string, from emission.Date) ([]emission.LedgerEntry, error) {
	return ledgerRowsSince(ctx, t.q, userID, from)
}

func (t *txStore) SaveUser(ctx context.Context, user emission.User) error {
	return saveUser(ctx, t.q, user)
}

func (t *txStore) GetUser(ctx context.Context, id string) (*emission.User, error) {
	return getUser(ctx, t.q, id)
}

func (t *txStore) ListUsers(ctx context.Context) ([]emission.User, error) {
	return listUsers(ctx, t.q)
}

func (t *txStore) SetLastAnalysisDate(ctx context.Context, userID string, date emission.Date) error {
	return setLastAnalysisDate(ctx, t.q, userID, date)
}

func (t *txStore) SaveAnalysis(ctx context.Context, record emission.AnalysisRecord) error {
	return saveAnalysis(ctx, t.q, record)
}

func (t *txStore) AnalysesByUser(ctx context.Context, userID string) ([]emission.AnalysisRecord, error) {
	return analysesByUser(ctx, t.q, userID, 0)
}

func (t *txStore) RecentAnalyses(ctx context.Context, userID string, n int) ([]emission.AnalysisRecord, error) {
	return analysesByUser(ctx, t.q, userID, n)
}

// WithTx on a transactional view runs fn in the same transaction.
func (t *txStore) WithTx(ctx context.Context, fn func(emission.Store) error) error {
	return fn(t)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalString(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
