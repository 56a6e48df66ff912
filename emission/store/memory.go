// Package store provides an in-memory emission.Store for testing/dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/verdant/emissions-engine/emission"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	entries  map[entryKey]emission.EmissionEntry
	ledger   map[ledgerKey]emission.LedgerEntry
	users    map[string]emission.User
	analyses map[string][]emission.AnalysisRecord // newest first
}

type entryKey struct {
	UserID   string
	Date     string
	Category emission.Category
	Subtype  string
}

type ledgerKey struct {
	UserID string
	Date   string
}

func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[entryKey]emission.EmissionEntry),
		ledger:   make(map[ledgerKey]emission.LedgerEntry),
		users:    make(map[string]emission.User),
		analyses: make(map[string][]emission.AnalysisRecord),
	}
}

// =============================================================================
// ENTRY STORE
// =============================================================================

func (m *Memory) FindEntry(_ context.Context, userID string, date emission.Date, category emission.Category, subtype string) (*emission.EmissionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := entryKey{UserID: userID, Date: date.String(), Category: category, Subtype: subtype}
	if e, ok := m.entries[k]; ok {
		cp := e
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) UpsertEntry(_ context.Context, entry emission.EmissionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entryKey{UserID: entry.UserID, Date: entry.Date.String(), Category: entry.Category, Subtype: entry.Subtype}
	m.entries[k] = entry
	return nil
}

func (m *Memory) EntriesByUser(_ context.Context, userID string, category emission.Category, sortBy string) ([]emission.EmissionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []emission.EmissionEntry
	for k, e := range m.entries {
		if k.UserID == userID && k.Category == category {
			result = append(result, e)
		}
	}
	sortEntries(result, sortBy)
	return result, nil
}

func (m *Memory) EntriesSince(_ context.Context, userID string, category emission.Category, from emission.Date) ([]emission.EmissionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []emission.EmissionEntry
	for k, e := range m.entries {
		if k.UserID == userID && k.Category == category && !e.Date.Before(from) {
			result = append(result, e)
		}
	}
	sortEntries(result, "date")
	return result, nil
}

func sortEntries(entries []emission.EmissionEntry, sortBy string) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch sortBy {
		case "quantity":
			return a.Quantity.LessThan(b.Quantity)
		case "emissions":
			return a.Emissions.LessThan(b.Emissions)
		case "subtype":
			return a.Subtype < b.Subtype
		default:
			if !a.Date.Equal(b.Date) {
				return a.Date.Before(b.Date)
			}
			return a.Subtype < b.Subtype
		}
	})
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (m *Memory) LedgerRow(_ context.Context, userID string, date emission.Date) (*emission.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if row, ok := m.ledger[ledgerKey{UserID: userID, Date: date.String()}]; ok {
		return row.Clone(), nil
	}
	return nil, nil
}

func (m *Memory) MostRecentLedgerRow(_ context.Context, userID string, onOrBefore *emission.Date) (*emission.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *emission.LedgerEntry
	for k, row := range m.ledger {
		if k.UserID != userID {
			continue
		}
		if onOrBefore != nil && row.Date.After(*onOrBefore) {
			continue
		}
		if best == nil || row.Date.After(best.Date) {
			cp := row
			best = &cp
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Clone(), nil
}

func (m *Memory) SaveLedgerRow(_ context.Context, row emission.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ledger[ledgerKey{UserID: row.UserID, Date: row.Date.String()}] = *row.Clone()
	return nil
}

func (m *Memory) LedgerRowsByUser(_ context.Context, userID string, sortBy string) ([]emission.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []emission.LedgerEntry
	for k, row := range m.ledger {
		if k.UserID == userID {
			result = append(result, *row.Clone())
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if sortBy == "grand_total" {
			return result[i].GrandTotal.LessThan(result[j].GrandTotal)
		}
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

func (m *Memory) LedgerRowsSince(_ context.Context, userID string, from emission.Date) ([]emission.LedgerEntry, error) {
	rows, err := m.LedgerRowsByUser(context.Background(), userID, "date")
	if err != nil {
		return nil, err
	}
	var result []emission.LedgerEntry
	for _, row := range rows {
		if !row.Date.Before(from) {
			result = append(result, row)
		}
	}
	return result, nil
}

// =============================================================================
// USER STORE
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, user emission.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*emission.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if u, ok := m.users[id]; ok {
		cp := u
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]emission.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]emission.User, 0, len(m.users))
	for _, u := range m.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) SetLastAnalysisDate(_ context.Context, userID string, date emission.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return &emission.NotFoundError{Resource: "user", UserID: userID}
	}
	u.LastAnalysisDate = &date
	m.users[userID] = u
	return nil
}

// =============================================================================
// ANALYSIS STORE
// =============================================================================

func (m *Memory) SaveAnalysis(_ context.Context, record emission.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Prepend: records are kept newest first.
	m.analyses[record.UserID] = append([]emission.AnalysisRecord{record}, m.analyses[record.UserID]...)
	return nil
}

func (m *Memory) AnalysesByUser(_ context.Context, userID string) ([]emission.AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]emission.AnalysisRecord, len(m.analyses[userID]))
	copy(result, m.analyses[userID])
	return result, nil
}

func (m *Memory) RecentAnalyses(ctx context.Context, userID string, n int) ([]emission.AnalysisRecord, error) {
	all, err := m.AnalysesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx simulates a transaction with a snapshot restored on error.
func (m *Memory) WithTx(_ context.Context, fn func(emission.Store) error) error {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := fn(&txView{parent: m}); err != nil {
		m.mu.Lock()
		m.restoreLocked(snapshot)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	entries  map[entryKey]emission.EmissionEntry
	ledger   map[ledgerKey]emission.LedgerEntry
	users    map[string]emission.User
	analyses map[string][]emission.AnalysisRecord
}

func (m *Memory) snapshotLocked() memorySnapshot {
	s := memorySnapshot{
		entries:  make(map[entryKey]emission.EmissionEntry, len(m.entries)),
		ledger:   make(map[ledgerKey]emission.LedgerEntry, len(m.ledger)),
		users:    make(map[string]emission.User, len(m.users)),
		analyses: make(map[string][]emission.AnalysisRecord, len(m.analyses)),
	}
	for k, v := range m.entries {
		s.entries[k] = v
	}
	for k, v := range m.ledger {
		s.ledger[k] = *v.Clone()
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.analyses {
		s.analyses[k] = append([]emission.AnalysisRecord{}, v...)
	}
	return s
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.entries = s.entries
	m.ledger = s.ledger
	m.users = s.users
	m.analyses = s.analyses
}

// txView delegates to the parent; rollback is handled by WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) FindEntry(ctx context.Context, userID string, date emission.Date, category emission.Category, subtype string) (*emission.EmissionEntry, error) {
	return tv.parent.FindEntry(ctx, userID, date, category, subtype)
}

func (tv *txView) UpsertEntry(ctx context.Context, entry emission.EmissionEntry) error {
	return tv.parent.UpsertEntry(ctx, entry)
}

func (tv *txView) EntriesByUser(ctx context.Context, userID string, category emission.Category, sortBy string) ([]emission.EmissionEntry, error) {
	return tv.parent.EntriesByUser(ctx, userID, category, sortBy)
}

func (tv *txView) EntriesSince(ctx context.Context, userID string, category emission.Category, from emission.Date) ([]emission.EmissionEntry, error) {
	return tv.parent.EntriesSince(ctx, userID, category, from)
}

func (tv *txView) LedgerRow(ctx context.Context, userID string, date emission.Date) (*emission.LedgerEntry, error) {
	return tv.parent.LedgerRow(ctx, userID, date)
}

func (tv *txView) MostRecentLedgerRow(ctx context.Context, userID string, onOrBefore *emission.Date) (*emission.LedgerEntry, error) {
	return tv.parent.MostRecentLedgerRow(ctx, userID, onOrBefore)
}

func (tv *txView) SaveLedgerRow(ctx context.Context, row emission.LedgerEntry) error {
	return tv.parent.SaveLedgerRow(ctx, row)
}

func (tv *txView) LedgerRowsByUser(ctx context.Context, userID string, sortBy string) ([]emission.LedgerEntry, error) {
	return tv.parent.LedgerRowsByUser(ctx, userID, sortBy)
}

func (tv *txView) LedgerRowsSince(ctx context.Context, userID string, from emission.Date) ([]emission.LedgerEntry, error) {
	return tv.parent.LedgerRowsSince(ctx, userID, from)
}

func (tv *txView) SaveUser(ctx context.Context, user emission.User) error {
	return tv.parent.SaveUser(ctx, user)
}

func (tv *txView) GetUser(ctx context.Context, id string) (*emission.User, error) {
	return tv.parent.GetUser(ctx, id)
}

func (tv *txView) ListUsers(ctx context.Context) ([]emission.User, error) {
	return tv.parent.ListUsers(ctx)
}

func (tv *txView) SetLastAnalysisDate(ctx context.Context, userID string, date emission.Date) error {
	return tv.parent.SetLastAnalysisDate(ctx, userID, date)
}

func (tv *txView) SaveAnalysis(ctx context.Context, record emission.AnalysisRecord) error {
	return tv.parent.SaveAnalysis(ctx, record)
}

func (tv *txView) AnalysesByUser(ctx context.Context, userID string) ([]emission.AnalysisRecord, error) {
	return tv.parent.AnalysesByUser(ctx, userID)
}

func (tv *txView) RecentAnalyses(ctx context.Context, userID string, n int) ([]emission.AnalysisRecord, error) {
	return tv.parent.RecentAnalyses(ctx, userID, n)
}

func (tv *txView) WithTx(ctx context.Context, fn func(emission.Store) error) error {
	return fn(tv)
}
