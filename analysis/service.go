/*
service.go - Daily-gated analysis orchestration

PURPOSE:
  Service ties the pipeline together: gate check, 7-day cross-category
  fetch, summaries, prompt building, throttled execution, and persistence.

GATE SEQUENCING:
  A user gets at most one full analysis per calendar day. The gate is the
  user's last-analysis date and it advances only after the analysis
  record write succeeds - both writes happen in one store transaction, so
  a failed record write leaves the run retryable and a persisted record
  always has its gate advance. Partial or failed runs never consume the
  gate.

ORDERING:
  Sections are processed in the fixed order overall, transportation,
  energy, waste, appliances, water, air travel. The order is observable
  in output only; it is not a correctness requirement.
*/
package analysis

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/verdant/emissions-engine/emission"
	"github.com/verdant/emissions-engine/genai"
)

// =============================================================================
// SERVICE
// =============================================================================

// RangeLabel names the analysis window persisted with each record.
const RangeLabel = "7d"

const windowDays = 7

// Service runs daily-gated emissions analyses.
type Service struct {
	store  emission.Store
	gen    genai.Generator
	runner *Runner

	// now is swappable for tests; defaults to time.Now.
	now func() time.Time
}

func NewService(store emission.Store, gen genai.Generator) *Service {
	return &Service{
		store:  store,
		gen:    gen,
		runner: NewRunner(),
		now:    time.Now,
	}
}

// WithRunner overrides the default throttle configuration.
func (s *Service) WithRunner(r *Runner) *Service {
	s.runner = r
	return s
}

// WithClock overrides the wall clock (tests only).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// =============================================================================
// RUN
// =============================================================================

// Run executes one full analysis for the user: 7 throttled requests
// (overall + six categories), parsed and persisted as one immutable
// record. Returns ErrRateLimited if the user already ran today and
// ErrNotFound for an unknown user.
func (s *Service) Run(ctx context.Context, userID string) (*emission.AnalysisRecord, error) {
	if userID == "" {
		return nil, &emission.InvalidInputError{Field: "user_id", Message: "required"}
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, &emission.StorageError{Op: "user lookup", Err: err}
	}
	if user == nil {
		return nil, &emission.NotFoundError{Resource: "user", UserID: userID}
	}

	today := emission.DateOf(s.now().UTC())
	if user.LastAnalysisDate != nil && user.LastAnalysisDate.Equal(today) {
		return nil, emission.ErrRateLimited
	}

	from := today.AddDays(-windowDays)

	ledgerRows, err := s.store.LedgerRowsSince(ctx, userID, from)
	if err != nil {
		return nil, &emission.StorageError{Op: "ledger window fetch", Err: err}
	}
	window := make(map[emission.Category][]emission.EmissionEntry, len(emission.Categories))
	for _, category := range emission.Categories {
		entries, err := s.store.EntriesSince(ctx, userID, category, from)
		if err != nil {
			return nil, &emission.StorageError{Op: "entry window fetch", Err: err}
		}
		window[category] = entries
	}

	prior, err := s.store.RecentAnalyses(ctx, userID, MaxPriorAnalyses)
	if err != nil {
		log.Printf("[Analysis] prior analyses unavailable for %s: %v", userID, err)
		prior = nil
	}

	requests := s.buildRequests(ledgerRows, window, prior)
	results := s.runner.Run(ctx, requests)

	sections := make(map[string]emission.AnalysisSection, len(requests))
	for i, req := range requests {
		sections[req.Name] = results[i]
	}

	record := emission.AnalysisRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		RangeLabel: RangeLabel,
		RunDate:    s.now().UTC(),
		Sections:   sections,
	}

	// Record write and gate advance must land together: a failed record
	// write leaves the gate untouched and the run retryable.
	err = s.store.WithTx(ctx, func(tx emission.Store) error {
		if err := tx.SaveAnalysis(ctx, record); err != nil {
			return &emission.StorageError{Op: "analysis write", Err: err}
		}
		if err := tx.SetLastAnalysisDate(ctx, userID, today); err != nil {
			return &emission.StorageError{Op: "gate advance", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// buildRequests assembles the seven ordered requests. Categories with no
// data in the window short-circuit to NoDataSection and never reach the
// model.
func (s *Service) buildRequests(ledgerRows []emission.LedgerEntry, window map[emission.Category][]emission.EmissionEntry, prior []emission.AnalysisRecord) []Request {
	requests := make([]Request, 0, len(emission.SectionNames))

	requests = append(requests, s.newRequest(emission.SectionOverall,
		len(ledgerRows) > 0, SummarizeOverall(ledgerRows), prior))

	for _, category := range emission.Categories {
		entries := window[category]
		requests = append(requests, s.newRequest(string(category),
			len(entries) > 0, Summarize(category, entries), prior))
	}
	return requests
}

func (s *Service) newRequest(section string, hasData bool, summary string, prior []emission.AnalysisRecord) Request {
	if !hasData {
		return Request{Name: section, Skip: NoDataSection}
	}

	priorSections := make([]emission.AnalysisSection, 0, MaxPriorAnalyses)
	for _, rec := range prior {
		if sec, ok := rec.Sections[section]; ok {
			priorSections = append(priorSections, sec)
		}
	}

	prompt := BuildPrompt(section, summary, priorSections)
	return Request{
		Name: section,
		Call: func(ctx context.Context) (emission.AnalysisSection, error) {
			text, err := s.gen.Generate(ctx, prompt)
			if err != nil {
				return emission.AnalysisSection{}, err
			}
			return ParseResponse(text), nil
		},
	}
}

// =============================================================================
// HISTORY
// =============================================================================

// Previous returns the user's prior analysis records, newest first.
func (s *Service) Previous(ctx context.Context, userID string) ([]emission.AnalysisRecord, error) {
	if userID == "" {
		return nil, &emission.InvalidInputError{Field: "user_id", Message: "required"}
	}
	records, err := s.store.AnalysesByUser(ctx, userID)
	if err != nil {
		return nil, &emission.StorageError{Op: "analysis history", Err: err}
	}
	return records, nil
}
