/*
runner.go - Sequential throttled execution of analysis requests

PURPOSE:
  The external text-generation service is rate limited, so the seven
  per-category requests of an analysis run execute strictly one at a
  time with a fixed pause after every completed call, success or not.
  No concurrency primitive is needed; the calls must not overlap.

FAILURE ISOLATION:
  Each request runs under its own timeout. A timeout, transport error,
  or empty response degrades that single request to the canned failure
  section and the runner moves on - one bad category never aborts the
  batch. The result slice always matches the request slice in length
  and order.
*/
package analysis

import (
	"context"
	"log"
	"time"

	"github.com/verdant/emissions-engine/emission"
)

// =============================================================================
// CANNED SECTIONS
// =============================================================================

// FailureSection replaces the output of a failed generation call.
var FailureSection = emission.AnalysisSection{
	Insights:        "- Analysis service is currently unavailable",
	Recommendations: "- Please try again later or check your connection",
}

// NoDataSection replaces the output for a category with no logged data.
// The model is never called for such a category.
var NoDataSection = emission.AnalysisSection{
	Insights:        "- No usage data recorded for this category",
	Recommendations: "- Consider logging activities for personalized suggestions",
}

// =============================================================================
// RUNNER
// =============================================================================

// Request is one pending unit of analysis work.
type Request struct {
	Name string

	// Call produces the parsed section for this request. A nil Call is a
	// short-circuit: Skip is returned without invoking anything and
	// without consuming throttle delay budget for a remote call.
	Call func(ctx context.Context) (emission.AnalysisSection, error)

	// Skip is the immediate result when Call is nil.
	Skip emission.AnalysisSection
}

// Runner executes requests sequentially with a fixed inter-request delay.
type Runner struct {
	// Delay is the pause after each completed call (default 2s).
	Delay time.Duration

	// CallTimeout bounds each individual generation call (default 30s).
	CallTimeout time.Duration
}

const (
	defaultDelay       = 2 * time.Second
	defaultCallTimeout = 30 * time.Second
)

func NewRunner() *Runner {
	return &Runner{Delay: defaultDelay, CallTimeout: defaultCallTimeout}
}

// Run executes the requests in order and returns one result per request,
// in the same order, even when individual calls fail. Cancelling ctx
// stops the throttle pause early but each in-flight call still resolves
// (possibly to FailureSection) before the next begins.
func (r *Runner) Run(ctx context.Context, requests []Request) []emission.AnalysisSection {
	results := make([]emission.AnalysisSection, len(requests))

	for i, req := range requests {
		if req.Call == nil {
			results[i] = req.Skip
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout())
		section, err := req.Call(callCtx)
		cancel()

		if err != nil {
			log.Printf("[Analysis] %s request failed: %v", req.Name, err)
			section = FailureSection
		}
		results[i] = section

		r.pause(ctx)
	}

	return results
}

func (r *Runner) timeout() time.Duration {
	if r.CallTimeout > 0 {
		return r.CallTimeout
	}
	return defaultCallTimeout
}

// pause waits the fixed post-call delay, cut short by ctx cancellation.
func (r *Runner) pause(ctx context.Context) {
	delay := r.Delay
	if delay <= 0 {
		return
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
