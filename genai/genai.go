/*
Package genai wraps the external text-generation capability.

PURPOSE:
  The analysis pipeline needs exactly one capability from the outside
  world: generate(prompt) -> text | failure. This package hides the
  provider behind the Generator interface so the pipeline can be tested
  without a live model and the provider can be swapped without touching
  the pipeline.

RELIABILITY:
  The capability is treated as unreliable and slow. Callers own the
  fallback path: every error from Generate degrades that one category to
  a canned response, it never aborts a batch.
*/
package genai

import (
	"context"
	"errors"
)

// Generator produces free-form text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrUnavailable is returned by the disabled generator and may be wrapped
// by providers when the upstream service cannot be reached.
var ErrUnavailable = errors.New("text generation unavailable")

// Unavailable is a Generator that always fails. Used when no API key is
// configured: analysis runs still complete, every section degrades to the
// canned failure response.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, string) (string, error) {
	return "", ErrUnavailable
}
