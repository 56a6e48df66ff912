/*
parse.go - Free-form model text to fixed insight/recommendation sections

PURPOSE:
  The upstream model format is not guaranteed stable, so parsing is
  isolated here behind a narrow function with exhaustive fallbacks.
  ParseResponse never fails: unrecognizable input degrades to fixed
  fallback sentences per section.

CONTRACT:
  - Case-insensitive split on "[Key Insights]" / "[Recommendations]"
    (markdown-heading synonyms accepted)
  - Text before the first marker is discarded
  - Bullet and emphasis punctuation stripped, blank lines dropped
  - Surviving lines rejoined as one hyphen-bulleted block
*/
package analysis

import (
	"regexp"
	"strings"

	"github.com/verdant/emissions-engine/emission"
)

const (
	// FallbackInsights substitutes for an empty insights section.
	FallbackInsights = "- No actionable insights could be generated from the data."

	// FallbackRecommendations substitutes for an empty recommendations section.
	FallbackRecommendations = "- No specific recommendations available based on current data patterns."
)

var (
	insightsMarker        = regexp.MustCompile(`(?i)\[key insights\]|###\s*(?:key\s+)?insights`)
	recommendationsMarker = regexp.MustCompile(`(?i)\[recommendations\]|###\s*recommendations`)

	// Bullet/emphasis punctuation the model tends to emit.
	bulletPunct = regexp.MustCompile(`\*\*|^[\s\-*•]+`)
)

// ParseResponse extracts the two labeled sections from raw model output.
// It never returns an error; missing or empty sections get fixed
// fallback text.
func ParseResponse(raw string) emission.AnalysisSection {
	var insightsText, recommendationsText string

	if loc := recommendationsMarker.FindStringIndex(raw); loc != nil {
		recommendationsText = raw[loc[1]:]
		raw = raw[:loc[0]]
	}
	if loc := insightsMarker.FindStringIndex(raw); loc != nil {
		insightsText = raw[loc[1]:]
	}

	return emission.AnalysisSection{
		Insights:        cleanSection(insightsText, FallbackInsights),
		Recommendations: cleanSection(recommendationsText, FallbackRecommendations),
	}
}

// cleanSection strips bullet punctuation, drops blank and divider lines,
// and rejoins the rest as a hyphen-bulleted block.
func cleanSection(text, fallback string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = bulletPunct.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" || isDivider(line) {
			continue
		}
		lines = append(lines, "- "+line)
	}
	if len(lines) == 0 {
		return fallback
	}
	return strings.Join(lines, "\n")
}

func isDivider(line string) bool {
	return strings.Trim(line, "-_= ") == ""
}
