/*
prompt.go - Prompt construction for per-category analysis calls

PURPOSE:
  Builds one bounded instruction prompt per category, embedding the
  category name, the data summary, and up to the two most recent prior
  analyses of that category as context. The prompt pins the model to a
  strict output contract - two labeled sections, bullet points, hard word
  limits - which is what the response parser keys on.
*/
package analysis

import (
	"fmt"
	"strings"

	"github.com/verdant/emissions-engine/emission"
)

// MaxPriorAnalyses bounds how many previous runs feed the prompt context.
const MaxPriorAnalyses = 2

// BuildPrompt composes the instruction prompt for one category.
// priorSections holds the same category's sections from up to the two
// most recent previous runs, newest first.
func BuildPrompt(section string, summary string, priorSections []emission.AnalysisSection) string {
	var past strings.Builder
	for i, prior := range priorSections {
		if i >= MaxPriorAnalyses {
			break
		}
		fmt.Fprintf(&past, "Previous %s analysis #%d:\nInsights: %s\nRecommendations: %s\n\n",
			section, i+1, orNA(prior.Insights), orNA(prior.Recommendations))
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Please analyze the following carbon emissions data for the "%s" category and provide a concise, structured response. The word limit for your entire response is strictly 200 words. Each section must have small bullet points which are powerful and actionable. Key Insights must be 50 words at most and Recommendations strictly 50 words at most. Your answer must strictly follow the exact format below:

--------------------------------------------------
[Key Insights]
- Concise bullet points of key observations, trend analysis and main contributors to emissions

[Recommendations]
- Prioritized actionable recommendations and cost-effective solutions

--------------------------------------------------
Current %s data:
%s
`, section, section, summary)

	if past.Len() > 0 {
		fmt.Fprintf(&b, "\nPast Analysis Context:\n%s", past.String())
	}

	b.WriteString(`
Focus on:
- Clear, specific recommendations
- Very short and powerful points
- Practical implementation`)

	return strings.TrimSpace(b.String())
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
