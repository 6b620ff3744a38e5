package websearch

import "factcheck-orchestrator/internal/lexicon"

// InferStance is the Evidence-search Stage's heuristic stance call (spec.md
// §4.4): refute wins on rumor-control terms, support requires both a
// relevance floor and official-source language, otherwise insufficient.
// Align later overrides this with its own stance judgment. Term lists are
// shared with the Align Stage's rule path via internal/lexicon.
func InferStance(title, summary string, relevance float64) string {
	text := title + " " + summary
	if lexicon.HasRefuteTerm(text) {
		return "refute"
	}
	if relevance >= 0.5 && lexicon.HasOfficialTerm(text) {
		return "support"
	}
	return "insufficient"
}
