// Package align implements the Align Stage (spec.md §4.6): per
// (claim, evidence) stance judgment, LM path with rule-path fallback.
package align

import (
	"context"
	"strings"

	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/lexicon"
	"factcheck-orchestrator/internal/llmgw"
	"factcheck-orchestrator/internal/websearch"
)

const systemPrompt = `Judge the stance of the given evidence toward the given claim. Return strict JSON only: {"stance": "support"|"refute"|"insufficient", "confidence": number 0-1, "rationale": string}. No prose, no markdown fences.`

// Result is one (claim, evidence) stance judgment.
type Result struct {
	Stance     domain.Stance
	Confidence float64
	Rationale  string
	FromLLM    bool
}

// Run judges one (claim, evidence) pair, preferring the LM path and
// falling back to the deterministic rule path on any LM failure.
func Run(ctx context.Context, gw *llmgw.Gateway, llmEnabled bool, claim domain.Claim, ev domain.Evidence) Result {
	if llmEnabled && gw != nil {
		if r, ok := runLLM(ctx, gw, claim, ev); ok {
			return r
		}
	}
	return runRule(claim, ev)
}

func runLLM(ctx context.Context, gw *llmgw.Gateway, claim domain.Claim, ev domain.Evidence) (Result, bool) {
	user := "claim: " + claim.ClaimText + "\nevidence title: " + ev.Title + "\nevidence summary: " + ev.Summary
	result := gw.CallJSON(ctx, systemPrompt, user, llmgw.CallJSONOptions{TraceLabel: "align", StageName: "align"})
	if result == nil {
		return Result{}, false
	}
	stanceRaw, ok := result["stance"].(string)
	if !ok || strings.TrimSpace(stanceRaw) == "" {
		return Result{}, false
	}
	confidence, _ := asFloat(result["confidence"])
	rationale, _ := result["rationale"].(string)
	return Result{
		Stance:     domain.NormalizeStance(stanceRaw),
		Confidence: domain.Clamp01(confidence),
		Rationale:  strings.TrimSpace(rationale),
		FromLLM:    true,
	}, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// runRule is the deterministic fallback (spec.md §4.6): combine token
// overlap and source_weight (0.55/0.45), then apply the normative priority
// ladder top to bottom -- the first rule that fires wins.
func runRule(claim domain.Claim, ev domain.Evidence) Result {
	evidenceText := ev.Title + " " + ev.Summary + " " + ev.RawSnippet
	overlap := websearch.TokenOverlap(claim.ClaimText, ev.Title+" "+ev.Summary)
	combined := domain.Clamp01(0.55*overlap + 0.45*ev.SourceWeight)

	switch {
	case lexicon.HasRiskTerm(claim.ClaimText) && lexicon.HasRefuteTerm(evidenceText):
		return Result{Stance: domain.StanceRefute, Confidence: maxFloat(0.55, combined), Rationale: "claim carries risk-term phrasing and evidence contains a refute term"}
	case lexicon.HasOfficialTerm(evidenceText) && overlap >= 0.15:
		return Result{Stance: domain.StanceSupport, Confidence: maxFloat(0.5, combined), Rationale: "evidence cites an official source with sufficient overlap"}
	case overlap < 0.08:
		return Result{Stance: domain.StanceInsufficient, Confidence: minFloat(combined, 0.5), Rationale: "insufficient token overlap between claim and evidence"}
	case ev.Stance != "":
		return Result{Stance: ev.Stance, Confidence: maxFloat(0.45, combined), Rationale: "inherited from the evidence-search stage's heuristic stance"}
	default:
		return Result{Stance: domain.StanceInsufficient, Confidence: minFloat(combined, 0.55), Rationale: "no rule fired; defaulting to insufficient"}
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
