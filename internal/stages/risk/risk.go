// Package risk implements the Risk Stage (SPEC_FULL.md §4.2.5): a cheap,
// pre-claims snapshot of the raw input text that sizes the rest of the
// pipeline via domain.Strategy, before the expensive claim/evidence/align
// chain runs. It is distinct from the Report stage's evidence-grounded
// final risk score (spec.md §4.7) — this snapshot never reaches the user.
package risk

import (
	"context"
	"regexp"
	"strings"

	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/lexicon"
	"factcheck-orchestrator/internal/llmgw"
)

// Snapshot is the Risk Stage's internal output, consumed only to derive
// domain.Strategy; it is never serialized to the client.
type Snapshot struct {
	PreliminaryScore float64
	ComplexityLevel  string
	IsNews           bool
	NewsConfidence   float64
	NewsReason       string
	DetectedTextType string
	FromLLM          bool
}

var sentenceSplitRe = regexp.MustCompile(`[。！？.!?]+`)
var entityLikeTokenRe = regexp.MustCompile(`[A-Z][a-zA-Z]+|[\p{Han}]{2,}`)

const systemPrompt = `You are a pre-screening risk assessor for a fact-check pipeline. Given raw input text, return strict JSON only: {"preliminary_score": number 0-100, "complexity_level": "simple"|"medium"|"complex", "is_news": boolean, "news_confidence": number 0-1, "news_reason": string, "detected_text_type": string}. No prose, no markdown fences.`

// Run produces a Snapshot (LM path if enabled and it succeeds, rule
// fallback otherwise) and the domain.Strategy it seeds.
func Run(ctx context.Context, gw *llmgw.Gateway, llmEnabled bool, maxClaimItems int, text string) (domain.Strategy, Snapshot) {
	var snap Snapshot
	if llmEnabled && gw != nil {
		if s, ok := runLLM(ctx, gw, text); ok {
			snap = s
		} else {
			snap = runRule(text)
		}
	} else {
		snap = runRule(text)
	}
	return strategyFromSnapshot(snap, maxClaimItems), snap
}

func runLLM(ctx context.Context, gw *llmgw.Gateway, text string) (Snapshot, bool) {
	result := gw.CallJSON(ctx, systemPrompt, text, llmgw.CallJSONOptions{
		TraceLabel: "risk", StageName: "risk",
	})
	if result == nil {
		return Snapshot{}, false
	}
	score, ok := asFloat(result["preliminary_score"])
	if !ok {
		return Snapshot{}, false
	}
	complexity, _ := result["complexity_level"].(string)
	if !validComplexity(complexity) {
		complexity = complexityFromText(text)
	}
	isNews, _ := result["is_news"].(bool)
	confidence, _ := asFloat(result["news_confidence"])
	reason, _ := result["news_reason"].(string)
	textType, _ := result["detected_text_type"].(string)
	return Snapshot{
		PreliminaryScore: domain.ClampScore(score),
		ComplexityLevel:  complexity,
		IsNews:           isNews,
		NewsConfidence:   domain.Clamp01(confidence),
		NewsReason:       reason,
		DetectedTextType: textType,
		FromLLM:          true,
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

func validComplexity(s string) bool {
	return s == "simple" || s == "medium" || s == "complex"
}

// runRule is the deterministic rule-fallback path (SPEC_FULL.md §4.2.5):
// score starts at 50, +8 per risk-term hit, +10 for absolute rhetoric,
// +6 per urgency marker, -5 if any attributed-source marker matches, clamped
// to [0,100].
func runRule(text string) Snapshot {
	score := 50.0
	score += 8 * float64(lexicon.CountRiskTerms(text))
	if lexicon.CountAbsoluteRhetoric(text) > 0 {
		score += 10
	}
	score += 6 * float64(lexicon.CountUrgencyMarkers(text))
	if lexicon.HasAttributedSource(text) {
		score -= 5
	}
	score = domain.ClampScore(score)

	isNews := lexicon.IsNewsDateline(text)
	newsConfidence := 0.0
	newsReason := "no wire-service dateline pattern matched"
	if isNews {
		newsConfidence = 0.8
		newsReason = "matched a dateline/wire-service pattern"
	}

	return Snapshot{
		PreliminaryScore: score,
		ComplexityLevel:  complexityFromText(text),
		IsNews:           isNews,
		NewsConfidence:   newsConfidence,
		NewsReason:       newsReason,
		DetectedTextType: detectedTextType(isNews),
		FromLLM:          false,
	}
}

// complexityFromText derives complexity from sentence count and
// distinct entity-like token count: <=2 sentences -> simple, <=6 -> medium,
// else complex (SPEC_FULL.md §4.2.5).
func complexityFromText(text string) string {
	sentences := sentenceSplitRe.Split(strings.TrimSpace(text), -1)
	nonEmpty := 0
	for _, s := range sentences {
		if strings.TrimSpace(s) != "" {
			nonEmpty++
		}
	}
	entities := map[string]bool{}
	for _, m := range entityLikeTokenRe.FindAllString(text, -1) {
		entities[m] = true
	}
	switch {
	case nonEmpty <= 2 && len(entities) <= 2:
		return "simple"
	case nonEmpty <= 6 && len(entities) <= 6:
		return "medium"
	default:
		return "complex"
	}
}

func detectedTextType(isNews bool) string {
	if isNews {
		return "news_report"
	}
	return "social_post"
}

// strategyFromSnapshot derives domain.Strategy from a Snapshot:
// EvidencePerClaim from domain.EvidencePerClaimForRisk(preliminary_score),
// MaxClaims scaling with complexity_level (simple->3, medium->6,
// complex->10), clamped by CLAIM_MAX_ITEMS (SPEC_FULL.md §4.2.5).
func strategyFromSnapshot(snap Snapshot, maxClaimItems int) domain.Strategy {
	maxClaims := 6
	switch snap.ComplexityLevel {
	case "simple":
		maxClaims = 3
	case "medium":
		maxClaims = 6
	case "complex":
		maxClaims = 10
	}
	if maxClaimItems > 0 && maxClaims > maxClaimItems {
		maxClaims = maxClaimItems
	}
	evidencePerClaim := domain.EvidencePerClaimForRisk(snap.PreliminaryScore)
	return domain.Strategy{
		MaxClaims:           maxClaims,
		ComplexityLevel:     snap.ComplexityLevel,
		EvidencePerClaim:    evidencePerClaim,
		SummaryTargetMin:    1,
		SummaryTargetMax:    summaryTargetMaxFor(evidencePerClaim),
		EnableSummarization: evidencePerClaim > 3,
		IsNews:              snap.IsNews,
		NewsConfidence:      snap.NewsConfidence,
		DetectedTextType:    snap.DetectedTextType,
		NewsReason:          snap.NewsReason,
	}
}

func summaryTargetMaxFor(evidencePerClaim int) int {
	switch {
	case evidencePerClaim >= 10:
		return 4
	case evidencePerClaim >= 7:
		return 3
	case evidencePerClaim >= 5:
		return 2
	default:
		return 1
	}
}
