package evidence

import (
	"context"
	"fmt"
	"strings"

	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/llmgw"
)

const summarizePrompt = `Merge redundant evidence rows bearing on the same claim into 1..%d summary rows. Return strict JSON: {"rows": [{"summary_text": string, "stance_hint": "support"|"refute"|"insufficient", "confidence": number 0-1, "source_indices": [int, ...]}, ...]}. source_indices are 0-based positions into the input evidence list. No prose, no markdown fences.`

// Summarize runs the Evidence-summarize Stage for one claim (spec.md §4.5):
// when more than one evidence row exists and summarization is enabled, a
// single LM call merges them into 1..SummaryTargetMax rows. On LM failure,
// an empty result, or a row set that fails validation, the original
// evidence list passes through unchanged.
func Summarize(ctx context.Context, gw *llmgw.Gateway, llmEnabled bool, claim domain.Claim, evs []domain.Evidence, strategy domain.Strategy) []domain.Evidence {
	if len(evs) <= 1 || !strategy.EnableSummarization || !llmEnabled || gw == nil {
		return evs
	}

	result := gw.CallJSON(ctx, fmt.Sprintf(summarizePrompt, maxInt(strategy.SummaryTargetMax, 1)), marshalEvidenceForPrompt(evs), llmgw.CallJSONOptions{
		TraceLabel: "evidence_summarize", StageName: "evidence",
	})
	rows := rowsFromResult(result)
	if len(rows) == 0 {
		return evs
	}

	merged := make([]domain.Evidence, 0, len(rows))
	for i, row := range rows {
		indices := validIndices(row.sourceIndices, len(evs))
		if len(indices) == 0 {
			continue
		}
		merged = append(merged, mergeRow(claim, evs, indices, row, i+1))
	}
	if len(merged) == 0 {
		return evs
	}
	if strategy.SummaryTargetMax > 0 && len(merged) > strategy.SummaryTargetMax {
		merged = merged[:strategy.SummaryTargetMax]
	}
	return merged
}

type summaryRow struct {
	summaryText   string
	stanceHint    string
	confidence    float64
	sourceIndices []int
}

func rowsFromResult(result map[string]any) []summaryRow {
	if result == nil {
		return nil
	}
	arr, ok := result["rows"].([]any)
	if !ok {
		return nil
	}
	out := make([]summaryRow, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		text, _ := obj["summary_text"].(string)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		hint, _ := obj["stance_hint"].(string)
		confidence, _ := asFloat(obj["confidence"])
		out = append(out, summaryRow{
			summaryText:   text,
			stanceHint:    hint,
			confidence:    domain.Clamp01(confidence),
			sourceIndices: intsFromAny(obj["source_indices"]),
		})
	}
	return out
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

func intsFromAny(v any) []int {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(arr))
	for _, item := range arr {
		if n, ok := asFloat(item); ok {
			out = append(out, int(n))
		}
	}
	return out
}

func validIndices(indices []int, n int) []int {
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		if i >= 0 && i < n {
			out = append(out, i)
		}
	}
	return out
}

// mergeRow builds one merged evidence row per spec.md §4.5: id s1..sN,
// source_type=web_summary, url inherits the first referenced source,
// source joins unique sources, raw_snippet concatenates unique urls,
// source_urls keeps unique urls (<=10), source_weight =
// avg(weights)*max(0.3, confidence) clamped.
func mergeRow(claim domain.Claim, evs []domain.Evidence, indices []int, row summaryRow, n int) domain.Evidence {
	var sources []string
	var urls []string
	seenSource := map[string]bool{}
	seenURL := map[string]bool{}
	weightSum := 0.0
	for _, idx := range indices {
		e := evs[idx]
		weightSum += e.SourceWeight
		if e.Source != "" && !seenSource[e.Source] {
			seenSource[e.Source] = true
			sources = append(sources, e.Source)
		}
		if e.URL != "" && !seenURL[e.URL] {
			seenURL[e.URL] = true
			urls = append(urls, e.URL)
		}
	}
	avgWeight := weightSum / float64(len(indices))
	sourceWeight := domain.Clamp01(avgWeight * maxFloat(0.3, row.confidence))

	sourceURLs := urls
	if len(sourceURLs) > 10 {
		sourceURLs = sourceURLs[:10]
	}
	firstURL := ""
	if len(urls) > 0 {
		firstURL = urls[0]
	}

	return domain.Evidence{
		EvidenceID:   fmt.Sprintf("s%d", n),
		ClaimID:      claim.ClaimID,
		Title:        evs[indices[0]].Title,
		Source:       strings.Join(sources, ", "),
		URL:          firstURL,
		Summary:      row.summaryText,
		Stance:       domain.NormalizeStance(row.stanceHint),
		SourceWeight: sourceWeight,
		SourceType:   "web_summary",
		Domain:       hostOf(firstURL),
		RawSnippet:   strings.Join(urls, " "),
		SourceURLs:   sourceURLs,
	}
}

func marshalEvidenceForPrompt(evs []domain.Evidence) string {
	var sb strings.Builder
	for i, e := range evs {
		fmt.Fprintf(&sb, "%d. title=%q summary=%q source=%s stance=%s weight=%.2f\n", i, e.Title, e.Summary, e.Source, e.Stance, e.SourceWeight)
	}
	return sb.String()
}

func maxInt(a, b int) int {
	if a > b {
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
