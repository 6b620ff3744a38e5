// Package claims implements the Claims Stage (spec.md §4.3): Claimify's
// three-call chain, the default single-call path, and the deterministic
// rule fallback, all converging on the same post-processing pipeline.
package claims

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/lexicon"
	"factcheck-orchestrator/internal/llmgw"
)

const (
	MethodDefault  = "default"
	MethodClaimify = "claimify"
)

var sentenceSplitRe = regexp.MustCompile(`[。！？.!?\n]+`)
var timeRe = regexp.MustCompile(`\d{4}年\d{1,2}月(\d{1,2}日)?|\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|(今天|昨天|明天|上周|本月|去年)`)
var valueRe = regexp.MustCompile(`\d+(\.\d+)?%?`)
var entityRe = regexp.MustCompile(`[\p{Han}]{2,6}(公司|政府|部门|机构|医院|大学|委员会)|[A-Z][a-zA-Z]{2,}`)
var locationRe = regexp.MustCompile(`(北京|上海|广州|深圳|中国|美国|武汉|湖北|纽约|华盛顿)`)
var firstPersonOpinionRe = regexp.MustCompile(`我(觉得|认为|感觉)|in my opinion|i think|i feel`)

const claimifySelectionPrompt = `Rewrite the input into a list of standalone, disambiguated, check-worthy sentences (resolve pronouns, keep factual content only). Return strict JSON: {"sentences": [string, ...]}. No prose, no markdown fences.`
const claimifyDecompositionPrompt = `Decompose each given sentence into atomic, independently verifiable claims. Return strict JSON: {"claims": [{"claim_text": string, "entity": string, "time": string, "location": string, "value": string, "source_sentence": string}, ...]}. Do not cap the number of claims. No prose, no markdown fences.`
const claimifyRankingPrompt = `Rank the given claims by check-worthiness and return the top claims. Return strict JSON: {"claims": [{"claim_text": string, "entity": string, "time": string, "location": string, "value": string, "source_sentence": string, "source_indices": [int, ...]}, ...]}. source_indices references the 0-based positions in the input claims list that this merged claim was derived from. No prose, no markdown fences.`

func defaultPrompt(maxClaims int) string {
	return fmt.Sprintf(`Extract up to %d atomic, independently verifiable claims from the input text. Return strict JSON: {"claims": [{"claim_text": string, "entity": string, "time": string, "location": string, "value": string, "source_sentence": string}, ...]}. No prose, no markdown fences.`, maxClaims)
}

// Run extracts claims from text, preferring the configured LM method and
// falling back to the rule path on any LM failure (spec.md §4.3).
func Run(ctx context.Context, gw *llmgw.Gateway, llmEnabled bool, method string, maxClaims int, minScore float64, text string) []domain.Claim {
	var claims []domain.Claim
	if llmEnabled && gw != nil {
		switch method {
		case MethodClaimify:
			claims = runClaimify(ctx, gw, text)
		default:
			claims = runDefault(ctx, gw, maxClaims, text)
		}
	}
	if len(claims) == 0 {
		claims = runRule(text, minScore)
	}
	claims = postProcess(claims, maxClaims)
	if len(claims) == 0 {
		claims = []domain.Claim{{ClaimID: "c1", ClaimText: strings.TrimSpace(text)}}
	}
	return claims
}

func runDefault(ctx context.Context, gw *llmgw.Gateway, maxClaims int, text string) []domain.Claim {
	result := gw.CallJSON(ctx, defaultPrompt(maxClaims), text, llmgw.CallJSONOptions{TraceLabel: "claims_default", StageName: "claims"})
	return claimsFromLLMResult(result)
}

func runClaimify(ctx context.Context, gw *llmgw.Gateway, text string) []domain.Claim {
	selResult := gw.CallJSON(ctx, claimifySelectionPrompt, text, llmgw.CallJSONOptions{TraceLabel: "claimify_selection", StageName: "claims"})
	sentences := stringsFromResult(selResult, "sentences")
	if len(sentences) == 0 {
		return nil
	}

	decompUser := strings.Join(sentences, "\n")
	decompResult := gw.CallJSON(ctx, claimifyDecompositionPrompt, decompUser, llmgw.CallJSONOptions{TraceLabel: "claimify_decomposition", StageName: "claims"})
	decomposed := claimsFromLLMResult(decompResult)
	if len(decomposed) == 0 {
		return nil
	}

	rankUser := marshalClaimsForPrompt(decomposed)
	rankResult := gw.CallJSON(ctx, claimifyRankingPrompt, rankUser, llmgw.CallJSONOptions{TraceLabel: "claimify_ranking", StageName: "claims"})
	ranked := claimsFromLLMResult(rankResult)
	if len(ranked) == 0 {
		return decomposed
	}
	return inheritFromSourceIndices(ranked, rankResult, decomposed)
}

// inheritFromSourceIndices fills any blank metadata field on a ranked/merged
// claim from the first referenced decomposed claim (spec.md §4.3: "Ranking/
// Merge ... returning source_indices that reference the decomposed list,
// used to inherit metadata for the merged claim").
func inheritFromSourceIndices(ranked []domain.Claim, rankResult map[string]any, decomposed []domain.Claim) []domain.Claim {
	rawClaims, _ := rankResult["claims"].([]any)
	for i := range ranked {
		if i >= len(rawClaims) {
			continue
		}
		obj, ok := rawClaims[i].(map[string]any)
		if !ok {
			continue
		}
		indices := intsFromAny(obj["source_indices"])
		if len(indices) == 0 {
			continue
		}
		src := decomposed[clampIndex(indices[0], len(decomposed)-1)]
		if ranked[i].Entity == "" {
			ranked[i].Entity = src.Entity
		}
		if ranked[i].Time == "" {
			ranked[i].Time = src.Time
		}
		if ranked[i].Location == "" {
			ranked[i].Location = src.Location
		}
		if ranked[i].Value == "" {
			ranked[i].Value = src.Value
		}
		if ranked[i].SourceSentence == "" {
			ranked[i].SourceSentence = src.SourceSentence
		}
	}
	return ranked
}

func clampIndex(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

func intsFromAny(v any) []int {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(arr))
	for _, item := range arr {
		switch n := item.(type) {
		case float64:
			out = append(out, int(n))
		case int:
			out = append(out, n)
		}
	}
	return out
}

func stringsFromResult(result map[string]any, key string) []string {
	if result == nil {
		return nil
	}
	arr, ok := result[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func claimsFromLLMResult(result map[string]any) []domain.Claim {
	if result == nil {
		return nil
	}
	arr, ok := result["claims"].([]any)
	if !ok {
		return nil
	}
	out := make([]domain.Claim, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, domain.Claim{
			ClaimText:      stringField(obj, "claim_text"),
			Entity:         stringField(obj, "entity"),
			Time:           stringField(obj, "time"),
			Location:       stringField(obj, "location"),
			Value:          stringField(obj, "value"),
			SourceSentence: stringField(obj, "source_sentence"),
			Score:          1.0,
		})
	}
	return out
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func marshalClaimsForPrompt(cs []domain.Claim) string {
	var sb strings.Builder
	for i, c := range cs {
		fmt.Fprintf(&sb, "%d. %s (entity=%s, time=%s, location=%s, value=%s)\n", i, c.ClaimText, c.Entity, c.Time, c.Location, c.Value)
	}
	return sb.String()
}

// runRule is the deterministic fallback (spec.md §4.3): split by sentence
// terminators, filter short/non-verifiable sentences, regex-extract fields,
// score, clamp, drop below min_score, sort desc.
func runRule(text string, minScore float64) []domain.Claim {
	sentences := sentenceSplitRe.Split(text, -1)
	var claims []domain.Claim
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if isNonVerifiable(s) {
			continue
		}
		entity := entityRe.FindString(s)
		t := timeRe.FindString(s)
		location := locationRe.FindString(s)
		value := valueRe.FindString(s)

		score := 0.0
		if entity != "" {
			score += 0.2
		}
		if t != "" {
			score += 0.25
		}
		if value != "" {
			score += 0.2
		}
		if location != "" {
			score += 0.1
		}
		if lexicon.HasRiskTerm(s) {
			score += 0.15
		}
		if len([]rune(s)) > 120 {
			score -= 0.08
		}
		score = domain.Clamp01(score)
		if score < minScore {
			continue
		}
		claims = append(claims, domain.Claim{
			ClaimText:      s,
			Entity:         entity,
			Time:           t,
			Location:       location,
			Value:          value,
			SourceSentence: s,
			Score:          score,
		})
	}
	sort.SliceStable(claims, func(i, j int) bool { return claims[i].Score > claims[j].Score })
	return claims
}

// isNonVerifiable filters sentences shorter than 8 runes or flagged as
// first-person opinion with no number/time (spec.md §4.3).
func isNonVerifiable(s string) bool {
	if len([]rune(s)) < 8 {
		return true
	}
	if firstPersonOpinionRe.MatchString(strings.ToLower(s)) && timeRe.FindString(s) == "" && valueRe.FindString(s) == "" {
		return true
	}
	return false
}

// postProcess is shared by the LM and rule paths (spec.md §4.3): normalize
// fields, drop non-verifiable rows, dedup by lowercased alphanumeric/CJK
// key, re-index as c1..cN, cap at max_claims.
func postProcess(claims []domain.Claim, maxClaims int) []domain.Claim {
	seen := map[string]bool{}
	out := make([]domain.Claim, 0, len(claims))
	for _, c := range claims {
		c.ClaimText = normalizeField(c.ClaimText, 500)
		c.Entity = normalizeField(c.Entity, 100)
		c.Time = normalizeField(c.Time, 50)
		c.Location = normalizeField(c.Location, 100)
		c.Value = normalizeField(c.Value, 100)
		c.SourceSentence = normalizeField(c.SourceSentence, 500)
		if c.ClaimText == "" || isNonVerifiable(c.ClaimText) {
			continue
		}
		key := dedupKey(c.ClaimText)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if maxClaims > 0 && len(out) >= maxClaims {
			break
		}
	}
	for i := range out {
		out[i].ClaimID = fmt.Sprintf("c%d", i+1)
	}
	return out
}

func normalizeField(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > maxLen {
		s = string(r[:maxLen])
	}
	return s
}

func dedupKey(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
