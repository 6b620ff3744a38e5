package llmgw

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedJSONRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	firstBraceRe  = regexp.MustCompile(`(?s)\{.*\}`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	controlCharRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
)

var chineseQuoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// parseTier records which tier of the ladder produced a successful parse, for
// trace logging; it has no behavioral effect.
type parseTier int

const (
	tierDirect parseTier = iota + 1
	tierRepaired
	tierHeuristic
)

// strictJSONParse implements spec.md §4.1's three-tier parse-repair ladder.
// Tier 1 is a direct json.Unmarshal of the raw content. Tier 2 repairs common
// LM artifacts (fenced code blocks, trailing commas, Chinese quotes, stray
// control characters) and retries. Tier 3 extracts the first brace-delimited
// block from the repaired text and retries once more. Returns (nil, 0) on
// total failure; the caller treats that as Gateway failure (no panic).
func strictJSONParse(raw string) (map[string]any, parseTier) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, 0
	}

	var direct map[string]any
	if err := json.Unmarshal([]byte(raw), &direct); err == nil {
		return direct, tierDirect
	}

	repaired := repairJSONText(raw)
	var viaRepair map[string]any
	if err := json.Unmarshal([]byte(repaired), &viaRepair); err == nil {
		return viaRepair, tierRepaired
	}

	if block := extractJSONBlock(repaired); block != "" {
		var viaBlock map[string]any
		if err := json.Unmarshal([]byte(block), &viaBlock); err == nil {
			return viaBlock, tierHeuristic
		}
	}

	return nil, 0
}

// repairJSONText applies cheap, order-sensitive textual fixes that are safe
// to attempt blindly: unwrap a fenced ```json block if present, normalize
// Chinese smart quotes to ASCII, strip control characters, drop trailing
// commas before a closing bracket/brace.
func repairJSONText(s string) string {
	if m := fencedJSONRe.FindStringSubmatch(s); len(m) == 2 {
		s = m[1]
	}
	s = chineseQuoteReplacer.Replace(s)
	s = controlCharRe.ReplaceAllString(s, "")
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// extractJSONBlock pulls the first {...} span out of arbitrary surrounding
// prose (e.g. "Here is the result: {...} Let me know if...").
func extractJSONBlock(s string) string {
	m := firstBraceRe.FindString(s)
	return strings.TrimSpace(m)
}
