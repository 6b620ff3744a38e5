// Package intent implements the Intent / Tool Parser (spec.md §4.10):
// text -> (tool_name, args), in six ordered decision steps.
package intent

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"factcheck-orchestrator/internal/guardrails"
)

// Result is what the Dispatcher receives from the parser.
type Result struct {
	Tool    guardrails.ToolName
	Args    map[string]any
	Clarify bool
}

const analyzeIntentMinLen = 180
const moreEvidencePayloadMinLen = 30

var slashCommands = map[string]guardrails.ToolName{
	"load_history":     guardrails.ToolLoadHistory,
	"why":              guardrails.ToolWhy,
	"rewrite":          guardrails.ToolRewrite,
	"compare":          guardrails.ToolCompare,
	"deep_dive":        guardrails.ToolDeepDive,
	"list":             guardrails.ToolList,
	"more_evidence":    guardrails.ToolMoreEvidence,
	"analyze":          guardrails.ToolAnalyze,
	"claims_only":      guardrails.ToolClaimsOnly,
	"evidence_only":    guardrails.ToolEvidenceOnly,
	"align_only":       guardrails.ToolAlignOnly,
	"report_only":      guardrails.ToolReportOnly,
	"simulate":         guardrails.ToolSimulate,
	"content":          guardrails.ToolContentGenerate,
	"content_generate": guardrails.ToolContentGenerate,
	"content_show":     guardrails.ToolContentGenerate,
	"export":           guardrails.ToolExport,
	"help":             guardrails.ToolHelp,
}

// defaultStyle is the per-tool style fallback merged in at step 5 when the
// caller didn't supply one and the tool's validator accepts a style.
var defaultStyle = map[guardrails.ToolName]string{
	guardrails.ToolRewrite:         "short",
	guardrails.ToolCompare:         "formal",
	guardrails.ToolDeepDive:        "formal",
	guardrails.ToolContentGenerate: "short",
}

var (
	whyRe          = regexp.MustCompile(`why.*判定|为什么.*判定|判定.*原因`)
	compareRe      = regexp.MustCompile(`对比\s*(.+)?|compare\s+(.+)?`)
	moreEvidenceRe = regexp.MustCompile(`补充\s*(.*)证据|more\s+evidence`)
	simulateRe     = regexp.MustCompile(`生成\s*(.*)应对|simulate`)
	helpRe         = regexp.MustCompile(`怎么用|帮助|help|^\?$`)
)

// Parse implements spec.md §4.10's six-step decision order; the first
// matching step wins.
func Parse(text string, meta map[string]any) Result {
	trimmed := strings.TrimSpace(text)

	// Escape rule: a literal leading "/" is produced by doubling it, which
	// skips slash-command matching entirely for this turn.
	if strings.HasPrefix(trimmed, "//") {
		trimmed = trimmed[1:]
	} else if strings.HasPrefix(trimmed, "/") {
		if tool, args, ok := parseSlashCommand(trimmed); ok {
			return finalize(tool, args, meta)
		}
	}

	if isAnalyzeIntent(trimmed) {
		return finalize(guardrails.ToolAnalyze, map[string]any{"text": trimmed}, meta)
	}

	if tool, args, ok := matchNaturalLanguage(trimmed); ok {
		tool, args = applyMoreEvidenceGuard(tool, args, trimmed)
		return finalize(tool, args, meta)
	}

	return Result{Tool: guardrails.ToolHelp, Args: map[string]any{}, Clarify: true}
}

func isAnalyzeIntent(text string) bool {
	if strings.HasPrefix(text, "/analyze") {
		return true
	}
	return utf8.RuneCountInString(text) >= analyzeIntentMinLen
}

func parseSlashCommand(text string) (guardrails.ToolName, map[string]any, bool) {
	body := strings.TrimPrefix(text, "/")
	parts := strings.SplitN(body, " ", 2)
	cmd := strings.ToLower(strings.TrimSpace(parts[0]))
	rest := ""
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}

	tool, ok := slashCommands[cmd]
	if !ok {
		return "", nil, false
	}

	switch tool {
	case guardrails.ToolAnalyze, guardrails.ToolClaimsOnly:
		return tool, map[string]any{"text": rest}, true
	case guardrails.ToolEvidenceOnly:
		if rest == "" {
			return tool, map[string]any{}, true
		}
		return tool, map[string]any{"text": rest}, true
	case guardrails.ToolList:
		args := map[string]any{}
		if n, err := strconv.Atoi(rest); err == nil {
			args["limit"] = n
		}
		return tool, args, true
	case guardrails.ToolRewrite:
		recordID, style := splitFirstToken(rest)
		args := map[string]any{"record_id": recordID}
		if style != "" {
			args["style"] = style
		}
		return tool, args, true
	case guardrails.ToolHelp:
		return tool, map[string]any{}, true
	default:
		return tool, map[string]any{"record_id": rest}, true
	}
}

func splitFirstToken(s string) (first, rest string) {
	parts := strings.SplitN(s, " ", 2)
	first = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	return first, rest
}

// matchNaturalLanguage implements step 3's regex patterns. Order here is
// significant: the first pattern to match wins.
func matchNaturalLanguage(text string) (guardrails.ToolName, map[string]any, bool) {
	lower := strings.ToLower(text)
	switch {
	case whyRe.MatchString(text):
		return guardrails.ToolWhy, map[string]any{}, true
	case moreEvidenceRe.MatchString(text):
		return guardrails.ToolMoreEvidence, map[string]any{"text": text}, true
	case compareRe.MatchString(lower):
		return guardrails.ToolCompare, map[string]any{}, true
	case simulateRe.MatchString(lower):
		return guardrails.ToolSimulate, map[string]any{}, true
	case helpRe.MatchString(lower):
		return guardrails.ToolHelp, map[string]any{}, true
	default:
		return "", nil, false
	}
}

// applyMoreEvidenceGuard implements step 4: if the chosen tool is
// more_evidence but the text carries a long payload after a colon
// separator (>=30 chars), override to evidence_only with that payload.
func applyMoreEvidenceGuard(tool guardrails.ToolName, args map[string]any, text string) (guardrails.ToolName, map[string]any) {
	if tool != guardrails.ToolMoreEvidence {
		return tool, args
	}
	idx := strings.Index(text, ":")
	if idx < 0 {
		idx = strings.Index(text, "：")
	}
	if idx < 0 {
		return tool, args
	}
	payload := strings.TrimSpace(text[idx+1:])
	if utf8.RuneCountInString(payload) < moreEvidencePayloadMinLen {
		return tool, args
	}
	return guardrails.ToolEvidenceOnly, map[string]any{"text": payload}
}

// finalize implements step 5: merge in session-meta fallbacks for
// record_id and a per-tool default style.
func finalize(tool guardrails.ToolName, args map[string]any, meta map[string]any) Result {
	if args == nil {
		args = map[string]any{}
	}
	if _, ok := args["record_id"]; !ok || args["record_id"] == "" {
		if id := metaRecordID(meta); id != "" {
			args["record_id"] = id
		}
	}
	if _, ok := args["style"]; !ok {
		if style, ok := defaultStyle[tool]; ok {
			args["style"] = style
		}
	}
	return Result{Tool: tool, Args: args}
}

func metaRecordID(meta map[string]any) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta["record_id"].(string); ok && v != "" {
		return v
	}
	if v, ok := meta["bound_record_id"].(string); ok && v != "" {
		return v
	}
	return ""
}
