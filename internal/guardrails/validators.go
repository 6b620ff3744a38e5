package guardrails

import "fmt"

// registerDefaultValidators wires a Validator for every tool in the
// whitelist. Leaving one out is a fail-closed bug, not a feature — every
// ToolName constant below must appear exactly once.
func registerDefaultValidators(r *Registry) {
	r.register(ToolAnalyze, validateRequiresText)
	r.register(ToolLoadHistory, validateRequiresRecordID)
	r.register(ToolWhy, validateRequiresRecordID)
	r.register(ToolList, validateList)
	r.register(ToolMoreEvidence, validateRequiresRecordID)
	r.register(ToolRewrite, validateRewrite)
	r.register(ToolHelp, validateNoRequirements)
	r.register(ToolCompare, validateRequiresRecordID)
	r.register(ToolDeepDive, validateRequiresRecordID)
	r.register(ToolExport, validateRequiresRecordID)
	r.register(ToolClaimsOnly, validateRequiresText)
	r.register(ToolEvidenceOnly, validateEvidenceOnly)
	r.register(ToolAlignOnly, validateRequiresRecordID)
	r.register(ToolReportOnly, validateRequiresRecordID)
	r.register(ToolSimulate, validateRequiresRecordID)
	r.register(ToolContentGenerate, validateRequiresRecordID)
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func validateNoRequirements(args map[string]any) ValidateResult {
	return ValidateResult{Args: args}
}

func validateRequiresText(args map[string]any) ValidateResult {
	text, ok := stringArg(args, "text")
	if !ok || text == "" {
		return ValidateResult{Errors: []string{"missing required field: text"}}
	}
	sanitized := SanitizeText(text, 0)
	out := copyArgs(args)
	out["text"] = sanitized.Text
	return ValidateResult{Args: out, Warnings: sanitized.Warnings}
}

func validateRequiresRecordID(args map[string]any) ValidateResult {
	id, ok := stringArg(args, "record_id")
	if !ok || id == "" {
		return ValidateResult{Errors: []string{"missing required field: record_id"}}
	}
	out := copyArgs(args)
	out["record_id"] = SanitizeRecordID(id)
	var warnings []string
	if style, ok := stringArg(args, "style"); ok {
		normalized := NormalizeStyle(style)
		if normalized != style {
			warnings = append(warnings, fmt.Sprintf("style %q not recognized, defaulted to %q", style, normalized))
		}
		out["style"] = normalized
	}
	return ValidateResult{Args: out, Warnings: warnings}
}

func validateRewrite(args map[string]any) ValidateResult {
	res := validateRequiresRecordID(args)
	if len(res.Errors) > 0 {
		return res
	}
	if _, ok := res.Args["style"]; !ok {
		res.Args["style"] = "short"
	}
	return res
}

func validateList(args map[string]any) ValidateResult {
	out := copyArgs(args)
	limit := 10
	if v, ok := args["limit"]; ok {
		switch n := v.(type) {
		case float64:
			limit = int(n)
		case int:
			limit = n
		}
	}
	out["limit"] = ClampLimit(limit)
	return ValidateResult{Args: out}
}

// validateEvidenceOnly accepts either record_id (fetch more evidence for an
// existing analysis) or a text payload (the intent parser's override path for
// "more_evidence" turns carrying an inline colon-separated payload).
func validateEvidenceOnly(args map[string]any) ValidateResult {
	id, hasID := stringArg(args, "record_id")
	text, hasText := stringArg(args, "text")
	if (!hasID || id == "") && (!hasText || text == "") {
		return ValidateResult{Errors: []string{"missing required field: record_id or text"}}
	}
	out := copyArgs(args)
	var warnings []string
	if hasID && id != "" {
		out["record_id"] = SanitizeRecordID(id)
	}
	if hasText && text != "" {
		sanitized := SanitizeText(text, 0)
		out["text"] = sanitized.Text
		warnings = append(warnings, sanitized.Warnings...)
	}
	return ValidateResult{Args: out, Warnings: warnings}
}

func copyArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
