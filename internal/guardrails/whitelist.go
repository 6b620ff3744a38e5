package guardrails

// ToolName is a member of the closed set of dispatchable tools (spec.md §4.2).
type ToolName string

const (
	ToolAnalyze       ToolName = "analyze"
	ToolLoadHistory   ToolName = "load_history"
	ToolWhy           ToolName = "why"
	ToolList          ToolName = "list"
	ToolMoreEvidence  ToolName = "more_evidence"
	ToolRewrite       ToolName = "rewrite"
	ToolHelp          ToolName = "help"
	ToolCompare       ToolName = "compare"
	ToolDeepDive      ToolName = "deep_dive"
	ToolExport        ToolName = "export"
	ToolClaimsOnly    ToolName = "claims_only"
	ToolEvidenceOnly  ToolName = "evidence_only"
	ToolAlignOnly     ToolName = "align_only"
	ToolReportOnly    ToolName = "report_only"
	ToolSimulate      ToolName = "simulate"
	ToolContentGenerate ToolName = "content_generate"
)

// whitelist is the closed set; unknown tools are rejected with
// errors=["tool not whitelisted"].
var whitelist = map[ToolName]bool{
	ToolAnalyze: true, ToolLoadHistory: true, ToolWhy: true, ToolList: true,
	ToolMoreEvidence: true, ToolRewrite: true, ToolHelp: true, ToolCompare: true,
	ToolDeepDive: true, ToolExport: true, ToolClaimsOnly: true, ToolEvidenceOnly: true,
	ToolAlignOnly: true, ToolReportOnly: true, ToolSimulate: true, ToolContentGenerate: true,
}

// IsWhitelisted reports whether name is a member of the closed tool set.
func IsWhitelisted(name string) bool {
	return whitelist[ToolName(name)]
}

// ValidateResult is what a per-tool Validator returns: sanitized args plus
// errors (abort dispatch) and warnings (advisory SSE prefix).
type ValidateResult struct {
	Args     map[string]any
	Errors   []string
	Warnings []string
}

// Validator sanitizes and validates one tool's arguments.
type Validator func(args map[string]any) ValidateResult

// Registry is the fail-closed per-tool validator table: a tool that is
// whitelisted but has no registered validator is rejected, per spec.md §4.2.
type Registry struct {
	validators map[ToolName]Validator
}

// NewRegistry builds a Registry pre-populated with every whitelisted tool's
// validator (see validators.go). A whitelisted tool left unregistered would be
// a fail-closed rejection at runtime, which is a defect, not a feature;
// NewRegistry does not check this itself — TestEveryWhitelistedToolHasAValidator
// does.
func NewRegistry() *Registry {
	r := &Registry{validators: map[ToolName]Validator{}}
	registerDefaultValidators(r)
	return r
}

func (r *Registry) register(name ToolName, v Validator) {
	r.validators[name] = v
}

// Validate runs the named tool's arguments through sanitization and
// validation. Fail-closed: a whitelisted tool with no registered validator is
// rejected rather than silently passed through.
func (r *Registry) Validate(name string, args map[string]any) ValidateResult {
	if !IsWhitelisted(name) {
		return ValidateResult{Errors: []string{"tool not whitelisted"}}
	}
	v, ok := r.validators[ToolName(name)]
	if !ok {
		return ValidateResult{Errors: []string{"tool not whitelisted"}}
	}
	if args == nil {
		args = map[string]any{}
	}
	return v(args)
}
