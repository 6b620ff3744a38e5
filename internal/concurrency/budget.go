package concurrency

import "factcheck-orchestrator/internal/apperr"

// Budgets are the per-session ceilings the Dispatcher's BUDGET state checks
// before PLAN (spec.md §4.11): meta.tool_call_count vs
// SESSION_TOOL_MAX_CALLS, meta.llm_call_count vs SESSION_LLM_MAX_CALLS.
type Budgets struct {
	ToolMaxCalls int
	LLMMaxCalls  int
}

func metaInt(meta map[string]any, key string) int {
	v, ok := meta[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// CheckTool returns a BudgetError if meta.tool_call_count has already reached
// the ceiling; the caller must skip PLAN and emit a "budget exhausted"
// message instead.
func (b Budgets) CheckTool(meta map[string]any) error {
	if metaInt(meta, "tool_call_count") >= b.ToolMaxCalls {
		return apperr.Budget("session tool-call budget exhausted", "wait for a new session", "increase SESSION_TOOL_MAX_CALLS")
	}
	return nil
}

// CheckLLM is CheckTool's counterpart for meta.llm_call_count.
func (b Budgets) CheckLLM(meta map[string]any) error {
	if metaInt(meta, "llm_call_count") >= b.LLMMaxCalls {
		return apperr.Budget("session LLM-call budget exhausted", "wait for a new session", "increase SESSION_LLM_MAX_CALLS")
	}
	return nil
}

// IncrementToolCount bumps meta.tool_call_count by one, creating it if absent.
// Callers must hold the session's lock (SessionLocks.With) around this call.
func IncrementToolCount(meta map[string]any) {
	meta["tool_call_count"] = metaInt(meta, "tool_call_count") + 1
}

// IncrementLLMCount bumps meta.llm_call_count by one; same locking contract
// as IncrementToolCount.
func IncrementLLMCount(meta map[string]any) {
	meta["llm_call_count"] = metaInt(meta, "llm_call_count") + 1
}
