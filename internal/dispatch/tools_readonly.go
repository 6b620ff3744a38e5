package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"factcheck-orchestrator/internal/apperr"
	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/guardrails"
	"factcheck-orchestrator/internal/orchestrator"
	"factcheck-orchestrator/internal/sse"
)

// runSimulate loads the bound record's report and runs the Simulate Stage
// over it, persisting the result onto the record (the one simulation
// mutation spec.md §3.8 allows after Create).
func (d *Dispatcher) runSimulate(ctx context.Context, sessionID string, args map[string]any) (sse.MessagePayload, error) {
	recordID, _ := args["record_id"].(string)
	rec, err := d.History.Get(ctx, recordID)
	if err != nil {
		return sse.MessagePayload{}, apperr.UserInput("record not found: " + recordID)
	}
	if rec.Report == nil {
		return sse.MessagePayload{}, apperr.UserInput("record has no report to simulate from; run analyze first")
	}
	sim := d.Engine.RunSimulation(ctx, orchestrator.SimulationParams{RiskScore: rec.RiskScore}, *rec.Report)
	if err := d.History.UpdateSimulation(ctx, recordID, sim); err != nil {
		return sse.MessagePayload{}, apperr.Persistence("failed to persist simulation", err)
	}
	return sse.MessagePayload{
		SessionID: sessionID,
		Content:   fmt.Sprintf("Simulated likely spread for record %s over the platform's default time window.", recordID),
		Actions:   recordActions(recordID),
	}, nil
}

// runContentGenerate runs the Content-generate Stage for either
// content_generate (first generation, style already defaulted by
// guardrails) or rewrite (regeneration at a caller-chosen style), and
// persists the result onto the record's Content field.
func (d *Dispatcher) runContentGenerate(ctx context.Context, sessionID string, args map[string]any, isRewrite bool) (sse.MessagePayload, error) {
	recordID, _ := args["record_id"].(string)
	style, _ := args["style"].(string)
	rec, err := d.History.Get(ctx, recordID)
	if err != nil {
		return sse.MessagePayload{}, apperr.UserInput("record not found: " + recordID)
	}
	if rec.Report == nil {
		return sse.MessagePayload{}, apperr.UserInput("record has no report to generate content from; run analyze first")
	}
	result := d.Engine.RunContent(ctx, style, *rec.Report, rec.Simulation)
	if err := d.History.UpdateContent(ctx, recordID, result.ToMap()); err != nil {
		return sse.MessagePayload{}, apperr.Persistence("failed to persist generated content", err)
	}
	verb := "Generated"
	if isRewrite {
		verb = "Rewrote"
	}
	return sse.MessagePayload{
		SessionID: sessionID,
		Content:   fmt.Sprintf("%s content for record %s (style: %s). %s", verb, recordID, style, result.Clarification.Short),
		Actions:   recordActions(recordID),
	}, nil
}

// runLoadHistory fetches one History Record and binds it as the session's
// active record_id, so a following turn's record_id fallback resolves to it.
func (d *Dispatcher) runLoadHistory(ctx context.Context, sessionID string, args map[string]any) (sse.MessagePayload, error) {
	recordID, _ := args["record_id"].(string)
	rec, err := d.History.Get(ctx, recordID)
	if err != nil {
		return sse.MessagePayload{}, apperr.UserInput("record not found: " + recordID)
	}
	if err := d.Sessions.UpdateMeta(ctx, sessionID, map[string]any{"record_id": rec.ID}); err != nil {
		return sse.MessagePayload{}, apperr.Persistence("failed to bind session record_id", err)
	}
	return sse.MessagePayload{
		SessionID: sessionID,
		Content:   fmt.Sprintf("Loaded record %s: %s (%.0f/100).", rec.ID, rec.RiskLabel, rec.RiskScore),
		Actions:   recordActions(rec.ID),
	}, nil
}

// runWhy explains a record's verdict from its report's suspicious points
// and per-claim notes.
func (d *Dispatcher) runWhy(ctx context.Context, args map[string]any) (sse.MessagePayload, error) {
	recordID, _ := args["record_id"].(string)
	rec, err := d.History.Get(ctx, recordID)
	if err != nil {
		return sse.MessagePayload{}, apperr.UserInput("record not found: " + recordID)
	}
	lines := []string{fmt.Sprintf("Verdict: %s (risk score %.0f).", rec.RiskLabel, rec.RiskScore)}
	if rec.Report != nil {
		lines = append(lines, rec.Report.SuspiciousPoints...)
		for _, cr := range rec.Report.ClaimReports {
			if cr.Notes != "" {
				lines = append(lines, fmt.Sprintf("- %s: %s", cr.Claim.ClaimText, cr.Notes))
			}
		}
	}
	return sse.MessagePayload{Content: strings.Join(lines, "\n"), Actions: suggestedActions(guardrails.ToolWhy, recordID, rec.RiskScore)}, nil
}

// runList enumerates recent History Records, newest first.
func (d *Dispatcher) runList(ctx context.Context, args map[string]any) (sse.MessagePayload, error) {
	limit := 10
	if v, ok := args["limit"].(int); ok {
		limit = v
	}
	recs, err := d.History.List(ctx, limit)
	if err != nil {
		return sse.MessagePayload{}, apperr.Persistence("failed to list history", err)
	}
	if len(recs) == 0 {
		return sse.MessagePayload{Content: "No analyses yet."}, nil
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, fmt.Sprintf("%s  %s  %.0f/100  %s", r.ID, r.RiskLabel, r.RiskScore, truncate(r.InputText, 60)))
	}
	return sse.MessagePayload{Content: strings.Join(lines, "\n"), Actions: suggestedActions(guardrails.ToolList, recs[0].ID, recs[0].RiskScore)}, nil
}

// runCompare compares the named record against the next-most-recent
// record in history, a reading of "compare" that fits its single
// required record_id argument (spec.md leaves the comparison's second
// operand unspecified; see DESIGN.md).
func (d *Dispatcher) runCompare(ctx context.Context, args map[string]any) (sse.MessagePayload, error) {
	recordID, _ := args["record_id"].(string)
	rec, err := d.History.Get(ctx, recordID)
	if err != nil {
		return sse.MessagePayload{}, apperr.UserInput("record not found: " + recordID)
	}
	recent, err := d.History.List(ctx, 2)
	if err != nil {
		return sse.MessagePayload{}, apperr.Persistence("failed to list history for comparison", err)
	}
	var other *domain.HistoryRecord
	for i := range recent {
		if recent[i].ID != rec.ID {
			other = &recent[i]
			break
		}
	}
	if other == nil {
		return sse.MessagePayload{Content: "No other analysis available to compare against yet."}, nil
	}
	return sse.MessagePayload{
		Content: fmt.Sprintf(
			"%s: %s (%.0f/100)\n%s: %s (%.0f/100)",
			rec.ID, rec.RiskLabel, rec.RiskScore, other.ID, other.RiskLabel, other.RiskScore,
		),
		Actions: suggestedActions(guardrails.ToolCompare, rec.ID, rec.RiskScore),
	}, nil
}

// runDeepDive renders every claim report's full evidence list.
func (d *Dispatcher) runDeepDive(ctx context.Context, args map[string]any) (sse.MessagePayload, error) {
	recordID, _ := args["record_id"].(string)
	rec, err := d.History.Get(ctx, recordID)
	if err != nil {
		return sse.MessagePayload{}, apperr.UserInput("record not found: " + recordID)
	}
	if rec.Report == nil {
		return sse.MessagePayload{Content: "This record has no report yet."}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s | Risk: %s (%.0f/100)\n", rec.Report.DetectedScenario, rec.Report.RiskLabel, rec.Report.RiskScore)
	for _, cr := range rec.Report.ClaimReports {
		fmt.Fprintf(&b, "\nClaim: %s\nStance: %s\n", cr.Claim.ClaimText, cr.FinalStance)
		for _, ev := range cr.Evidences {
			fmt.Fprintf(&b, "  - [%s] %s (%s)\n", ev.Stance, ev.Title, ev.Source)
		}
	}
	return sse.MessagePayload{Content: b.String(), Actions: suggestedActions(guardrails.ToolDeepDive, recordID, rec.RiskScore)}, nil
}

// runExport renders a record as an indented JSON document, attached as a
// download action rather than inlined wholesale into the chat transcript.
func (d *Dispatcher) runExport(ctx context.Context, args map[string]any) (sse.MessagePayload, error) {
	recordID, _ := args["record_id"].(string)
	rec, err := d.History.Get(ctx, recordID)
	if err != nil {
		return sse.MessagePayload{}, apperr.UserInput("record not found: " + recordID)
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return sse.MessagePayload{}, apperr.Stage("export", "failed to marshal record", err)
	}
	return sse.MessagePayload{
		Content: fmt.Sprintf("Export ready for record %s (%d bytes).", recordID, len(b)),
		Actions: []any{map[string]any{"type": "link", "label": "download json", "href": "/api/history/" + recordID + "/export"}},
	}, nil
}

const helpText = `Available commands:
/analyze <text> - run a full fact-check
/claims_only <text>, /evidence_only, /align_only, /report_only - run one pipeline stage
/load_history <record_id> - bind a prior analysis to this session
/why [record_id] - explain a verdict
/list [limit] - recent analyses
/compare <record_id> - compare against the previous analysis
/deep_dive <record_id> - full evidence breakdown
/export <record_id> - export a record as JSON
/simulate <record_id> - simulate likely spread
/content_generate <record_id> [style], /rewrite <record_id> [style] - user-facing content`

func (d *Dispatcher) runHelp() sse.MessagePayload {
	return sse.MessagePayload{Content: helpText}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
