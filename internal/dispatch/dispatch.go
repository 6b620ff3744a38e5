// Package dispatch implements the Dispatcher (spec.md §4.11): the
// nine-state machine -- PARSE, SANITIZE, BUDGET, CACHE_LOOKUP, PLAN,
// EXECUTE, PERSIST, EMIT, DONE -- that turns one chat turn's raw text into
// an ordered SSE event sequence, auto-injecting any missing prerequisite
// pipeline stage along the way. Grounded on the teacher's Runner.Execute
// entrypoint (internal/orchestrator/handler.go) for "one function drives a
// whole unit of work end to end, publishing as it goes", adapted from a
// single Kafka command handler to a nine-state linear machine over
// internal/orchestrator.Engine, internal/store and internal/sse.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"factcheck-orchestrator/internal/apperr"
	"factcheck-orchestrator/internal/concurrency"
	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/guardrails"
	"factcheck-orchestrator/internal/intent"
	"factcheck-orchestrator/internal/orchestrator"
	"factcheck-orchestrator/internal/sse"
	"factcheck-orchestrator/internal/store"
)

// Dispatcher wires the Engine and the three stores behind the nine-state
// machine. One Dispatcher is shared across sessions; SessionLocks
// serializes the additive session-meta updates each turn performs.
type Dispatcher struct {
	Engine     *orchestrator.Engine
	Sessions   *store.SessionStore
	Tasks      *store.TaskStore
	History    *store.HistoryStore
	Guardrails *guardrails.Registry
	Budgets    concurrency.Budgets
	Locks      *concurrency.SessionLocks

	cache *turnCache
}

// New builds a Dispatcher. Guardrails defaults to guardrails.NewRegistry()
// if nil.
func New(engine *orchestrator.Engine, sessions *store.SessionStore, tasks *store.TaskStore, history *store.HistoryStore, registry *guardrails.Registry, budgets concurrency.Budgets, locks *concurrency.SessionLocks) *Dispatcher {
	if registry == nil {
		registry = guardrails.NewRegistry()
	}
	if locks == nil {
		locks = concurrency.NewSessionLocks()
	}
	return &Dispatcher{
		Engine:     engine,
		Sessions:   sessions,
		Tasks:      tasks,
		History:    history,
		Guardrails: registry,
		Budgets:    budgets,
		Locks:      locks,
		cache:      newTurnCache(),
	}
}

// pipelineUsesLLM reports whether a tool's EXECUTE state consumes the
// session's LLM-call budget, for the once-per-dispatch BUDGET check. Stage
// Engines call the Gateway once per sub-stage they run, but threading a
// budget check into every llmgw.Gateway.CallJSON call from here would
// require plumbing Budgets through Engine itself; approximating with one
// check-and-increment per dispatched turn is documented as an Open
// Question resolution in DESIGN.md.
func pipelineUsesLLM(tool guardrails.ToolName) bool {
	switch tool {
	case guardrails.ToolAnalyze, guardrails.ToolClaimsOnly, guardrails.ToolEvidenceOnly,
		guardrails.ToolAlignOnly, guardrails.ToolReportOnly, guardrails.ToolSimulate,
		guardrails.ToolContentGenerate, guardrails.ToolRewrite:
		return true
	default:
		return false
	}
}

// Dispatch runs one full turn through all nine states, writing every SSE
// event to framer. Returns the terminal error, if any, purely for the
// caller's logging; the Framer has already emitted the matching error+done
// sequence.
func (d *Dispatcher) Dispatch(ctx context.Context, framer *sse.Framer, sessionID, rawText string) error {
	// PARSE
	sess, err := d.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return d.abort(framer, apperr.UserInput("unknown session"))
	}
	parsed := intent.Parse(rawText, sess.Meta)
	if parsed.Clarify {
		_ = framer.Token("I couldn't match that to a known command; here's what I can do.", sessionID)
	}

	// SANITIZE
	validated := d.Guardrails.Validate(string(parsed.Tool), parsed.Args)
	if len(validated.Errors) > 0 {
		return d.abort(framer, apperr.UserInput(strings.Join(validated.Errors, "; ")))
	}
	for _, w := range validated.Warnings {
		_ = framer.Token("note: "+w, sessionID)
	}
	args := validated.Args

	// BUDGET
	var budgetErr error
	d.Locks.With(sessionID, func() {
		budgetErr = d.Budgets.CheckTool(sess.Meta)
		if budgetErr == nil && pipelineUsesLLM(parsed.Tool) {
			budgetErr = d.Budgets.CheckLLM(sess.Meta)
		}
	})
	if budgetErr != nil {
		_ = framer.Token("budget exhausted for this session", sessionID)
		return d.abort(framer, budgetErr)
	}

	// CACHE_LOOKUP
	key := d.cacheKeyFor(ctx, sessionID, parsed.Tool, args)
	if cached, ok := d.cache.get(key); ok {
		if err := framer.Message(cached); err != nil {
			return err
		}
		return framer.Done(sessionID)
	}

	// PLAN + EXECUTE
	msg, err := d.execute(ctx, framer, sessionID, parsed.Tool, args)
	if err != nil {
		return d.abort(framer, err)
	}

	// bump budgets (PERSIST's session-meta half)
	d.Locks.With(sessionID, func() {
		concurrency.IncrementToolCount(sess.Meta)
		if pipelineUsesLLM(parsed.Tool) {
			concurrency.IncrementLLMCount(sess.Meta)
		}
	})
	if err := d.Sessions.UpdateMeta(ctx, sessionID, sess.Meta); err != nil {
		return d.abort(framer, apperr.Persistence("failed to persist session meta", err))
	}

	if err := d.Sessions.AppendMessage(ctx, domain.Message{
		SessionID: sessionID,
		Role:      "assistant",
		Content:   msg.Content,
	}); err != nil {
		return d.abort(framer, apperr.Persistence("failed to persist assistant message", err))
	}

	d.cache.set(key, msg)

	// EMIT
	if err := framer.Message(msg); err != nil {
		return err
	}
	// DONE
	return framer.Done(sessionID)
}

func (d *Dispatcher) abort(framer *sse.Framer, err error) error {
	_ = framer.Error(err)
	return err
}

// cacheKeyFor resolves the Open Question around stable_hash({record_id,
// report, simulation?, input_text, style?}): "report"/"simulation" are
// hashed as presence booleans on the bound record rather than full
// content, since their purpose in the key is to distinguish "nothing
// generated yet" from "already generated" request shapes.
func (d *Dispatcher) cacheKeyFor(ctx context.Context, sessionID string, tool guardrails.ToolName, args map[string]any) string {
	in := cacheKeyInput{}
	hasText := false
	if v, ok := args["text"].(string); ok && v != "" {
		in.InputText = v
		hasText = true
	}
	// record_id only distinguishes request shape when it's actually what the
	// tool resolves its subject from -- resolveInputText prefers text when
	// both are present, and the record-bound tools (simulate/
	// content_generate/rewrite/load_history/why/compare/deep_dive/export)
	// carry no text at all, so a stray session-meta record_id fallback must
	// not fragment the cache key for text-driven turns.
	if !hasText {
		if v, ok := args["record_id"].(string); ok {
			in.RecordID = v
			if rec, err := d.History.Get(ctx, v); err == nil {
				in.HasReport = rec.Report != nil
				in.HasSimulation = len(rec.Simulation) > 0
			}
		}
	}
	if v, ok := args["style"].(string); ok {
		in.Style = v
	}
	return d.cache.key(sessionID, string(tool), in)
}

// execute is PLAN+EXECUTE+PERSIST's tool-dispatching core: it resolves
// which Stage Engine calls a tool needs (auto-injecting missing
// predecessors for the pipeline family), runs them, and writes every
// resulting Task/History row before returning the turn's message.
func (d *Dispatcher) execute(ctx context.Context, framer *sse.Framer, sessionID string, tool guardrails.ToolName, args map[string]any) (sse.MessagePayload, error) {
	switch tool {
	case guardrails.ToolAnalyze, guardrails.ToolClaimsOnly, guardrails.ToolEvidenceOnly,
		guardrails.ToolAlignOnly, guardrails.ToolReportOnly:
		return d.runPipelineTool(ctx, framer, sessionID, tool, args)
	case guardrails.ToolSimulate:
		return d.runSimulate(ctx, sessionID, args)
	case guardrails.ToolContentGenerate:
		return d.runContentGenerate(ctx, sessionID, args, false)
	case guardrails.ToolRewrite:
		return d.runContentGenerate(ctx, sessionID, args, true)
	case guardrails.ToolLoadHistory:
		return d.runLoadHistory(ctx, sessionID, args)
	case guardrails.ToolWhy:
		return d.runWhy(ctx, args)
	case guardrails.ToolList:
		return d.runList(ctx, args)
	case guardrails.ToolCompare:
		return d.runCompare(ctx, args)
	case guardrails.ToolDeepDive:
		return d.runDeepDive(ctx, args)
	case guardrails.ToolExport:
		return d.runExport(ctx, args)
	case guardrails.ToolHelp:
		return d.runHelp(), nil
	default:
		return sse.MessagePayload{}, apperr.UserInput("tool not whitelisted")
	}
}

// --- pipeline family (analyze / claims_only / evidence_only / align_only / report_only) ---

type pipelineState struct {
	Strategy        domain.Strategy
	Claims          []domain.Claim
	EvidenceByClaim map[string][]domain.Evidence
	FinalStances    map[string]domain.Stance
	Report          domain.Report
}

type claimsPayload struct {
	Claims []domain.Claim `json:"claims"`
}

type evidencePayload struct {
	EvidenceByClaim map[string][]domain.Evidence `json:"evidence_by_claim"`
}

type alignPayload struct {
	EvidenceByClaim map[string][]domain.Evidence `json:"evidence_by_claim"`
	FinalStances    map[string]domain.Stance     `json:"final_stances"`
}

type reportPayload struct {
	Report domain.Report `json:"report"`
}

func decodeInto(payload map[string]any, target any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}

func encodeFrom(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	_ = json.Unmarshal(b, &out)
	return out
}

var stageOrder = []string{"claims", "evidence", "align", "report"}

// pipelineTargetFor maps a pipeline tool to its last required stage, and
// whether it always reruns the chain from scratch (analyze: a fresh
// top-level analysis is never resumed from a prior task's stored phases,
// even if its input text happens to repeat).
func pipelineTargetFor(tool guardrails.ToolName) (target string, fresh bool) {
	switch tool {
	case guardrails.ToolAnalyze:
		return "report", true
	case guardrails.ToolClaimsOnly:
		return "claims", false
	case guardrails.ToolEvidenceOnly:
		return "evidence", false
	case guardrails.ToolAlignOnly:
		return "align", false
	case guardrails.ToolReportOnly:
		return "report", false
	default:
		return "report", true
	}
}

func buildTaskID(inputText string) string {
	return stableHash(map[string]string{"input_text": inputText})
}

// resolveInputText gets a pipeline tool's subject text either directly
// from args["text"] or, for a resumed turn bound to a prior record, from
// that record's frozen input_text.
func (d *Dispatcher) resolveInputText(ctx context.Context, args map[string]any) (string, error) {
	if v, ok := args["text"].(string); ok && v != "" {
		return v, nil
	}
	if v, ok := args["record_id"].(string); ok && v != "" {
		rec, err := d.History.Get(ctx, v)
		if err != nil {
			return "", apperr.UserInput("record not found: " + v)
		}
		return rec.InputText, nil
	}
	return "", apperr.UserInput("no text or record_id to run the pipeline against")
}

// runPipeline is PLAN+EXECUTE for the pipeline family: it runs every stage
// up to and including target, resuming from a prior Task's stored phase
// payloads (spec.md §4.11's auto-prerequisite injection) unless fresh.
func (d *Dispatcher) runPipeline(ctx context.Context, framer *sse.Framer, taskID, inputText, target string, fresh bool) (pipelineState, error) {
	task, err := d.Tasks.EnsureTask(ctx, taskID, inputText)
	if err != nil {
		return pipelineState{}, apperr.Persistence("failed to ensure pipeline task", err)
	}

	var st pipelineState
	st.Strategy, _ = d.Engine.RunRisk(ctx, inputText)

	targetIdx := -1
	for i, s := range stageOrder {
		if s == target {
			targetIdx = i
		}
	}

	for i, stage := range stageOrder {
		if i > targetIdx {
			break
		}
		if !fresh && task.Phases[stage] == domain.PhaseDone {
			if snap, err := d.Tasks.LoadLatestPhase(ctx, taskID, stage); err == nil {
				if loadStagePayload(stage, snap.Payload, &st) {
					continue
				}
			}
		}

		start := time.Now()
		_ = framer.StageRunning(stage)
		payload := d.runStage(ctx, stage, inputText, &st)
		dur := time.Since(start).Milliseconds()

		if err := d.Tasks.SavePhase(ctx, domain.PhaseSnapshot{
			TaskID: taskID, Phase: stage, Status: domain.PhaseDone,
			DurationMS: dur, Payload: payload,
		}); err != nil {
			_ = framer.StageFailed(stage)
			return st, apperr.Persistence("failed to persist phase "+stage, err)
		}
		_ = framer.StageDone(stage)
	}
	return st, nil
}

func loadStagePayload(stage string, payload map[string]any, st *pipelineState) bool {
	switch stage {
	case "claims":
		var p claimsPayload
		if decodeInto(payload, &p) != nil {
			return false
		}
		st.Claims = p.Claims
	case "evidence":
		var p evidencePayload
		if decodeInto(payload, &p) != nil {
			return false
		}
		st.EvidenceByClaim = p.EvidenceByClaim
	case "align":
		var p alignPayload
		if decodeInto(payload, &p) != nil {
			return false
		}
		st.EvidenceByClaim = p.EvidenceByClaim
		st.FinalStances = p.FinalStances
	case "report":
		var p reportPayload
		if decodeInto(payload, &p) != nil {
			return false
		}
		st.Report = p.Report
	default:
		return false
	}
	return true
}

func (d *Dispatcher) runStage(ctx context.Context, stage, inputText string, st *pipelineState) map[string]any {
	switch stage {
	case "claims":
		st.Claims = d.Engine.RunClaims(ctx, st.Strategy, inputText)
		return encodeFrom(claimsPayload{Claims: st.Claims})
	case "evidence":
		st.EvidenceByClaim = d.Engine.RunEvidence(ctx, st.Claims, st.Strategy)
		return encodeFrom(evidencePayload{EvidenceByClaim: st.EvidenceByClaim})
	case "align":
		st.EvidenceByClaim, st.FinalStances = d.Engine.RunAlign(ctx, st.Claims, st.EvidenceByClaim)
		return encodeFrom(alignPayload{EvidenceByClaim: st.EvidenceByClaim, FinalStances: st.FinalStances})
	case "report":
		st.Report = d.Engine.RunReport(ctx, st.Claims, st.EvidenceByClaim, st.FinalStances)
		return encodeFrom(reportPayload{Report: st.Report})
	default:
		return map[string]any{}
	}
}

func (d *Dispatcher) runPipelineTool(ctx context.Context, framer *sse.Framer, sessionID string, tool guardrails.ToolName, args map[string]any) (sse.MessagePayload, error) {
	inputText, err := d.resolveInputText(ctx, args)
	if err != nil {
		return sse.MessagePayload{}, err
	}
	target, fresh := pipelineTargetFor(tool)
	taskID := buildTaskID(inputText)

	st, err := d.runPipeline(ctx, framer, taskID, inputText, target, fresh)
	if err != nil {
		return sse.MessagePayload{}, err
	}

	var recordID string
	if target == "report" {
		rec, err := d.History.Create(ctx, domain.HistoryRecord{
			InputText:        inputText,
			RiskLabel:        st.Report.RiskLabel,
			RiskScore:        st.Report.RiskScore,
			DetectedScenario: st.Report.DetectedScenario,
			EvidenceDomains:  st.Report.EvidenceDomains,
			Report:           &st.Report,
		})
		if err != nil {
			return sse.MessagePayload{}, apperr.Persistence("failed to persist history record", err)
		}
		recordID = rec.ID
		if err := d.Sessions.UpdateMeta(ctx, sessionID, map[string]any{"record_id": recordID}); err != nil {
			return sse.MessagePayload{}, apperr.Persistence("failed to bind session record_id", err)
		}
	}

	return sse.MessagePayload{
		SessionID: sessionID,
		Content:   summarizePipeline(tool, st),
		Actions:   recordActions(recordID),
	}, nil
}

func summarizePipeline(tool guardrails.ToolName, st pipelineState) string {
	switch tool {
	case guardrails.ToolClaimsOnly:
		return fmt.Sprintf("Found %d checkable claim(s).", len(st.Claims))
	case guardrails.ToolEvidenceOnly:
		total := 0
		for _, evs := range st.EvidenceByClaim {
			total += len(evs)
		}
		return fmt.Sprintf("Retrieved %d evidence item(s) across %d claim(s).", total, len(st.Claims))
	case guardrails.ToolAlignOnly:
		return fmt.Sprintf("Aligned evidence against %d claim(s).", len(st.FinalStances))
	default: // analyze, report_only
		return fmt.Sprintf("Risk: %s (%.0f/100). %s", st.Report.RiskLabel, st.Report.RiskScore, st.Report.Summary)
	}
}

func recordActions(recordID string) []any {
	if recordID == "" {
		return nil
	}
	return []any{map[string]any{"type": "command", "label": "why", "command": "/why " + recordID}}
}

// suggestedActions ports build_suggested_actions
// (original_source/app/services/intent_classifier.py) to the read-only
// tools: the follow-up actions offered after a turn vary by which tool
// just ran and, for `why`, by whether the record's risk score crossed the
// high-risk threshold -- rather than the single static "/why" action
// recordActions always returns.
func suggestedActions(tool guardrails.ToolName, recordID string, riskScore float64) []any {
	if recordID == "" {
		return nil
	}
	switch tool {
	case guardrails.ToolWhy:
		actions := []any{map[string]any{"type": "command", "label": "dig into the evidence", "command": "/deep_dive " + recordID + " evidence"}}
		if riskScore >= 70 {
			actions = append(actions, map[string]any{"type": "link", "label": "generate response content", "href": "/content"})
		} else {
			actions = append(actions,
				map[string]any{"type": "command", "label": "view evidence sources", "command": "/deep_dive " + recordID + " sources"},
				map[string]any{"type": "command", "label": "compare against history", "command": "/list"},
			)
		}
		return actions
	case guardrails.ToolDeepDive:
		return []any{
			map[string]any{"type": "command", "label": "why was this the verdict", "command": "/why " + recordID},
			map[string]any{"type": "command", "label": "dig into another angle", "command": "/deep_dive " + recordID + " general"},
		}
	case guardrails.ToolCompare:
		return []any{map[string]any{"type": "command", "label": "list recent records", "command": "/list"}}
	case guardrails.ToolList:
		return []any{map[string]any{"type": "link", "label": "open history", "href": "/history"}}
	default:
		return recordActions(recordID)
	}
}
