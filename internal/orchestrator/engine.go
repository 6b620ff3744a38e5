// Package orchestrator's Engine is the facade spec.md §5 implies by fixing
// the pipeline's strict stage order (risk -> claims -> evidence ->
// summarize+align -> report -> simulate -> content): one place that wires
// the seven Stage Engines together behind a handful of Run* methods, so the
// Dispatcher (internal/dispatch) and the synchronous per-stage HTTP
// endpoints (spec.md §6.1) share identical stage-calling code instead of
// each re-deriving the wiring. Grounded on the teacher's Runner interface
// (handler.go) as the shape for "one facade method per dispatchable unit of
// work", adapted from a single Execute(workflow) entrypoint to one method
// per Stage Engine since our stages are synchronously composable, not
// queued Kafka commands.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"factcheck-orchestrator/internal/concurrency"
	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/llmgw"
	"factcheck-orchestrator/internal/stages/align"
	"factcheck-orchestrator/internal/stages/claims"
	"factcheck-orchestrator/internal/stages/content"
	"factcheck-orchestrator/internal/stages/evidence"
	"factcheck-orchestrator/internal/stages/extract"
	"factcheck-orchestrator/internal/stages/report"
	"factcheck-orchestrator/internal/stages/risk"
	"factcheck-orchestrator/internal/stages/simulate"
	"factcheck-orchestrator/internal/websearch"
)

// Config wires an Engine to its Gateway, search registry, and fan-out limits.
// All fields are read-only after construction; Engine itself holds no
// mutable state, so one Engine is safely shared across sessions.
type Config struct {
	Gateway        *llmgw.Gateway
	LLMEnabled     bool
	SearchRegistry *websearch.Registry
	SearchProvider string
	AllowedDomains []string
	EvidenceFanout int // concurrency.RunBounded limit for per-claim evidence-search/align fan-out
	ClaimsMethod   string
	ClaimsMinScore float64
	MaxClaimItems  int
}

// Engine is the stateless pipeline facade; construct one per process.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.EvidenceFanout < 1 {
		cfg.EvidenceFanout = 4
	}
	if cfg.ClaimsMethod == "" {
		cfg.ClaimsMethod = claims.MethodDefault
	}
	if cfg.ClaimsMinScore <= 0 {
		cfg.ClaimsMinScore = 0.25
	}
	if cfg.MaxClaimItems < 1 {
		cfg.MaxClaimItems = 6
	}
	return &Engine{cfg: cfg}
}

// RunRisk is the pipeline's cheap first stage: a pre-claims snapshot that
// sizes the rest of the run via domain.Strategy (SPEC_FULL.md §4.2.5).
func (e *Engine) RunRisk(ctx context.Context, text string) (domain.Strategy, risk.Snapshot) {
	return risk.Run(ctx, e.cfg.Gateway, e.cfg.LLMEnabled, e.cfg.MaxClaimItems, text)
}

// RunClaims is the Claims Stage (spec.md §4.3).
func (e *Engine) RunClaims(ctx context.Context, strategy domain.Strategy, text string) []domain.Claim {
	maxClaims := strategy.MaxClaims
	if maxClaims < 1 {
		maxClaims = e.cfg.MaxClaimItems
	}
	return claims.Run(ctx, e.cfg.Gateway, e.cfg.LLMEnabled, e.cfg.ClaimsMethod, maxClaims, e.cfg.ClaimsMinScore, text)
}

// RunEvidence runs Evidence-search then Evidence-summarize for every claim
// (spec.md §4.4, §4.5), fanning out across claims with a bounded worker
// pool per spec.md §5's "fan-out within the task ... bounded by a worker
// pool" rule.
func (e *Engine) RunEvidence(ctx context.Context, cl []domain.Claim, strategy domain.Strategy) map[string][]domain.Evidence {
	topK := strategy.EvidencePerClaim
	if topK < 1 {
		topK = domain.EvidencePerClaimForRisk(0)
	}
	out := make(map[string][]domain.Evidence, len(cl))
	var mu sync.Mutex
	now := time.Now()
	_ = concurrency.RunBounded(ctx, e.cfg.EvidenceFanout, len(cl), func(ctx context.Context, i int) error {
		c := cl[i]
		found := evidence.Search(ctx, e.cfg.SearchRegistry, e.cfg.SearchProvider, c, topK, e.cfg.AllowedDomains, now)
		merged := evidence.Summarize(ctx, e.cfg.Gateway, e.cfg.LLMEnabled, c, found, strategy)
		mu.Lock()
		out[c.ClaimID] = merged
		mu.Unlock()
		return nil
	})
	return out
}

// RunAlign runs the Align Stage over every (claim, evidence) pair (spec.md
// §4.6), writing the stance judgment back onto each Evidence row and
// deriving each claim's single final_stance via report.DeriveFinalStance.
func (e *Engine) RunAlign(ctx context.Context, cl []domain.Claim, evidencesByClaim map[string][]domain.Evidence) (map[string][]domain.Evidence, map[string]domain.Stance) {
	claimByID := make(map[string]domain.Claim, len(cl))
	for _, c := range cl {
		claimByID[c.ClaimID] = c
	}

	aligned := make(map[string][]domain.Evidence, len(evidencesByClaim))
	finalStances := make(map[string]domain.Stance, len(evidencesByClaim))

	for claimID, evs := range evidencesByClaim {
		claim := claimByID[claimID]
		rows := make([]domain.Evidence, len(evs))
		_ = concurrency.RunBounded(ctx, e.cfg.EvidenceFanout, len(evs), func(ctx context.Context, i int) error {
			ev := evs[i]
			res := align.Run(ctx, e.cfg.Gateway, e.cfg.LLMEnabled, claim, ev)
			ev.Stance = res.Stance
			ev.AlignmentConfidence = res.Confidence
			ev.AlignmentRationale = res.Rationale
			rows[i] = ev
			return nil
		})
		aligned[claimID] = rows
		finalStances[claimID] = report.DeriveFinalStance(rows)
	}
	return aligned, finalStances
}

// RunReport is the Report Stage (spec.md §4.7).
func (e *Engine) RunReport(ctx context.Context, cl []domain.Claim, evidencesByClaim map[string][]domain.Evidence, finalStances map[string]domain.Stance) domain.Report {
	return report.Run(ctx, e.cfg.Gateway, e.cfg.LLMEnabled, cl, evidencesByClaim, finalStances)
}

// SimulationParams configures RunSimulation. Every current caller sets only
// RiskScore, so Platform is empty and TimeWindowHours is 0 (the rule
// flashpoints then use 24 hours); MaxRetries/RetryDelay forward straight into
// the Gateway's own retry mechanism (spec.md §4.8).
type SimulationParams = simulate.Params

// RunSimulation runs the Simulate Stage's four sequential sub-stages
// (spec.md §4.8) and assembles their results into one persistable map.
func (e *Engine) RunSimulation(ctx context.Context, p SimulationParams, rep domain.Report) map[string]any {
	emotion := simulate.RunEmotion(ctx, e.cfg.Gateway, e.cfg.LLMEnabled, p, rep)
	narratives := simulate.RunNarratives(ctx, e.cfg.Gateway, e.cfg.LLMEnabled, p, rep)
	flashpoints := simulate.RunFlashpoints(ctx, e.cfg.Gateway, e.cfg.LLMEnabled, p, rep)
	suggestion := simulate.RunSuggestion(ctx, e.cfg.Gateway, e.cfg.LLMEnabled, p, rep)
	return map[string]any{
		"emotion":     emotion,
		"narratives":  narratives,
		"flashpoints": flashpoints,
		"suggestion":  suggestion,
	}
}

// RunContent is the Content-generate Stage (spec.md §4.9).
func (e *Engine) RunContent(ctx context.Context, style string, rep domain.Report, sim map[string]any) content.Result {
	return content.Run(ctx, e.cfg.Gateway, e.cfg.LLMEnabled, style, rep, sim)
}

// PipelineResult is RunFull's bundled output: every stage's payload, so a
// caller (the synchronous /detect and /detect/url endpoints)
// can persist or serialize whichever slice it needs.
type PipelineResult struct {
	Strategy        domain.Strategy
	Claims          []domain.Claim
	EvidenceByClaim map[string][]domain.Evidence
	FinalStances    map[string]domain.Stance
	Report          domain.Report
}

// RunURLExtract cleans a fetched page's raw HTML and asks the LM to pull
// out its news elements (spec.md §6.1's /detect/url), the prerequisite
// step RunFull's claim text must come from rather than the raw page.
func (e *Engine) RunURLExtract(ctx context.Context, sourceURL, rawHTML string) extract.Result {
	return extract.Run(ctx, e.cfg.Gateway, sourceURL, rawHTML)
}

// RunFull runs the strictly-ordered risk -> claims -> evidence ->
// summarize+align -> report chain (spec.md §5) in one call, for the
// synchronous /detect and /detect/url endpoints. The Dispatcher does not
// use it; it runs the stages one by one.
func (e *Engine) RunFull(ctx context.Context, text string) PipelineResult {
	strategy, _ := e.RunRisk(ctx, text)
	cl := e.RunClaims(ctx, strategy, text)
	evByClaim := e.RunEvidence(ctx, cl, strategy)
	aligned, finalStances := e.RunAlign(ctx, cl, evByClaim)
	rep := e.RunReport(ctx, cl, aligned, finalStances)
	return PipelineResult{
		Strategy:        strategy,
		Claims:          cl,
		EvidenceByClaim: aligned,
		FinalStances:    finalStances,
		Report:          rep,
	}
}
