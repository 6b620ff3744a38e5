package report

import (
	"context"
	"errors"
	"testing"

	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/llmgw"
)

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Complete(ctx context.Context, req llmgw.CompletionRequest) (string, error) {
	return f.response, f.err
}

func TestDeriveFinalStancePicksHighestWeightedStance(t *testing.T) {
	evs := []domain.Evidence{
		{Stance: domain.StanceRefute, SourceWeight: 0.9, AlignmentConfidence: 0.9},
		{Stance: domain.StanceSupport, SourceWeight: 0.2, AlignmentConfidence: 0.5},
	}
	if s := DeriveFinalStance(evs); s != domain.StanceRefute {
		t.Fatalf("expected refute to win on higher weighted confidence, got %s", s)
	}
}

func TestDeriveFinalStanceDefaultsInsufficientOnTie(t *testing.T) {
	evs := []domain.Evidence{{Stance: domain.StanceInsufficient, SourceWeight: 0.5}}
	if s := DeriveFinalStance(evs); s != domain.StanceInsufficient {
		t.Fatalf("expected insufficient, got %s", s)
	}
}

func TestRunScoresSupportRefuteInsufficientClaims(t *testing.T) {
	claims := []domain.Claim{{ClaimID: "c1"}, {ClaimID: "c2"}, {ClaimID: "c3"}}
	finalStances := map[string]domain.Stance{
		"c1": domain.StanceSupport,
		"c2": domain.StanceRefute,
		"c3": domain.StanceInsufficient,
	}
	rep := Run(context.Background(), nil, false, claims, nil, finalStances)
	want := domain.ClampScore(55 + 6 - 12 - 4)
	if rep.RiskScore != want {
		t.Fatalf("expected score %v, got %v", want, rep.RiskScore)
	}
}

func TestRunEmitsSuspiciousPointsForRefuteAndInsufficient(t *testing.T) {
	claims := []domain.Claim{{ClaimID: "c1"}, {ClaimID: "c2"}}
	finalStances := map[string]domain.Stance{"c1": domain.StanceRefute, "c2": domain.StanceInsufficient}
	rep := Run(context.Background(), nil, false, claims, nil, finalStances)
	if len(rep.SuspiciousPoints) != 2 {
		t.Fatalf("expected 2 suspicious points, got %v", rep.SuspiciousPoints)
	}
}

func TestRunFallsBackToNoneNotableWhenAllSupport(t *testing.T) {
	claims := []domain.Claim{{ClaimID: "c1"}}
	finalStances := map[string]domain.Stance{"c1": domain.StanceSupport}
	rep := Run(context.Background(), nil, false, claims, nil, finalStances)
	if len(rep.SuspiciousPoints) != 1 || rep.SuspiciousPoints[0] != "none notable, keep monitoring" {
		t.Fatalf("expected fallback suspicious point, got %v", rep.SuspiciousPoints)
	}
}

func TestRunDerivesRiskBandFromScore(t *testing.T) {
	claims := []domain.Claim{{ClaimID: "c1"}, {ClaimID: "c2"}, {ClaimID: "c3"}, {ClaimID: "c4"}}
	finalStances := map[string]domain.Stance{
		"c1": domain.StanceRefute, "c2": domain.StanceRefute, "c3": domain.StanceRefute, "c4": domain.StanceRefute,
	}
	rep := Run(context.Background(), nil, false, claims, nil, finalStances)
	if rep.RiskLevel != domain.RiskLow {
		t.Fatalf("expected low band for score %v, got %s", rep.RiskScore, rep.RiskLevel)
	}
}

func TestRunDetectsHealthScenarioByKeywordVote(t *testing.T) {
	claims := []domain.Claim{
		{ClaimID: "c1", ClaimText: "某地医院接种疫苗后出现不良反应"},
		{ClaimID: "c2", ClaimText: "官方回应称病毒检测结果正常"},
	}
	rep := Run(context.Background(), nil, false, claims, nil, map[string]domain.Stance{})
	if rep.DetectedScenario != domain.ScenarioHealth {
		t.Fatalf("expected health scenario, got %s", rep.DetectedScenario)
	}
}

func TestRunCollectsSortedEvidenceDomains(t *testing.T) {
	claims := []domain.Claim{{ClaimID: "c1"}}
	evByClaim := map[string][]domain.Evidence{
		"c1": {{Domain: "www.who.int"}, {Domain: "www.gov.cn"}, {Domain: ""}},
	}
	rep := Run(context.Background(), nil, false, claims, evByClaim, map[string]domain.Stance{"c1": domain.StanceSupport})
	want := []string{"www.gov.cn", "www.who.int"}
	if len(rep.EvidenceDomains) != 2 || rep.EvidenceDomains[0] != want[0] || rep.EvidenceDomains[1] != want[1] {
		t.Fatalf("expected sorted domains %v, got %v", want, rep.EvidenceDomains)
	}
}

func TestRunFallsBackToDeterministicSummaryOnLLMFailure(t *testing.T) {
	gw := llmgw.New(&fakeProvider{err: errors.New("boom")}, nil, nil, 0, 0, 0)
	claims := []domain.Claim{{ClaimID: "c1"}}
	rep := Run(context.Background(), gw, true, claims, nil, map[string]domain.Stance{"c1": domain.StanceSupport})
	if rep.Summary == "" {
		t.Fatal("expected a non-empty fallback summary")
	}
}

func TestRunAppliesLLMSummaryAndConclusions(t *testing.T) {
	gw := llmgw.New(&fakeProvider{response: `{"summary": "llm summary", "suspicious_points": ["custom point"], "claim_conclusions": [{"claim_id": "c1", "conclusion": "looks credible"}]}`}, nil, nil, 0, 0, 0)
	claims := []domain.Claim{{ClaimID: "c1"}}
	rep := Run(context.Background(), gw, true, claims, nil, map[string]domain.Stance{"c1": domain.StanceSupport})
	if rep.Summary != "llm summary" {
		t.Fatalf("expected LLM summary applied, got %s", rep.Summary)
	}
	if len(rep.SuspiciousPoints) != 1 || rep.SuspiciousPoints[0] != "custom point" {
		t.Fatalf("expected LLM suspicious points applied, got %v", rep.SuspiciousPoints)
	}
	if rep.ClaimReports[0].Notes != "looks credible" {
		t.Fatalf("expected per-claim conclusion applied, got %q", rep.ClaimReports[0].Notes)
	}
}
