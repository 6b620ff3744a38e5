package risk

import (
	"context"
	"testing"

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

func TestRunRuleBaselineScoreFiftyOnNeutralText(t *testing.T) {
	snap := runRule("今天天气不错，适合出门散步。")
	if snap.PreliminaryScore != 50 {
		t.Fatalf("expected baseline score 50 for neutral text, got %v", snap.PreliminaryScore)
	}
	if snap.FromLLM {
		t.Fatal("expected FromLLM false for the rule path")
	}
}

func TestRunRuleRaisesScoreOnRiskyText(t *testing.T) {
	snap := runRule("震惊！内部消息称100%真实，必须立即转发！！")
	if snap.PreliminaryScore <= 50 {
		t.Fatalf("expected risky text to score above baseline, got %v", snap.PreliminaryScore)
	}
}

func TestRunRuleLowersScoreOnAttributedSource(t *testing.T) {
	withoutSource := runRule("这是重要消息必须转发")
	withSource := runRule("据新华社报道，这是重要消息必须转发")
	if withSource.PreliminaryScore >= withoutSource.PreliminaryScore {
		t.Fatalf("expected attributed source to lower score: with=%v without=%v", withSource.PreliminaryScore, withoutSource.PreliminaryScore)
	}
}

func TestRunRuleDetectsNewsDateline(t *testing.T) {
	snap := runRule("新华社记者张三报道，本月发布了最新数据。")
	if !snap.IsNews {
		t.Fatal("expected a wire-service dateline to set IsNews")
	}
	if snap.DetectedTextType != "news_report" {
		t.Fatalf("expected detected_text_type news_report, got %s", snap.DetectedTextType)
	}
}

func TestComplexityFromTextBuckets(t *testing.T) {
	if c := complexityFromText("一句话。"); c != "simple" {
		t.Fatalf("expected simple for one short sentence, got %s", c)
	}
	long := "第一句话。第二句话。第三句话。第四句话。第五句话。第六句话。第七句话。Entity1 Entity2 Entity3 Entity4 Entity5 Entity6 Entity7."
	if c := complexityFromText(long); c != "complex" {
		t.Fatalf("expected complex for many sentences/entities, got %s", c)
	}
}

func TestStrategyFromSnapshotScalesMaxClaimsWithComplexity(t *testing.T) {
	simple := strategyFromSnapshot(Snapshot{ComplexityLevel: "simple", PreliminaryScore: 10}, 20)
	medium := strategyFromSnapshot(Snapshot{ComplexityLevel: "medium", PreliminaryScore: 10}, 20)
	complex := strategyFromSnapshot(Snapshot{ComplexityLevel: "complex", PreliminaryScore: 10}, 20)
	if simple.MaxClaims != 3 || medium.MaxClaims != 6 || complex.MaxClaims != 10 {
		t.Fatalf("expected 3/6/10, got %d/%d/%d", simple.MaxClaims, medium.MaxClaims, complex.MaxClaims)
	}
}

func TestStrategyFromSnapshotClampsToConfiguredMax(t *testing.T) {
	s := strategyFromSnapshot(Snapshot{ComplexityLevel: "complex", PreliminaryScore: 10}, 4)
	if s.MaxClaims != 4 {
		t.Fatalf("expected MaxClaims clamped to CLAIM_MAX_ITEMS=4, got %d", s.MaxClaims)
	}
}

func TestStrategyFromSnapshotEvidencePerClaimFollowsRiskBand(t *testing.T) {
	s := strategyFromSnapshot(Snapshot{ComplexityLevel: "medium", PreliminaryScore: 80}, 20)
	if s.EvidencePerClaim != 10 {
		t.Fatalf("expected evidence_per_claim=10 for score>=75, got %d", s.EvidencePerClaim)
	}
}

func TestRunFallsBackToRuleWhenLLMDisabled(t *testing.T) {
	strategy, snap := Run(context.Background(), nil, false, 6, "今天天气不错")
	if snap.FromLLM {
		t.Fatal("expected rule path when llmEnabled is false")
	}
	if strategy.MaxClaims == 0 {
		t.Fatal("expected a non-zero MaxClaims from the rule path")
	}
}

func TestRunUsesLLMPathOnSuccess(t *testing.T) {
	gw := llmgw.New(&fakeProvider{response: `{"preliminary_score": 70, "complexity_level": "medium", "is_news": true, "news_confidence": 0.9, "news_reason": "wire service", "detected_text_type": "news_report"}`}, nil, nil, 0, 0, 0)
	strategy, snap := Run(context.Background(), gw, true, 20, "some text")
	if !snap.FromLLM {
		t.Fatal("expected LLM path to succeed")
	}
	if snap.PreliminaryScore != 70 {
		t.Fatalf("expected preliminary_score 70, got %v", snap.PreliminaryScore)
	}
	if strategy.EvidencePerClaim != 7 {
		t.Fatalf("expected evidence_per_claim=7 for score band [55,75), got %d", strategy.EvidencePerClaim)
	}
}

func TestRunFallsBackToRuleOnLLMFailure(t *testing.T) {
	gw := llmgw.New(&fakeProvider{err: context.DeadlineExceeded}, nil, nil, 0, 0, 0)
	_, snap := Run(context.Background(), gw, true, 20, "震惊！内部消息称100%真实")
	if snap.FromLLM {
		t.Fatal("expected rule fallback when the LLM call fails")
	}
}
