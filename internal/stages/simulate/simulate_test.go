package simulate

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

func TestRuleEmotionSkewsAnxiousOnHighRisk(t *testing.T) {
	r := ruleEmotion(Params{RiskScore: 90, Platform: "weibo", TimeWindowHours: 24})
	if r.EmotionDistribution["anxiety"] <= r.EmotionDistribution["neutral"] {
		t.Fatalf("expected anxiety to dominate at high risk, got %v", r.EmotionDistribution)
	}
}

func TestRuleEmotionIsDeterministic(t *testing.T) {
	p := Params{RiskScore: 60, Platform: "wechat", TimeWindowHours: 12}
	a := ruleEmotion(p)
	b := ruleEmotion(p)
	if a.Drivers[len(a.Drivers)-1] != b.Drivers[len(b.Drivers)-1] {
		t.Fatal("expected rule fallback to be deterministic for identical params")
	}
}

func TestRuleFlashpointsRespectsTimeWindow(t *testing.T) {
	r := ruleFlashpoints(Params{RiskScore: 50, Platform: "x", TimeWindowHours: 48})
	last := r.Timeline[len(r.Timeline)-1]
	if last.HourOffset != 48 {
		t.Fatalf("expected last timeline entry at hour 48, got %d", last.HourOffset)
	}
}

func TestRuleSuggestionEscalatesOnHighRisk(t *testing.T) {
	r := ruleSuggestion(Params{RiskScore: 80})
	if r.Actions[0].Priority != "urgent" {
		t.Fatalf("expected urgent priority at high risk, got %s", r.Actions[0].Priority)
	}
}

func TestRunEmotionFallsBackOnLLMFailure(t *testing.T) {
	gw := llmgw.New(&fakeProvider{err: errors.New("boom")}, nil, nil, 0, 0, 0)
	r := RunEmotion(context.Background(), gw, true, Params{RiskScore: 80, Platform: "weibo"}, domain.Report{})
	if r.FromLLM {
		t.Fatal("expected rule fallback on LLM failure")
	}
}

func TestRunNarrativesRejectsOverfullProbabilities(t *testing.T) {
	gw := llmgw.New(&fakeProvider{response: `{"narratives": [{"title": "a", "stance": "refute", "probability": 0.9}, {"title": "b", "stance": "support", "probability": 0.9}]}`}, nil, nil, 0, 0, 0)
	r := RunNarratives(context.Background(), gw, true, Params{RiskScore: 50, Platform: "x"}, domain.Report{})
	if r.FromLLM {
		t.Fatal("expected rule fallback when narrative probabilities exceed 1")
	}
}

func TestRunNarrativesUsesLLMOnValidOutput(t *testing.T) {
	gw := llmgw.New(&fakeProvider{response: `{"narratives": [{"title": "a", "stance": "refute", "probability": 0.5, "trigger_keywords": ["x"], "sample_message": "m"}]}`}, nil, nil, 0, 0, 0)
	r := RunNarratives(context.Background(), gw, true, Params{RiskScore: 50, Platform: "x"}, domain.Report{})
	if !r.FromLLM || len(r.Narratives) != 1 {
		t.Fatalf("expected LLM narratives to be used, got %+v", r)
	}
}

func TestRunFlashpointsFallsBackOnEmptyDescriptions(t *testing.T) {
	gw := llmgw.New(&fakeProvider{response: `{"descriptions": [], "timeline": []}`}, nil, nil, 0, 0, 0)
	r := RunFlashpoints(context.Background(), gw, true, Params{RiskScore: 50, Platform: "x", TimeWindowHours: 24}, domain.Report{})
	if r.FromLLM {
		t.Fatal("expected rule fallback on empty descriptions")
	}
}

func TestRunSuggestionFallsBackOnMissingActions(t *testing.T) {
	gw := llmgw.New(&fakeProvider{response: `{"summary": "x", "actions": []}`}, nil, nil, 0, 0, 0)
	r := RunSuggestion(context.Background(), gw, true, Params{RiskScore: 80}, domain.Report{})
	if r.FromLLM {
		t.Fatal("expected rule fallback when actions list is empty")
	}
}

func TestRunSuggestionNormalizesInvalidPriorityAndCategory(t *testing.T) {
	gw := llmgw.New(&fakeProvider{response: `{"summary": "x", "actions": [{"priority": "bogus", "category": "bogus", "description": "d"}]}`}, nil, nil, 0, 0, 0)
	r := RunSuggestion(context.Background(), gw, true, Params{RiskScore: 80}, domain.Report{})
	if !r.FromLLM {
		t.Fatal("expected LLM path to be used")
	}
	if r.Actions[0].Priority != "medium" || r.Actions[0].Category != "platform" {
		t.Fatalf("expected invalid priority/category normalized to defaults, got %+v", r.Actions[0])
	}
}
