package content

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

func sampleReport() domain.Report {
	return domain.Report{
		RiskLevel:        domain.RiskHigh,
		RiskLabel:        domain.LabelSuspicious,
		Summary:          "this content is suspicious",
		SuspiciousPoints: []string{"claim c1 refuted by evidence"},
		ClaimReports: []domain.ClaimReport{
			{Claim: domain.Claim{ClaimID: "c1", ClaimText: "某事件属实"}, FinalStance: domain.StanceRefute},
		},
	}
}

func TestRunFallsBackToRuleOnLLMFailure(t *testing.T) {
	gw := llmgw.New(&fakeProvider{err: errors.New("boom")}, nil, nil, 0, 0, 0)
	r := Run(context.Background(), gw, true, "short", sampleReport(), nil)
	if r.FromLLM {
		t.Fatal("expected rule fallback on LLM failure")
	}
	if r.Clarification.Short == "" {
		t.Fatal("expected a non-empty short clarification")
	}
}

func TestRunRuleFallbackGeneratesFAQPerClaim(t *testing.T) {
	r := ruleFallback("short", sampleReport())
	if len(r.FAQ) != 1 {
		t.Fatalf("expected 1 FAQ item per claim, got %d", len(r.FAQ))
	}
}

func TestRunRuleFallbackGeneratesPlatformScripts(t *testing.T) {
	r := ruleFallback("short", sampleReport())
	if len(r.PlatformScripts) == 0 {
		t.Fatal("expected at least one platform script")
	}
}

func TestRunUsesLLMPathOnValidOutput(t *testing.T) {
	gw := llmgw.New(&fakeProvider{response: `{"clarification": {"short": "s", "medium": "m", "long": "l"}, "faq": [{"question": "q", "answer": "a"}], "platform_scripts": [{"platform": "weibo", "script": "script"}]}`}, nil, nil, 0, 0, 0)
	r := Run(context.Background(), gw, true, "short", sampleReport(), nil)
	if !r.FromLLM {
		t.Fatal("expected LLM path to be used")
	}
	if r.Clarification.Short != "s" {
		t.Fatalf("expected short clarification 's', got %q", r.Clarification.Short)
	}
}

func TestRunFallsBackWhenLLMClarificationMissing(t *testing.T) {
	gw := llmgw.New(&fakeProvider{response: `{"faq": []}`}, nil, nil, 0, 0, 0)
	r := Run(context.Background(), gw, true, "short", sampleReport(), nil)
	if r.FromLLM {
		t.Fatal("expected rule fallback when clarification is missing")
	}
}

func TestToMapRoundTripsFields(t *testing.T) {
	r := Result{
		Clarification:   Clarification{Short: "s", Medium: "m", Long: "l"},
		FAQ:             []FAQItem{{Question: "q", Answer: "a"}},
		PlatformScripts: []PlatformScript{{Platform: "weibo", Script: "x"}},
	}
	m := r.ToMap()
	clar, ok := m["clarification"].(map[string]any)
	if !ok || clar["short"] != "s" {
		t.Fatalf("expected clarification.short 's', got %v", m["clarification"])
	}
}

func TestSanitizeStripsScriptTags(t *testing.T) {
	rep := sampleReport()
	rep.Summary = "hello <script>alert(1)</script> world"
	r := ruleFallback("short", rep)
	sanitized := sanitizeResult(r)
	if contains(sanitized.Clarification.Short, "<script>") {
		t.Fatalf("expected script tag stripped, got %q", sanitized.Clarification.Short)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
