package orchestrator

import (
	"context"
	"testing"
	"time"

	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/websearch"
)

type fakeSearchProvider struct {
	name    string
	results []websearch.Result
}

func (f *fakeSearchProvider) Name() string { return f.name }
func (f *fakeSearchProvider) Search(ctx context.Context, query string, topK int) ([]websearch.Result, error) {
	return f.results, nil
}

func sampleClaims() []domain.Claim {
	return []domain.Claim{
		{ClaimID: "c1", ClaimText: "某地政府今天发布通报", Entity: "某地政府", Time: "今天"},
		{ClaimID: "c2", ClaimText: "据称该事件已造成重大影响", Entity: "该事件"},
	}
}

func newTestEngine() *Engine {
	registry := websearch.NewRegistry(&fakeSearchProvider{
		name: "fake",
		results: []websearch.Result{
			{Title: "官方通报确认属实", URL: "https://www.gov.cn/a", Summary: "政府发布权威通报", Score: 0.8, PublishedAt: time.Now().Format(time.RFC3339)},
		},
	})
	return NewEngine(Config{
		SearchRegistry: registry,
		SearchProvider: "fake",
		EvidenceFanout: 2,
	})
}

func TestRunEvidenceProducesOneEntryPerClaim(t *testing.T) {
	e := newTestEngine()
	cl := sampleClaims()
	strategy := domain.Strategy{EvidencePerClaim: 3}
	out := e.RunEvidence(context.Background(), cl, strategy)
	if len(out) != len(cl) {
		t.Fatalf("expected %d claim entries, got %d", len(cl), len(out))
	}
	for _, c := range cl {
		if len(out[c.ClaimID]) == 0 {
			t.Fatalf("expected non-empty evidence for claim %s", c.ClaimID)
		}
	}
}

func TestRunAlignPopulatesStanceAndFinalStances(t *testing.T) {
	e := newTestEngine()
	cl := sampleClaims()
	evByClaim := e.RunEvidence(context.Background(), cl, domain.Strategy{EvidencePerClaim: 3})
	aligned, finalStances := e.RunAlign(context.Background(), cl, evByClaim)
	if len(finalStances) != len(cl) {
		t.Fatalf("expected a final stance per claim, got %d", len(finalStances))
	}
	for claimID, evs := range aligned {
		for _, ev := range evs {
			if ev.Stance == "" {
				t.Fatalf("expected stance set on evidence for claim %s", claimID)
			}
		}
	}
}

func TestRunFullProducesAReport(t *testing.T) {
	e := newTestEngine()
	result := e.RunFull(context.Background(), "某地政府今天发布通报称该事件已造成重大影响，请居民注意安全")
	if len(result.Claims) == 0 {
		t.Fatal("expected at least one claim")
	}
	if result.Report.RiskLevel == "" {
		t.Fatal("expected a non-empty risk level on the report")
	}
	if len(result.Report.ClaimReports) != len(result.Claims) {
		t.Fatalf("expected one claim report per claim, got %d vs %d", len(result.Report.ClaimReports), len(result.Claims))
	}
}
