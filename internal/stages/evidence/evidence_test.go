package evidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/llmgw"
	"factcheck-orchestrator/internal/websearch"
)

type fakeSearchProvider struct {
	name    string
	results []websearch.Result
	err     error
}

func (p *fakeSearchProvider) Name() string { return p.name }
func (p *fakeSearchProvider) Search(ctx context.Context, query string, topK int) ([]websearch.Result, error) {
	return p.results, p.err
}

func TestSearchInsertsPlaceholderWhenRegistryNil(t *testing.T) {
	out := Search(context.Background(), nil, "tavily", domain.Claim{ClaimID: "c1"}, 5, nil, time.Now())
	if len(out) != 1 || out[0].Stance != domain.StanceInsufficient {
		t.Fatalf("expected single insufficient placeholder, got %v", out)
	}
}

func TestSearchInsertsPlaceholderWhenProviderUnknown(t *testing.T) {
	reg := websearch.NewRegistry(&fakeSearchProvider{name: "tavily"})
	out := Search(context.Background(), reg, "serpapi", domain.Claim{ClaimID: "c1"}, 5, nil, time.Now())
	if len(out) != 1 || out[0].SourceType != "placeholder" {
		t.Fatalf("expected placeholder for unknown provider, got %v", out)
	}
}

func TestSearchInsertsPlaceholderOnProviderError(t *testing.T) {
	reg := websearch.NewRegistry(&fakeSearchProvider{name: "tavily", err: errors.New("boom")})
	out := Search(context.Background(), reg, "tavily", domain.Claim{ClaimID: "c1"}, 5, nil, time.Now())
	if len(out) != 1 || out[0].SourceType != "placeholder" {
		t.Fatalf("expected placeholder on provider error, got %v", out)
	}
}

func TestSearchRanksAndTagsStance(t *testing.T) {
	reg := websearch.NewRegistry(&fakeSearchProvider{name: "tavily", results: []websearch.Result{
		{Title: "官方辟谣：该消息为谣言", URL: "https://www.gov.cn/a", Summary: "政府部门已辟谣", Score: 1.0, PublishedAt: time.Now().Format("2006-01-02")},
		{Title: "unrelated filler", URL: "https://example.com/b", Summary: "nothing relevant here", Score: 0.5},
	}})
	claim := domain.Claim{ClaimID: "c1", ClaimText: "该消息为谣言"}
	out := Search(context.Background(), reg, "tavily", claim, 5, nil, time.Now())
	if len(out) != 2 {
		t.Fatalf("expected 2 evidence rows, got %d", len(out))
	}
	if out[0].EvidenceID != "e1" || out[1].EvidenceID != "e2" {
		t.Fatalf("expected sequential evidence ids, got %s %s", out[0].EvidenceID, out[1].EvidenceID)
	}
	if out[0].Stance != domain.StanceRefute {
		t.Fatalf("expected first ranked row to be tagged refute, got %s", out[0].Stance)
	}
	if out[0].Domain != "www.gov.cn" {
		t.Fatalf("expected domain www.gov.cn, got %s", out[0].Domain)
	}
}

type fakeSummarizeProvider struct {
	response string
	err      error
}

func (f *fakeSummarizeProvider) Name() string { return "fake" }
func (f *fakeSummarizeProvider) Complete(ctx context.Context, req llmgw.CompletionRequest) (string, error) {
	return f.response, f.err
}

func baseEvidences() []domain.Evidence {
	return []domain.Evidence{
		{EvidenceID: "e1", ClaimID: "c1", Title: "A", URL: "https://a.example/1", Source: "tavily", SourceWeight: 0.8, Stance: domain.StanceSupport},
		{EvidenceID: "e2", ClaimID: "c1", Title: "B", URL: "https://b.example/2", Source: "serpapi", SourceWeight: 0.6, Stance: domain.StanceSupport},
	}
}

func TestSummarizePassesThroughWhenSingleEvidenceRow(t *testing.T) {
	evs := baseEvidences()[:1]
	out := Summarize(context.Background(), nil, true, domain.Claim{ClaimID: "c1"}, evs, domain.Strategy{EnableSummarization: true, SummaryTargetMax: 2})
	if len(out) != 1 {
		t.Fatalf("expected pass-through for single evidence row, got %d", len(out))
	}
}

func TestSummarizePassesThroughWhenDisabled(t *testing.T) {
	evs := baseEvidences()
	out := Summarize(context.Background(), nil, true, domain.Claim{ClaimID: "c1"}, evs, domain.Strategy{EnableSummarization: false, SummaryTargetMax: 2})
	if len(out) != 2 {
		t.Fatalf("expected pass-through when summarization disabled, got %d", len(out))
	}
}

func TestSummarizePassesThroughOnLLMFailure(t *testing.T) {
	gw := llmgw.New(&fakeSummarizeProvider{err: errors.New("boom")}, nil, nil, 0, 0, 0)
	evs := baseEvidences()
	out := Summarize(context.Background(), gw, true, domain.Claim{ClaimID: "c1"}, evs, domain.Strategy{EnableSummarization: true, SummaryTargetMax: 2})
	if len(out) != 2 {
		t.Fatalf("expected pass-through on LLM failure, got %d", len(out))
	}
}

func TestSummarizeMergesRowsOnSuccess(t *testing.T) {
	gw := llmgw.New(&fakeSummarizeProvider{response: `{"rows": [{"summary_text": "merged summary", "stance_hint": "support", "confidence": 0.9, "source_indices": [0, 1]}]}`}, nil, nil, 0, 0, 0)
	evs := baseEvidences()
	out := Summarize(context.Background(), gw, true, domain.Claim{ClaimID: "c1"}, evs, domain.Strategy{EnableSummarization: true, SummaryTargetMax: 2})
	if len(out) != 1 {
		t.Fatalf("expected 1 merged row, got %d", len(out))
	}
	if out[0].EvidenceID != "s1" {
		t.Fatalf("expected merged evidence id s1, got %s", out[0].EvidenceID)
	}
	if out[0].SourceType != "web_summary" {
		t.Fatalf("expected source_type web_summary, got %s", out[0].SourceType)
	}
	if out[0].URL != "https://a.example/1" {
		t.Fatalf("expected url to inherit first source, got %s", out[0].URL)
	}
	wantWeight := domain.Clamp01(((0.8 + 0.6) / 2) * 0.9)
	if out[0].SourceWeight != wantWeight {
		t.Fatalf("expected source_weight %v, got %v", wantWeight, out[0].SourceWeight)
	}
}

func TestSummarizePassesThroughOnEmptyRows(t *testing.T) {
	gw := llmgw.New(&fakeSummarizeProvider{response: `{"rows": []}`}, nil, nil, 0, 0, 0)
	evs := baseEvidences()
	out := Summarize(context.Background(), gw, true, domain.Claim{ClaimID: "c1"}, evs, domain.Strategy{EnableSummarization: true, SummaryTargetMax: 2})
	if len(out) != 2 {
		t.Fatalf("expected pass-through on empty rows, got %d", len(out))
	}
}
