package llmgw

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("fakeProvider: out of scripted responses")
}

func TestCallJSONDirectParse(t *testing.T) {
	p := &fakeProvider{responses: []string{`{"risk_score": 42}`}}
	gw := New(p, nil, nil, time.Second, 0, 0)
	out := gw.CallJSON(context.Background(), "sys", "user", CallJSONOptions{TraceLabel: "t1"})
	if out == nil {
		t.Fatal("expected parsed object")
	}
	if out["risk_score"].(float64) != 42 {
		t.Errorf("unexpected risk_score: %v", out["risk_score"])
	}
}

func TestCallJSONRepairsFencedAndTrailingComma(t *testing.T) {
	p := &fakeProvider{responses: []string{"Here you go:\n```json\n{\"a\": 1, \"b\": [1,2,],}\n```\nHope that helps."}}
	gw := New(p, nil, nil, time.Second, 0, 0)
	out := gw.CallJSON(context.Background(), "sys", "user", CallJSONOptions{TraceLabel: "t2"})
	if out == nil {
		t.Fatal("expected repaired parse to succeed")
	}
	if out["a"].(float64) != 1 {
		t.Errorf("unexpected a: %v", out["a"])
	}
}

func TestCallJSONReturnsNilOnTotalFailure(t *testing.T) {
	p := &fakeProvider{responses: []string{"not json at all, sorry"}}
	gw := New(p, nil, nil, time.Second, 0, 0)
	out := gw.CallJSON(context.Background(), "sys", "user", CallJSONOptions{TraceLabel: "t3"})
	if out != nil {
		t.Fatalf("expected nil, got %v", out)
	}
}

func TestCallJSONRetriesOnProviderError(t *testing.T) {
	p := &fakeProvider{
		errs:      []error{errors.New("boom"), nil},
		responses: []string{"", `{"ok": true}`},
	}
	gw := New(p, nil, nil, time.Second, 1, time.Millisecond)
	out := gw.CallJSON(context.Background(), "sys", "user", CallJSONOptions{TraceLabel: "t4"})
	if out == nil {
		t.Fatal("expected success on second attempt")
	}
	if p.calls != 2 {
		t.Errorf("expected 2 calls, got %d", p.calls)
	}
}

func TestCallJSONExhaustsRetriesAndReturnsNil(t *testing.T) {
	p := &fakeProvider{errs: []error{errors.New("a"), errors.New("b")}}
	gw := New(p, nil, nil, time.Second, 1, time.Millisecond)
	out := gw.CallJSON(context.Background(), "sys", "user", CallJSONOptions{TraceLabel: "t5"})
	if out != nil {
		t.Fatalf("expected nil after exhausting retries, got %v", out)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 calls (1 + 1 retry), got %d", p.calls)
	}
}
