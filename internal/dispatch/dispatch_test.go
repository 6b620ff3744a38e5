package dispatch

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"factcheck-orchestrator/internal/concurrency"
	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/guardrails"
	"factcheck-orchestrator/internal/orchestrator"
	"factcheck-orchestrator/internal/sse"
	"factcheck-orchestrator/internal/store"
	"factcheck-orchestrator/internal/websearch"
)

type fakeSearchProvider struct{ results []websearch.Result }

func (f *fakeSearchProvider) Name() string { return "fake" }
func (f *fakeSearchProvider) Search(ctx context.Context, query string, topK int) ([]websearch.Result, error) {
	return f.results, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.SessionStore) {
	t.Helper()
	sessions, err := store.OpenSessionStore(filepath.Join(t.TempDir(), "sessions.db"), false)
	if err != nil {
		t.Fatalf("OpenSessionStore: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })
	tasks, err := store.OpenTaskStore(filepath.Join(t.TempDir(), "tasks.db"), false)
	if err != nil {
		t.Fatalf("OpenTaskStore: %v", err)
	}
	t.Cleanup(func() { tasks.Close() })
	history, err := store.OpenHistoryStore(filepath.Join(t.TempDir(), "history.db"), false)
	if err != nil {
		t.Fatalf("OpenHistoryStore: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	registry := websearch.NewRegistry(&fakeSearchProvider{results: []websearch.Result{
		{Title: "官方通报确认属实", URL: "https://www.gov.cn/a", Summary: "政府发布权威通报", Score: 0.8, PublishedAt: time.Now().Format(time.RFC3339)},
	}})
	engine := orchestrator.NewEngine(orchestrator.Config{SearchRegistry: registry, SearchProvider: "fake", EvidenceFanout: 2})

	d := New(engine, sessions, tasks, history, guardrails.NewRegistry(), concurrency.Budgets{ToolMaxCalls: 100, LLMMaxCalls: 100}, concurrency.NewSessionLocks())
	return d, sessions
}

func newTestSession(t *testing.T, sessions *store.SessionStore) string {
	t.Helper()
	sess, err := sessions.CreateSession(context.Background(), "test")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess.SessionID
}

const sampleText = "某地政府今天发布通报称该事件已造成重大影响，请居民注意安全，切勿轻信谣言传播"

func TestDispatchAnalyzeProducesReportAndHistoryRecord(t *testing.T) {
	d, sessions := newTestDispatcher(t)
	sessionID := newTestSession(t, sessions)

	rec := httptest.NewRecorder()
	framer, err := sse.NewFramer(rec)
	if err != nil {
		t.Fatalf("NewFramer: %v", err)
	}
	if err := d.Dispatch(context.Background(), framer, sessionID, "/analyze "+sampleText); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"type":"message"`) {
		t.Fatalf("expected a message event, got %q", body)
	}
	if !strings.Contains(body, `"type":"done"`) {
		t.Fatalf("expected a done event, got %q", body)
	}
	recs, err := d.History.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one history record, got %d", len(recs))
	}
}

func TestDispatchUnknownSessionEmitsError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	rec := httptest.NewRecorder()
	framer, _ := sse.NewFramer(rec)
	err := d.Dispatch(context.Background(), framer, "nonexistent", "/analyze "+sampleText)
	if err == nil {
		t.Fatal("expected an error for an unknown session")
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"type":"error"`) || !strings.Contains(body, `"type":"done"`) {
		t.Fatalf("expected error then done, got %q", body)
	}
}

func TestDispatchBudgetExhaustionSkipsExecution(t *testing.T) {
	d, sessions := newTestDispatcher(t)
	sessionID := newTestSession(t, sessions)
	d.Budgets = concurrency.Budgets{ToolMaxCalls: 0, LLMMaxCalls: 100}

	rec := httptest.NewRecorder()
	framer, _ := sse.NewFramer(rec)
	err := d.Dispatch(context.Background(), framer, sessionID, "/analyze "+sampleText)
	if err == nil {
		t.Fatal("expected a budget error")
	}
	recs, _ := d.History.List(context.Background(), 10)
	if len(recs) != 0 {
		t.Fatalf("expected no history record written on budget refusal, got %d", len(recs))
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"type":"error"`) {
		t.Fatalf("expected an error event, got %q", body)
	}
}

func TestDispatchCacheHitSkipsReexecution(t *testing.T) {
	d, sessions := newTestDispatcher(t)
	sessionID := newTestSession(t, sessions)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		framer, _ := sse.NewFramer(rec)
		if err := d.Dispatch(context.Background(), framer, sessionID, "/analyze "+sampleText); err != nil {
			t.Fatalf("Dispatch #%d: %v", i, err)
		}
	}
	recs, err := d.History.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected the second identical turn to hit cache and skip a new history write, got %d records", len(recs))
	}
}

func TestDispatchEvidenceOnlyAutoInjectsClaims(t *testing.T) {
	d, sessions := newTestDispatcher(t)
	sessionID := newTestSession(t, sessions)

	rec := httptest.NewRecorder()
	framer, _ := sse.NewFramer(rec)
	if err := d.Dispatch(context.Background(), framer, sessionID, "/evidence_only "+sampleText); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	taskID := buildTaskID(sampleText)
	task, err := d.Tasks.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Phases["claims"] != domain.PhaseDone {
		t.Fatalf("expected claims auto-injected as a prerequisite, got phases=%v", task.Phases)
	}
	if task.Phases["evidence"] != domain.PhaseDone {
		t.Fatalf("expected evidence phase done, got phases=%v", task.Phases)
	}
}

func TestDispatchHelpForUnmatchedText(t *testing.T) {
	d, sessions := newTestDispatcher(t)
	sessionID := newTestSession(t, sessions)

	rec := httptest.NewRecorder()
	framer, _ := sse.NewFramer(rec)
	if err := d.Dispatch(context.Background(), framer, sessionID, "asdf"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Available commands") {
		t.Fatalf("expected help text in message, got %q", rec.Body.String())
	}
}
