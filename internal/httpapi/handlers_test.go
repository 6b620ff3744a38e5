package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"factcheck-orchestrator/internal/concurrency"
	"factcheck-orchestrator/internal/dispatch"
	"factcheck-orchestrator/internal/guardrails"
	"factcheck-orchestrator/internal/orchestrator"
	"factcheck-orchestrator/internal/store"
	"factcheck-orchestrator/internal/websearch"
)

type fakeSearchProvider struct{ results []websearch.Result }

func (f *fakeSearchProvider) Name() string { return "fake" }
func (f *fakeSearchProvider) Search(ctx context.Context, query string, topK int) ([]websearch.Result, error) {
	return f.results, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sessions, err := store.OpenSessionStore(filepath.Join(t.TempDir(), "sessions.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })
	tasks, err := store.OpenTaskStore(filepath.Join(t.TempDir(), "tasks.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { tasks.Close() })
	history, err := store.OpenHistoryStore(filepath.Join(t.TempDir(), "history.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	registry := websearch.NewRegistry(&fakeSearchProvider{results: []websearch.Result{
		{Title: "官方通报确认属实", URL: "https://www.gov.cn/a", Summary: "政府发布权威通报", Score: 0.8, PublishedAt: time.Now().Format(time.RFC3339)},
	}})
	engine := orchestrator.NewEngine(orchestrator.Config{SearchRegistry: registry, SearchProvider: "fake", EvidenceFanout: 2})
	d := dispatch.New(engine, sessions, tasks, history, guardrails.NewRegistry(), concurrency.Budgets{ToolMaxCalls: 100, LLMMaxCalls: 100}, concurrency.NewSessionLocks())
	return NewServer(d)
}

const sampleText = "某地政府今天发布通报称该事件已造成重大影响，请居民注意安全，切勿轻信谣言传播"

func TestHandleCreateAndGetSession(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"title": "t1"})
	req := httptest.NewRequest(http.MethodPost, "/chat/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	sessionID, _ := created["session_id"].(string)
	require.NotEmpty(t, sessionID)

	getReq := httptest.NewRequest(http.MethodGet, "/chat/sessions/"+sessionID, nil)
	getRec := httptest.NewRecorder()
	srv.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestHandleGetSessionNotFound(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/chat/sessions/nonexistent", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), `"detail"`)
}

func TestHandleChatAnalyzeProducesHistoryRecord(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"text": "/analyze " + sampleText})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["assistant_message"])

	histReq := httptest.NewRequest(http.MethodGet, "/history", nil)
	histRec := httptest.NewRecorder()
	srv.ServeHTTP(histRec, histReq)
	require.Equal(t, http.StatusOK, histRec.Code)
	require.Contains(t, histRec.Body.String(), sampleText)
}

func TestHandleDetectClaims(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"text": sampleText})
	req := httptest.NewRequest(http.MethodPost, "/detect/claims", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "claims")
}

func TestHandleSimulateMissingRecordNotFound(t *testing.T) {
	srv := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"record_id": "nonexistent"})
	req := httptest.NewRequest(http.MethodPost, "/simulate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealthz(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
