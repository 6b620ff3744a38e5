package sse

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"factcheck-orchestrator/internal/apperr"
)

func TestNewFramerSetsStreamingHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	if _, err := NewFramer(rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("X-Accel-Buffering") != "no" {
		t.Fatalf("expected X-Accel-Buffering: no, got %q", rec.Header().Get("X-Accel-Buffering"))
	}
}

func TestTokenEmitsEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	f, _ := NewFramer(rec)
	if err := f.Token("hello", "sess1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") || !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("unexpected envelope shape: %q", body)
	}
	var env map[string]any
	raw := strings.TrimSuffix(strings.TrimPrefix(body, "data: "), "\n\n")
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("failed to parse envelope: %v", err)
	}
	if env["type"] != "token" {
		t.Fatalf("expected type token, got %v", env["type"])
	}
	data, ok := env["data"].(map[string]any)
	if !ok || data["content"] != "hello" {
		t.Fatalf("expected content hello, got %v", env["data"])
	}
}

func TestMessageRejectsSecondCall(t *testing.T) {
	rec := httptest.NewRecorder()
	f, _ := NewFramer(rec)
	if err := f.Message(MessagePayload{Content: "first"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Message(MessagePayload{Content: "second"}); err == nil {
		t.Fatal("expected second message call to be rejected")
	}
}

func TestDoneIsIdempotent(t *testing.T) {
	rec := httptest.NewRecorder()
	f, _ := NewFramer(rec)
	if err := f.Done("sess1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Done("sess1"); err != nil {
		t.Fatalf("expected second Done call to be a no-op, got %v", err)
	}
	// exactly one "done" event should have been written
	if strings.Count(rec.Body.String(), `"type":"done"`) != 1 {
		t.Fatalf("expected exactly one done event, got body %q", rec.Body.String())
	}
}

func TestWriteAfterDoneIsRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	f, _ := NewFramer(rec)
	if err := f.Done(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Token("late", ""); err == nil {
		t.Fatal("expected write after done to be rejected")
	}
}

func TestErrorEmitsErrorThenDone(t *testing.T) {
	rec := httptest.NewRecorder()
	f, _ := NewFramer(rec)
	err := apperr.Upstream("search provider unreachable", nil)
	if e := f.Error(err); e != nil {
		t.Fatalf("unexpected error: %v", e)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"type":"error"`) {
		t.Fatalf("expected an error event, got %q", body)
	}
	if !strings.Contains(body, `"type":"done"`) {
		t.Fatalf("expected a terminating done event, got %q", body)
	}
	errIdx := strings.Index(body, `"type":"error"`)
	doneIdx := strings.Index(body, `"type":"done"`)
	if errIdx > doneIdx {
		t.Fatal("expected error event to precede done event")
	}
}

func TestKeepAliveWritesCommentLine(t *testing.T) {
	rec := httptest.NewRecorder()
	f, _ := NewFramer(rec)
	if err := f.KeepAlive(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != ": keepalive\n\n" {
		t.Fatalf("unexpected keepalive body: %q", rec.Body.String())
	}
}

func TestStageSequenceOrdering(t *testing.T) {
	rec := httptest.NewRecorder()
	f, _ := NewFramer(rec)
	if err := f.StageRunning("claims"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Token("claims in progress", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.StageDone("claims"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	runningIdx := strings.Index(body, `"status":"running"`)
	doneIdx := strings.Index(body, `"status":"done"`)
	if runningIdx < 0 || doneIdx < 0 || runningIdx > doneIdx {
		t.Fatalf("expected running before done, got %q", body)
	}
}
