// Package sse implements the SSE Framer (spec.md §4.12): the event
// envelope `data: {"type": T, "data": D}\n\n`, the per-turn ordering
// contract, and the no-cache/keep-alive/X-Accel-Buffering flush discipline.
// Grounded on the teacher's two existing SSE writers -- the bare
// marshal-then-flush shape of internal/a2a/sse/sse.go's SSEWriter, and the
// mutex-serialized writeSSE closure plus raw keep-alive comment line from
// internal/agentd/handlers_chat.go's streaming chat handler -- generalized
// from each's ad hoc payload shape to the fixed {type,data} envelope and
// the five closed event types this spec names.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"factcheck-orchestrator/internal/apperr"
)

// TokenPayload is the `token` event's data: incremental progress prose or a
// Guardrails advisory prefix.
type TokenPayload struct {
	Content   string `json:"content"`
	SessionID string `json:"session_id,omitempty"`
}

// StagePayload is the `stage` event's data: one of running/done/failed per
// Stage Engine invocation.
type StagePayload struct {
	Stage  string `json:"stage"`
	Status string `json:"status"` // running | done | failed
}

// MessagePayload is the `message` event's data: the turn's final assistant
// utterance, exactly one per turn.
type MessagePayload struct {
	SessionID  string `json:"session_id,omitempty"`
	Content    string `json:"content"`
	Actions    []any  `json:"actions,omitempty"`
	References []any  `json:"references,omitempty"`
}

// DonePayload is the `done` event's data: the terminal marker, exactly one
// per turn (success or error alike).
type DonePayload struct {
	SessionID string `json:"session_id,omitempty"`
}

// ErrorPayload is the `error` event's data, populated from an *apperr.Error
// when available so hints survive the wire boundary.
type ErrorPayload struct {
	Message string   `json:"message"`
	Kind    string   `json:"kind,omitempty"`
	Hints   []string `json:"hints,omitempty"`
}

// Framer writes one turn's ordered SSE event sequence to an
// http.ResponseWriter. It is not safe to share across turns; construct one
// per streamed request.
type Framer struct {
	w  http.ResponseWriter
	fl http.Flusher

	mu          sync.Mutex
	messageSent bool
	done        bool
}

// NewFramer sets the streaming response headers (spec.md §4.12's flush
// discipline: no-cache, keep-alive, X-Accel-Buffering: no) and returns a
// Framer, or an error if w doesn't support flushing.
func NewFramer(w http.ResponseWriter) (*Framer, error) {
	fl, ok := w.(http.Flusher)
	if !ok {
		return nil, apperr.Protocol("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &Framer{w: w, fl: fl}, nil
}

func (f *Framer) emit(eventType string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return apperr.Protocol("sse: write attempted after done event")
	}
	b, err := json.Marshal(map[string]any{"type": eventType, "data": data})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f.w, "data: %s\n\n", b); err != nil {
		return err
	}
	f.fl.Flush()
	return nil
}

// Token emits a `token` event: progress prose, or an intermediate update
// inside a running stage.
func (f *Framer) Token(content, sessionID string) error {
	return f.emit("token", TokenPayload{Content: content, SessionID: sessionID})
}

// StageRunning emits `{stage, status:running}`, opening one stage's block.
func (f *Framer) StageRunning(stage string) error {
	return f.emit("stage", StagePayload{Stage: stage, Status: "running"})
}

// StageDone emits `{stage, status:done}`, closing a successful stage block.
func (f *Framer) StageDone(stage string) error {
	return f.emit("stage", StagePayload{Stage: stage, Status: "done"})
}

// StageFailed emits `{stage, status:failed}`, closing a failed stage block.
// The turn may still continue to a deterministic message afterward.
func (f *Framer) StageFailed(stage string) error {
	return f.emit("stage", StagePayload{Stage: stage, Status: "failed"})
}

// Message emits the turn's one `message` event. A second call is rejected:
// spec.md §4.12 fixes "exactly one message event" per turn.
func (f *Framer) Message(p MessagePayload) error {
	f.mu.Lock()
	if f.messageSent {
		f.mu.Unlock()
		return apperr.Protocol("sse: message event already sent for this turn")
	}
	f.messageSent = true
	f.mu.Unlock()
	return f.emit("message", p)
}

// Done emits the turn's one `done` event. Subsequent calls are no-ops so
// callers can unconditionally defer Done() after an early Error() return.
func (f *Framer) Done(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return nil
	}
	b, err := json.Marshal(map[string]any{"type": "done", "data": DonePayload{SessionID: sessionID}})
	if err != nil {
		return err
	}
	f.done = true
	if _, err := fmt.Fprintf(f.w, "data: %s\n\n", b); err != nil {
		return err
	}
	f.fl.Flush()
	return nil
}

// Error emits one `error` event and then the terminating `done` event,
// implementing spec.md §4.12's "errors abort the ordered sequence with one
// error event, followed by a terminating done".
func (f *Framer) Error(err error) error {
	payload := ErrorPayload{Message: err.Error()}
	if ae, ok := err.(*apperr.Error); ok {
		payload.Message = ae.Message
		payload.Kind = string(ae.Kind)
		payload.Hints = ae.Hints
	}
	f.mu.Lock()
	alreadyDone := f.done
	f.mu.Unlock()
	if alreadyDone {
		return nil
	}
	if emitErr := f.emit("error", payload); emitErr != nil {
		return emitErr
	}
	return f.Done("")
}

// KeepAlive writes a raw SSE comment line, which clients ignore and which
// does not count as an event for ordering purposes -- grounded on
// internal/agentd/handlers_chat.go's ": keepalive\n\n" idiom for holding a
// long-running connection open between stage transitions.
func (f *Framer) KeepAlive() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return nil
	}
	if _, err := fmt.Fprint(f.w, ": keepalive\n\n"); err != nil {
		return err
	}
	f.fl.Flush()
	return nil
}
