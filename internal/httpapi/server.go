// Package httpapi implements the HTTP API (spec.md §6.1): the chat
// endpoints that run through the Dispatcher, the synchronous per-stage
// /detect and /simulate endpoints that share the same Stage Engines
// without going through Guardrails/budgets, and the read/write endpoints
// over the Session/Task/History stores. Grounded on the teacher's
// internal/httpapi server: a *http.ServeMux built with Go 1.22's
// "METHOD /path/{param}" pattern syntax, one handler method per route,
// and a shared respondJSON/respondError pair.
package httpapi

import (
	"net/http"

	"factcheck-orchestrator/internal/dispatch"
)

// Server exposes the fact-check orchestrator's HTTP surface, wired to one
// shared Dispatcher (which itself carries the Engine and all three stores).
type Server struct {
	d   *dispatch.Dispatcher
	mux *http.ServeMux
}

// NewServer builds a Server wired to d and registers every route.
func NewServer(d *dispatch.Dispatcher) *Server {
	s := &Server{d: d, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	// Chat (goes through the Dispatcher: Guardrails, budgets, cache).
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	s.mux.HandleFunc("POST /chat/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /chat/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /chat/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("POST /chat/sessions/{id}/messages/stream", s.handleSessionMessageStream)

	// Synchronous per-stage endpoints, sharing the Stage Engines directly.
	s.mux.HandleFunc("POST /detect", s.handleDetect)
	s.mux.HandleFunc("POST /detect/claims", s.handleDetectClaims)
	s.mux.HandleFunc("POST /detect/evidence", s.handleDetectEvidence)
	s.mux.HandleFunc("POST /detect/evidence/align", s.handleDetectAlign)
	s.mux.HandleFunc("POST /detect/report", s.handleDetectReport)
	s.mux.HandleFunc("POST /detect/url", s.handleDetectURL)

	s.mux.HandleFunc("POST /simulate", s.handleSimulate)
	s.mux.HandleFunc("POST /simulate/stream", s.handleSimulateStream)

	s.mux.HandleFunc("GET /history", s.handleListHistory)
	s.mux.HandleFunc("GET /history/{id}", s.handleGetHistory)
	s.mux.HandleFunc("POST /history/{id}/feedback", s.handleHistoryFeedback)
	s.mux.HandleFunc("POST /history/{id}/simulation", s.handleHistorySimulation)

	s.mux.HandleFunc("POST /pipeline/save-phase", s.handleSavePhase)
	s.mux.HandleFunc("GET /pipeline/load-latest", s.handleLoadLatestPhase)

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}
