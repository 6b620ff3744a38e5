package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"factcheck-orchestrator/internal/apperr"
	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/orchestrator"
	"factcheck-orchestrator/internal/sse"
	"factcheck-orchestrator/internal/store"
)

// nullResponseWriter discards writes; it lets the synchronous /chat handler
// drive the same sse.Framer-shaped Dispatch call the
// streaming endpoints use, without actually streaming anything to the
// client -- the Dispatcher has exactly one entrypoint, and this is its
// non-streaming adapter rather than a second, duplicated code path. The
// /detect handlers call the Engine directly and do not use it.
type nullResponseWriter struct{ header http.Header }

func (n *nullResponseWriter) Header() http.Header {
	if n.header == nil {
		n.header = http.Header{}
	}
	return n.header
}
func (n *nullResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (n *nullResponseWriter) WriteHeader(int)             {}
func (n *nullResponseWriter) Flush()                      {}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes spec.md §6.1's fixed error envelope: {detail: string}.
func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"detail": err.Error()})
}

func statusForErr(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.KindUserInput, apperr.KindProtocol:
			return http.StatusUnprocessableEntity
		case apperr.KindBudget:
			return http.StatusTooManyRequests
		}
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty request body")
	}
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

// --- chat ---

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	ctx := r.Context()
	sessionID := req.SessionID
	if sessionID == "" {
		sess, err := s.d.Sessions.CreateSession(ctx, "")
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		sessionID = sess.SessionID
	}
	framer, _ := sse.NewFramer(&nullResponseWriter{})
	if err := s.d.Dispatch(ctx, framer, sessionID, req.Text); err != nil {
		respondError(w, statusForErr(err), err)
		return
	}
	msgs, err := s.d.Sessions.ListMessages(ctx, sessionID, 1)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	content := ""
	if len(msgs) > 0 {
		content = msgs[len(msgs)-1].Content
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "assistant_message": content})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	ctx := r.Context()
	sessionID := req.SessionID
	if sessionID == "" {
		sess, err := s.d.Sessions.CreateSession(ctx, "")
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		sessionID = sess.SessionID
	}
	framer, err := sse.NewFramer(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	_ = s.d.Dispatch(ctx, framer, sessionID, req.Text)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	_ = decodeJSON(r, &req)
	sess, err := s.d.Sessions.CreateSession(r.Context(), req.Title)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := s.d.Sessions.ListSessions(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()
	sess, err := s.d.Sessions.GetSession(ctx, id)
	if err != nil {
		respondError(w, statusForErr(err), err)
		return
	}
	msgs, err := s.d.Sessions.ListMessages(ctx, id, 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session": sess, "messages": msgs})
}

func (s *Server) handleSessionMessageStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	framer, err := sse.NewFramer(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	_ = s.d.Dispatch(r.Context(), framer, id, req.Text)
}

// --- synchronous per-stage detection endpoints ---

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	result := s.d.Engine.RunFull(r.Context(), req.Text)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDetectClaims(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	strategy, _ := s.d.Engine.RunRisk(r.Context(), req.Text)
	claims := s.d.Engine.RunClaims(r.Context(), strategy, req.Text)
	respondJSON(w, http.StatusOK, map[string]any{"strategy": strategy, "claims": claims})
}

func (s *Server) handleDetectEvidence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string          `json:"text"`
		Strategy domain.Strategy `json:"strategy"`
		Claims   []domain.Claim  `json:"claims"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	ctx := r.Context()
	if len(req.Claims) == 0 {
		req.Strategy, _ = s.d.Engine.RunRisk(ctx, req.Text)
		req.Claims = s.d.Engine.RunClaims(ctx, req.Strategy, req.Text)
	}
	evidenceByClaim := s.d.Engine.RunEvidence(ctx, req.Claims, req.Strategy)
	respondJSON(w, http.StatusOK, map[string]any{"claims": req.Claims, "evidence_by_claim": evidenceByClaim})
}

func (s *Server) handleDetectAlign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Claims          []domain.Claim               `json:"claims"`
		EvidenceByClaim map[string][]domain.Evidence `json:"evidence_by_claim"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	aligned, finalStances := s.d.Engine.RunAlign(r.Context(), req.Claims, req.EvidenceByClaim)
	respondJSON(w, http.StatusOK, map[string]any{"evidence_by_claim": aligned, "final_stances": finalStances})
}

func (s *Server) handleDetectReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Claims          []domain.Claim               `json:"claims"`
		EvidenceByClaim map[string][]domain.Evidence `json:"evidence_by_claim"`
		FinalStances    map[string]domain.Stance      `json:"final_stances"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	report := s.d.Engine.RunReport(r.Context(), req.Claims, req.EvidenceByClaim, req.FinalStances)
	respondJSON(w, http.StatusOK, report)
}

// handleDetectURL fetches the page, then hands it to the Engine's
// extract stage (clean HTML -> LM structured extraction) before the
// extracted article body -- never the raw page -- reaches RunFull; a
// bounded LimitReader keeps a hostile or huge page from stalling the
// request.
func (s *Server) handleDetectURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		respondError(w, http.StatusUnprocessableEntity, errors.New("missing required field: url"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, apperr.Upstream("failed to fetch url", err))
		return
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	extracted := s.d.Engine.RunURLExtract(r.Context(), req.URL, string(raw))
	if !extracted.Success {
		respondError(w, http.StatusUnprocessableEntity, apperr.Upstream("news extraction failed: "+extracted.ErrorMsg, nil))
		return
	}
	result := s.d.Engine.RunFull(r.Context(), extracted.Content)
	respondJSON(w, http.StatusOK, map[string]any{
		"url":          req.URL,
		"title":        extracted.Title,
		"publish_date": extracted.PublishDate,
		"result":       result,
	})
}

// --- simulate ---

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecordID string `json:"record_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	ctx := r.Context()
	rec, err := s.d.History.Get(ctx, req.RecordID)
	if err != nil {
		respondError(w, statusForErr(err), err)
		return
	}
	if rec.Report == nil {
		respondError(w, http.StatusUnprocessableEntity, errors.New("record has no report to simulate from"))
		return
	}
	sim := s.d.Engine.RunSimulation(ctx, orchestrator.SimulationParams{RiskScore: rec.RiskScore}, *rec.Report)
	if err := s.d.History.UpdateSimulation(ctx, req.RecordID, sim); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, sim)
}

func (s *Server) handleSimulateStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecordID string `json:"record_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	ctx := r.Context()
	rec, err := s.d.History.Get(ctx, req.RecordID)
	if err != nil {
		respondError(w, statusForErr(err), err)
		return
	}
	framer, err := sse.NewFramer(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if rec.Report == nil {
		_ = framer.Error(errors.New("record has no report to simulate from"))
		return
	}
	sim := s.d.Engine.RunSimulation(ctx, orchestrator.SimulationParams{RiskScore: rec.RiskScore}, *rec.Report)
	if err := s.d.History.UpdateSimulation(ctx, req.RecordID, sim); err != nil {
		_ = framer.Error(apperr.Persistence("failed to persist simulation", err))
		return
	}
	_ = framer.StageDone("simulate")
	_ = framer.Message(sse.MessagePayload{Content: "Simulation complete."})
	_ = framer.Done("")
}

// --- history ---

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := s.d.History.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": recs})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.d.History.Get(r.Context(), id)
	if err != nil {
		respondError(w, statusForErr(err), err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistoryFeedback(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if err := s.d.History.UpdateFeedback(r.Context(), id, domain.FeedbackStatus(req.Status), req.Note); err != nil {
		respondError(w, statusForErr(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHistorySimulation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Simulation map[string]any `json:"simulation"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if err := s.d.History.UpdateSimulation(r.Context(), id, req.Simulation); err != nil {
		respondError(w, statusForErr(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- pipeline task/phase ---

func (s *Server) handleSavePhase(w http.ResponseWriter, r *http.Request) {
	var snap domain.PhaseSnapshot
	if err := decodeJSON(r, &snap); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if _, err := s.d.Tasks.EnsureTask(r.Context(), snap.TaskID, ""); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.d.Tasks.SavePhase(r.Context(), snap); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLoadLatestPhase(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	phase := r.URL.Query().Get("phase")
	snap, err := s.d.Tasks.LoadLatestPhase(r.Context(), taskID, phase)
	if err != nil {
		respondError(w, statusForErr(err), err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
