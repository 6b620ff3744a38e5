// Package domain holds the shared data model for the fact-check pipeline:
// claims, evidence, reports, strategies, sessions, messages, tasks and
// history records. Types here are plain structs with json tags; stage
// engines and stores both read and write them directly.
package domain

import "time"

// Stance is the closed enumeration a piece of evidence can take toward a claim.
type Stance string

const (
	StanceSupport      Stance = "support"
	StanceRefute       Stance = "refute"
	StanceInsufficient Stance = "insufficient"
)

// NormalizeStance maps common Chinese synonyms and loose English onto the
// three canonical stance values. Anything unrecognized normalizes to
// StanceInsufficient.
func NormalizeStance(s string) Stance {
	switch s {
	case "support", "supports", "supported", "true", "属实", "支持", "证实":
		return StanceSupport
	case "refute", "refutes", "refuted", "false", "rumor", "谣言", "辟谣", "不实", "反驳":
		return StanceRefute
	case "insufficient", "unknown", "unclear", "不足", "存疑", "无法判断":
		return StanceInsufficient
	default:
		return StanceInsufficient
	}
}

// RiskLevel is the four-band severity derived from RiskScore.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLabel is the four-way qualitative verdict derived from RiskScore.
type RiskLabel string

const (
	LabelCredible             RiskLabel = "credible"
	LabelNeedsContext         RiskLabel = "needs_context"
	LabelSuspicious           RiskLabel = "suspicious"
	LabelLikelyMisinformation RiskLabel = "likely_misinformation"
)

// Scenario is the closed enumeration of detected content scenarios.
type Scenario string

const (
	ScenarioHealth     Scenario = "health"
	ScenarioGovernance Scenario = "governance"
	ScenarioSecurity   Scenario = "security"
	ScenarioMedia      Scenario = "media"
	ScenarioTechnology Scenario = "technology"
	ScenarioEducation  Scenario = "education"
	ScenarioGeneral    Scenario = "general"
)

// RiskBand returns the level and label for a clamped numeric risk score,
// implementing the bands fixed by spec.md §3.3: {>=75, 55-74, 35-54, <35}.
func RiskBand(score float64) (RiskLevel, RiskLabel) {
	switch {
	case score >= 75:
		return RiskCritical, LabelLikelyMisinformation
	case score >= 55:
		return RiskHigh, LabelSuspicious
	case score >= 35:
		return RiskMedium, LabelNeedsContext
	default:
		return RiskLow, LabelCredible
	}
}

// Clamp01 clamps a float into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampScore clamps a float into [0,100].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Claim is an atomic, independently verifiable propositional sentence.
type Claim struct {
	ClaimID        string `json:"claim_id"`
	ClaimText      string `json:"claim_text"`
	Entity         string `json:"entity,omitempty"`
	Time           string `json:"time,omitempty"`
	Location       string `json:"location,omitempty"`
	Value          string `json:"value,omitempty"`
	SourceSentence string `json:"source_sentence,omitempty"`
	Score          float64 `json:"score,omitempty"`
}

// Evidence is a single retrieved or summarized item bearing on a Claim.
type Evidence struct {
	EvidenceID           string   `json:"evidence_id"`
	ClaimID              string   `json:"claim_id"`
	Title                string   `json:"title"`
	Source               string   `json:"source"`
	URL                  string   `json:"url"`
	PublishedAt          string   `json:"published_at,omitempty"`
	Summary              string   `json:"summary"`
	Stance               Stance   `json:"stance"`
	SourceWeight         float64  `json:"source_weight"`
	SourceType           string   `json:"source_type"` // local_kb | web_live | web_summary
	RetrievedAt          string   `json:"retrieved_at,omitempty"`
	Domain               string   `json:"domain,omitempty"`
	IsAuthoritative      bool     `json:"is_authoritative,omitempty"`
	RawSnippet           string   `json:"raw_snippet,omitempty"`
	AlignmentRationale   string   `json:"alignment_rationale,omitempty"`
	AlignmentConfidence  float64  `json:"alignment_confidence,omitempty"`
	SourceURLs           []string `json:"source_urls,omitempty"`
	Relevance            float64  `json:"relevance,omitempty"`
}

// ClaimReport is the per-claim slice of a Report.
type ClaimReport struct {
	Claim       Claim      `json:"claim"`
	Evidences   []Evidence `json:"evidences"`
	FinalStance Stance     `json:"final_stance"`
	Notes       string     `json:"notes,omitempty"`
}

// Report is the terminal fact-check verdict for a turn.
type Report struct {
	RiskScore        float64       `json:"risk_score"`
	RiskLevel        RiskLevel     `json:"risk_level"`
	RiskLabel        RiskLabel     `json:"risk_label"`
	DetectedScenario Scenario      `json:"detected_scenario"`
	EvidenceDomains  []string      `json:"evidence_domains"`
	Summary          string        `json:"summary"`
	SuspiciousPoints []string      `json:"suspicious_points"`
	ClaimReports     []ClaimReport `json:"claim_reports"`
}

// Strategy tunes downstream fan-out and caps for one turn.
type Strategy struct {
	MaxClaims         int    `json:"max_claims"`
	ComplexityLevel   string `json:"complexity_level"` // simple | medium | complex
	EvidencePerClaim  int    `json:"evidence_per_claim"`
	SummaryTargetMin  int    `json:"summary_target_min"`
	SummaryTargetMax  int    `json:"summary_target_max"`
	EnableSummarization bool `json:"enable_summarization"`
	IsNews            bool   `json:"is_news"`
	NewsConfidence    float64 `json:"news_confidence"`
	DetectedTextType  string `json:"detected_text_type"`
	NewsReason        string `json:"news_reason"`
}

// EvidencePerClaimForRisk maps a risk-score band to the evidence fan-out
// width fixed by spec.md §3.4: 3/5/7/10.
func EvidencePerClaimForRisk(score float64) int {
	switch {
	case score >= 75:
		return 10
	case score >= 55:
		return 7
	case score >= 35:
		return 5
	default:
		return 3
	}
}

// Action is a UI affordance attached to an assistant Message.
type Action struct {
	Type    string `json:"type"` // link | command
	Label   string `json:"label"`
	Href    string `json:"href,omitempty"`
	Command string `json:"command,omitempty"`
}

// Reference is a citation-like pointer attached to an assistant Message.
type Reference struct {
	Title       string `json:"title"`
	Href        string `json:"href"`
	Description string `json:"description,omitempty"`
}

// Message is one chat turn's utterance.
type Message struct {
	MessageID  string            `json:"message_id"`
	SessionID  string            `json:"session_id"`
	Role       string            `json:"role"` // user | assistant | system
	Content    string            `json:"content"`
	Actions    []Action          `json:"actions,omitempty"`
	References []Reference       `json:"references,omitempty"`
	Meta       map[string]any    `json:"meta,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Session is a chat session plus its free-form, additively-updated meta bag.
type Session struct {
	SessionID string         `json:"session_id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Meta      map[string]any `json:"meta"`
}

// PhaseStatus is the closed enumeration of a pipeline phase's lifecycle.
type PhaseStatus string

const (
	PhaseIdle     PhaseStatus = "idle"
	PhaseRunning  PhaseStatus = "running"
	PhaseDone     PhaseStatus = "done"
	PhaseFailed   PhaseStatus = "failed"
	PhaseCanceled PhaseStatus = "canceled"
)

// Task is the per-turn pipeline row; Phases tracks each phase's last known status.
type Task struct {
	TaskID    string                 `json:"task_id"`
	InputText string                 `json:"input_text"`
	Phases    map[string]PhaseStatus `json:"phases"`
	Meta      map[string]any         `json:"meta"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// PhaseSnapshot is the UPSERT-keyed (task_id, phase) persisted row.
type PhaseSnapshot struct {
	TaskID       string          `json:"task_id"`
	Phase        string          `json:"phase"`
	Status       PhaseStatus     `json:"status"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DurationMS   int64           `json:"duration_ms,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Payload      map[string]any  `json:"payload,omitempty"`
}

// FeedbackStatus is the closed enumeration attachable to a HistoryRecord.
type FeedbackStatus string

const (
	FeedbackAccurate           FeedbackStatus = "accurate"
	FeedbackInaccurate         FeedbackStatus = "inaccurate"
	FeedbackEvidenceIrrelevant FeedbackStatus = "evidence_irrelevant"
)

// HistoryRecord is the append-only analysis record; only FeedbackStatus,
// FeedbackNote, Simulation and Content may be updated after creation.
type HistoryRecord struct {
	ID               string         `json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	InputText        string         `json:"input_text"`
	RiskLabel        RiskLabel      `json:"risk_label"`
	RiskScore        float64        `json:"risk_score"`
	DetectedScenario Scenario       `json:"detected_scenario"`
	EvidenceDomains  []string       `json:"evidence_domains"`
	Report           *Report        `json:"report,omitempty"`
	DetectData       map[string]any `json:"detect_data,omitempty"`
	Simulation       map[string]any `json:"simulation,omitempty"`
	Content          map[string]any `json:"content,omitempty"`
	FeedbackStatus   FeedbackStatus `json:"feedback_status,omitempty"`
	FeedbackNote     string         `json:"feedback_note,omitempty"`
}
