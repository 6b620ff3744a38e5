// Package config loads the Orchestrator's configuration from environment
// variables (spec.md §6.4), following the teacher's os.Getenv + strings.TrimSpace
// idiom (internal/config/loader.go) rather than a generic YAML config framework.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LM holds LM Gateway defaults.
type LM struct {
	BaseURL  string
	APIKey   string
	Model    string
	Provider string // "openai" | "anthropic"
	Timeout  int    // seconds, connect+read
}

// StageToggles are per-stage LM enable/disable flags.
type StageToggles struct {
	RiskLLMEnabled         bool
	AlignmentLLMEnabled    bool
	ReportLLMEnabled       bool
	SimulationLLMEnabled   bool
	EvidenceSummaryEnabled bool
	ComplexityLLMEnabled   bool
}

// Claims controls the Claims stage.
type Claims struct {
	Method   string // "default" | "claimify"
	MaxItems int    // 2-20
	MinScore float64
}

// Web controls the Evidence-search stage's retrieval backend.
type Web struct {
	RetrievalEnabled bool
	Provider         string // baidu | tavily | serpapi | searxng | bocha
	TopK             int
	AllowedDomains   []string
	APIKey           string
	Endpoint         string
}

// Budgets are the per-session ceilings enforced by the Dispatcher.
type Budgets struct {
	SessionToolMaxCalls int
	SessionLLMMaxCalls  int
}

// Parallelism controls the Concurrency Controller's worker pools and slots.
type Parallelism struct {
	ClaimWorkers int
	AlignWorkers int
	LMSlots      int
}

// Debug controls per-stage trace file emission.
type Debug struct {
	Stages   map[string]bool // stage name -> enabled
	TraceDir string
}

// Store controls the SQLite-backed stores and their tempdir fallback.
type Store struct {
	SessionDBPath   string
	TaskDBPath      string
	HistoryDBPath   string
	TempDirFallback bool
}

// Config is the fully resolved Orchestrator configuration.
type Config struct {
	LM                LM
	Stages            StageToggles
	Claims            Claims
	Web               Web
	Budgets           Budgets
	Parallelism       Parallelism
	Debug             Debug
	Store             Store
	MaxInputChars int
	HTTPAddr      string
	LogLevel      string
	LogFormat     string
}

func boolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func strEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Load reads configuration from the environment, loading a local .env file
// first if present (ignored if absent — mirrors teacher's dev convenience).
func Load() Config {
	_ = godotenv.Load()

	var cfg Config
	cfg.LM = LM{
		BaseURL:  strEnv("LM_BASE_URL", ""),
		APIKey:   strEnv("LM_API_KEY", ""),
		Model:    strEnv("LM_MODEL", "gpt-4o-mini"),
		Provider: strEnv("LM_PROVIDER", "openai"),
		Timeout:  intEnv("LM_TIMEOUT", 30),
	}
	cfg.Stages = StageToggles{
		RiskLLMEnabled:         boolEnv("RISK_LLM_ENABLED", true),
		AlignmentLLMEnabled:    boolEnv("ALIGNMENT_LLM_ENABLED", true),
		ReportLLMEnabled:       boolEnv("REPORT_LLM_ENABLED", true),
		SimulationLLMEnabled:   boolEnv("SIMULATION_LLM_ENABLED", true),
		EvidenceSummaryEnabled: boolEnv("EVIDENCE_SUMMARY_ENABLED", true),
		ComplexityLLMEnabled:   boolEnv("COMPLEXITY_LLM_ENABLED", false),
	}
	cfg.Claims = Claims{
		Method:   strEnv("CLAIM_METHOD", "default"),
		MaxItems: clampInt(intEnv("CLAIM_MAX_ITEMS", 6), 2, 20),
		MinScore: clampFloat(floatEnv("CLAIM_MIN_SCORE", 0.25), 0, 1),
	}
	var allowed []string
	if raw := strEnv("WEB_ALLOWED_DOMAINS", ""); raw != "" {
		for _, d := range strings.Split(raw, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				allowed = append(allowed, d)
			}
		}
	}
	cfg.Web = Web{
		RetrievalEnabled: boolEnv("WEB_RETRIEVAL_ENABLED", false),
		Provider:         strEnv("WEB_SEARCH_PROVIDER", "searxng"),
		TopK:             clampInt(intEnv("WEB_RETRIEVAL_TOPK", 5), 1, 50),
		AllowedDomains:   allowed,
		APIKey:           strEnv("WEB_SEARCH_API_KEY", ""),
		Endpoint:         strEnv("WEB_SEARCH_ENDPOINT", ""),
	}
	cfg.Budgets = Budgets{
		SessionToolMaxCalls: intEnv("SESSION_TOOL_MAX_CALLS", 60),
		SessionLLMMaxCalls:  intEnv("SESSION_LLM_MAX_CALLS", 120),
	}
	cfg.Parallelism = Parallelism{
		ClaimWorkers: clampInt(intEnv("CLAIM_PARALLEL_WORKERS", 4), 1, 64),
		AlignWorkers: clampInt(intEnv("ALIGN_PARALLEL_WORKERS", 4), 1, 64),
		LMSlots:      clampInt(intEnv("LM_SLOTS", 3), 1, 64),
	}
	stages := map[string]bool{}
	for _, s := range []string{"risk", "claims", "evidence", "align", "report", "simulate", "content"} {
		stages[s] = boolEnv("DEBUG_TRACE_"+strings.ToUpper(s), false)
	}
	cfg.Debug = Debug{Stages: stages, TraceDir: strEnv("TRACE_DIR", "./traces")}
	cfg.Store = Store{
		SessionDBPath:   strEnv("SESSION_DB_PATH", "./data/sessions.db"),
		TaskDBPath:      strEnv("TASK_DB_PATH", "./data/tasks.db"),
		HistoryDBPath:   strEnv("HISTORY_DB_PATH", "./data/history.db"),
		TempDirFallback: boolEnv("STORE_TEMPDIR_FALLBACK", true),
	}
	cfg.MaxInputChars = intEnv("MAX_INPUT_CHARS", 8000)
	cfg.HTTPAddr = strEnv("HTTP_ADDR", ":8089")
	cfg.LogLevel = strEnv("LOG_LEVEL", "info")
	cfg.LogFormat = strEnv("LOG_FORMAT", "json")
	return cfg
}
