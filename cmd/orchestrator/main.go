package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"factcheck-orchestrator/internal/concurrency"
	"factcheck-orchestrator/internal/config"
	"factcheck-orchestrator/internal/dispatch"
	"factcheck-orchestrator/internal/guardrails"
	"factcheck-orchestrator/internal/httpapi"
	"factcheck-orchestrator/internal/llmgw"
	"factcheck-orchestrator/internal/llmgw/providers/anthropic"
	"factcheck-orchestrator/internal/llmgw/providers/openai"
	"factcheck-orchestrator/internal/observability"
	"factcheck-orchestrator/internal/orchestrator"
	"factcheck-orchestrator/internal/store"
	"factcheck-orchestrator/internal/websearch"
)

func main() {
	cfg := config.Load()
	observability.InitLogger("", cfg.LogLevel)

	sessions, err := store.OpenSessionStore(cfg.Store.SessionDBPath, cfg.Store.TempDirFallback)
	if err != nil {
		log.Fatal().Err(err).Msg("open session store")
	}
	defer sessions.Close()
	tasks, err := store.OpenTaskStore(cfg.Store.TaskDBPath, cfg.Store.TempDirFallback)
	if err != nil {
		log.Fatal().Err(err).Msg("open task store")
	}
	defer tasks.Close()
	history, err := store.OpenHistoryStore(cfg.Store.HistoryDBPath, cfg.Store.TempDirFallback)
	if err != nil {
		log.Fatal().Err(err).Msg("open history store")
	}
	defer history.Close()

	engine := newEngine(cfg)
	d := dispatch.New(
		engine,
		sessions,
		tasks,
		history,
		guardrails.NewRegistry(),
		concurrency.Budgets{ToolMaxCalls: cfg.Budgets.SessionToolMaxCalls, LLMMaxCalls: cfg.Budgets.SessionLLMMaxCalls},
		concurrency.NewSessionLocks(),
	)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpapi.NewServer(d)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("orchestrator listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	stop()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// newEngine wires the Gateway (LM provider + concurrency slots + tracer)
// and search registry the teacher's runtime builds once at startup and
// shares across every request.
func newEngine(cfg config.Config) *orchestrator.Engine {
	var provider llmgw.Provider
	switch strings.ToLower(cfg.LM.Provider) {
	case "anthropic":
		provider = anthropic.New(cfg.LM.BaseURL, cfg.LM.APIKey, cfg.LM.Model, nil)
	default:
		provider = openai.New(cfg.LM.BaseURL, cfg.LM.APIKey, cfg.LM.Model, nil)
	}
	slots := concurrency.NewLMSlots(cfg.Parallelism.LMSlots)
	tracer := llmgw.NewTracer(cfg.Debug.TraceDir, cfg.Debug.Stages)
	gateway := llmgw.New(provider, slots, tracer, time.Duration(cfg.LM.Timeout)*time.Second, 2, 500*time.Millisecond)

	llmEnabled := cfg.Stages.RiskLLMEnabled || cfg.Stages.AlignmentLLMEnabled || cfg.Stages.ReportLLMEnabled ||
		cfg.Stages.SimulationLLMEnabled || cfg.Stages.EvidenceSummaryEnabled || cfg.Stages.ComplexityLLMEnabled

	registry := websearch.NewRegistry(searchProviders(cfg.Web)...)

	return orchestrator.NewEngine(orchestrator.Config{
		Gateway:        gateway,
		LLMEnabled:     llmEnabled,
		SearchRegistry: registry,
		SearchProvider: cfg.Web.Provider,
		AllowedDomains: cfg.Web.AllowedDomains,
		EvidenceFanout: cfg.Parallelism.AlignWorkers,
		ClaimsMethod:   cfg.Claims.Method,
		ClaimsMinScore: cfg.Claims.MinScore,
		MaxClaimItems:  cfg.Claims.MaxItems,
	})
}

// searchProviders registers every provider the Evidence stage might be
// asked for via WEB_SEARCH_PROVIDER, not just the configured default --
// letting an operator flip providers without a restart-time code change.
func searchProviders(web config.Web) []websearch.Provider {
	return []websearch.Provider{
		websearch.NewTavilyProvider(web.APIKey),
		websearch.NewSerpAPIProvider(web.APIKey),
		websearch.NewBaiduCompatibleProvider(web.Endpoint, web.APIKey),
		websearch.NewSearXNGProvider(web.Endpoint),
		websearch.NewBochaProvider(web.Endpoint, web.APIKey),
	}
}
