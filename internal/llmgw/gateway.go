package llmgw

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Gateway is the single chokepoint every stage engine calls through to reach
// a model provider (spec.md §4.1). It owns retry/timeout policy, the
// strict-JSON parse-repair ladder, and trace emission; it never lets an
// error cross its boundary — callers get a nil map and decide whether to
// retry with a different prompt or fall back to a deterministic rule.
type Gateway struct {
	provider   Provider
	slots      *semaphore.Weighted
	tracer     *Tracer
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// New builds a Gateway. slots is the process-wide LM concurrency limiter
// (shared across every stage engine, per spec.md §5's Concurrency Controller);
// passing nil disables slot gating, useful in unit tests.
func New(provider Provider, slots *semaphore.Weighted, tracer *Tracer, timeout time.Duration, maxRetries int, retryDelay time.Duration) *Gateway {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Gateway{
		provider:   provider,
		slots:      slots,
		tracer:     tracer,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		timeout:    timeout,
	}
}

// CallJSONOptions configures one call_json invocation (spec.md §4.1).
type CallJSONOptions struct {
	Model       string
	Temperature float64
	MaxRetries  int // overrides Gateway default when > 0
	RetryDelay  time.Duration
	TraceLabel  string
	StageName   string // for trace-file routing; empty disables tracing for this call
}

// CallJSON is the call_json(system, user, ...) primitive. It acquires a
// concurrency slot, issues the completion with timeout+retry, and runs the
// response through the three-tier JSON parse ladder. It returns (nil) only
// when every retry is exhausted, every parse tier fails, or ctx is canceled
// (including while waiting for a slot) — never panics,
// never wraps the provider's raw error back to the caller.
func (g *Gateway) CallJSON(ctx context.Context, system, user string, opts CallJSONOptions) map[string]any {
	if g.slots != nil {
		if err := g.slots.Acquire(ctx, 1); err != nil {
			g.traceFailure(opts, "slot_acquire_canceled", err)
			return nil
		}
		defer g.slots.Release(1)
	}

	maxRetries := g.maxRetries
	if opts.MaxRetries > 0 {
		maxRetries = opts.MaxRetries
	}
	retryDelay := g.retryDelay
	if opts.RetryDelay > 0 {
		retryDelay = opts.RetryDelay
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				g.traceFailure(opts, "context_canceled", ctx.Err())
				return nil
			case <-time.After(retryDelay):
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if g.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		}
		content, err := g.provider.Complete(callCtx, CompletionRequest{
			Model:       opts.Model,
			Messages:    []Message{{Role: "system", Content: system}, {Role: "user", Content: user}},
			Temperature: opts.Temperature,
		})
		if cancel != nil {
			cancel()
		}
		if err != nil {
			lastErr = err
			log.Debug().Err(err).Str("trace_label", opts.TraceLabel).Int("attempt", attempt).Msg("llmgw: completion failed, retrying")
			continue
		}

		parsed, tier := strictJSONParse(content)
		if parsed != nil {
			g.trace(opts, TraceEntry{
				Label:   opts.TraceLabel,
				Tier:    int(tier),
				Payload: map[string]any{"raw_len": len(content)},
			})
			return parsed
		}
		lastErr = fmt.Errorf("strict-json parse failed on all tiers for trace_label=%s", opts.TraceLabel)
		log.Debug().Str("trace_label", opts.TraceLabel).Int("attempt", attempt).Msg("llmgw: parse-repair ladder exhausted")
	}

	g.traceFailure(opts, "exhausted", lastErr)
	return nil
}

func (g *Gateway) trace(opts CallJSONOptions, entry TraceEntry) {
	if opts.StageName == "" || g.tracer == nil {
		return
	}
	g.tracer.Trace(opts.StageName, entry)
}

func (g *Gateway) traceFailure(opts CallJSONOptions, kind string, err error) {
	if opts.StageName == "" || g.tracer == nil {
		return
	}
	msg := kind
	if err != nil {
		msg = fmt.Sprintf("%s: %v", kind, err)
	}
	g.tracer.Trace(opts.StageName, TraceEntry{Label: opts.TraceLabel, Err: msg})
}

// maskedAuthField builds a zerolog-friendly field value for an Authorization
// header without ever surfacing the secret itself.
func maskedAuthField(authHeader string) string {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return maskAuth(authHeader)
	}
	return "Bearer " + maskAuth(strings.TrimPrefix(authHeader, "Bearer "))
}
