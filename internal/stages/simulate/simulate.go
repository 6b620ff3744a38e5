// Package simulate implements the Simulate Stage (spec.md §4.8): four
// sequential sub-stages (emotion, narratives, flashpoints, suggestion),
// each LM-backed with a deterministic rule fallback on retry exhaustion.
// Each function returns a plain result; the caller is responsible for
// wrapping it into an SSE stage event (internal/sse) as it completes.
package simulate

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/llmgw"
)

// Params carries the inputs every sub-stage's rule fallback is
// deterministic in, per spec.md §4.8: (risk_score, platform, time_window_hours).
type Params struct {
	RiskScore       float64
	Platform        string
	TimeWindowHours int
	MaxRetries      int
	RetryDelay      float64 // seconds; forwarded as llmgw.CallJSONOptions.RetryDelay
}

type EmotionResult struct {
	EmotionDistribution map[string]float64 `json:"emotion_distribution"`
	StanceDistribution  map[string]float64 `json:"stance_distribution"`
	Drivers             []string           `json:"drivers"`
	FromLLM             bool               `json:"-"`
}

type Narrative struct {
	Title           string        `json:"title"`
	Stance          domain.Stance `json:"stance"`
	Probability     float64       `json:"probability"`
	TriggerKeywords []string      `json:"trigger_keywords"`
	SampleMessage   string        `json:"sample_message"`
}

type NarrativesResult struct {
	Narratives []Narrative `json:"narratives"`
	FromLLM    bool        `json:"-"`
}

type TimelineEntry struct {
	HourOffset  int    `json:"hour_offset"`
	Description string `json:"description"`
}

type FlashpointsResult struct {
	Descriptions []string        `json:"descriptions"`
	Timeline     []TimelineEntry `json:"timeline"`
	FromLLM      bool            `json:"-"`
}

type SuggestedAction struct {
	Priority    string `json:"priority"` // urgent | high | medium
	Category    string `json:"category"` // official | media | platform | user
	Description string `json:"description"`
}

type SuggestionResult struct {
	Summary string            `json:"summary"`
	Actions []SuggestedAction `json:"actions"`
	FromLLM bool              `json:"-"`
}

const emotionPrompt = `Given a fact-check report's risk score and claims, estimate the public emotional and stance reaction. Return strict JSON only: {"emotion_distribution": {string: number}, "stance_distribution": {string: number}, "drivers": [string, ...]}. Distributions should sum to approximately 1. No prose, no markdown fences.`
const narrativesPrompt = `Given a fact-check report, predict the rumor narratives likely to circulate. Return strict JSON only: {"narratives": [{"title": string, "stance": "support"|"refute"|"insufficient", "probability": number, "trigger_keywords": [string,...], "sample_message": string}, ...]}. Probabilities must sum to <= 1. No prose, no markdown fences.`
const flashpointsPrompt = `Given a fact-check report, predict discourse flashpoints over the simulation time window. Return strict JSON only: {"descriptions": [string, ...], "timeline": [{"hour_offset": int, "description": string}, ...]}. No prose, no markdown fences.`
const suggestionPrompt = `Given a fact-check report and its predicted narrative/flashpoint simulation, recommend a response plan. Return strict JSON only: {"summary": string, "actions": [{"priority": "urgent"|"high"|"medium", "category": "official"|"media"|"platform"|"user", "description": string}, ...]}. No prose, no markdown fences.`

func callOpts(label string, p Params) llmgw.CallJSONOptions {
	return llmgw.CallJSONOptions{
		TraceLabel: label, StageName: "simulate",
		MaxRetries: p.MaxRetries, RetryDelay: seconds(p.RetryDelay),
	}
}

func RunEmotion(ctx context.Context, gw *llmgw.Gateway, llmEnabled bool, p Params, rep domain.Report) EmotionResult {
	if llmEnabled && gw != nil {
		result := gw.CallJSON(ctx, emotionPrompt, marshalReport(rep, p), callOpts("emotion", p))
		if r, ok := emotionFromResult(result); ok {
			return r
		}
	}
	return ruleEmotion(p)
}

func RunNarratives(ctx context.Context, gw *llmgw.Gateway, llmEnabled bool, p Params, rep domain.Report) NarrativesResult {
	if llmEnabled && gw != nil {
		result := gw.CallJSON(ctx, narrativesPrompt, marshalReport(rep, p), callOpts("narratives", p))
		if r, ok := narrativesFromResult(result); ok {
			return r
		}
	}
	return ruleNarratives(p)
}

func RunFlashpoints(ctx context.Context, gw *llmgw.Gateway, llmEnabled bool, p Params, rep domain.Report) FlashpointsResult {
	if llmEnabled && gw != nil {
		result := gw.CallJSON(ctx, flashpointsPrompt, marshalReport(rep, p), callOpts("flashpoints", p))
		if r, ok := flashpointsFromResult(result); ok {
			return r
		}
	}
	return ruleFlashpoints(p)
}

func RunSuggestion(ctx context.Context, gw *llmgw.Gateway, llmEnabled bool, p Params, rep domain.Report) SuggestionResult {
	if llmEnabled && gw != nil {
		result := gw.CallJSON(ctx, suggestionPrompt, marshalReport(rep, p), callOpts("suggestion", p))
		if r, ok := suggestionFromResult(result); ok {
			return r
		}
	}
	return ruleSuggestion(p)
}

func emotionFromResult(result map[string]any) (EmotionResult, bool) {
	if result == nil {
		return EmotionResult{}, false
	}
	emotions, ok1 := floatMapFromResult(result, "emotion_distribution")
	stances, ok2 := floatMapFromResult(result, "stance_distribution")
	if !ok1 || !ok2 {
		return EmotionResult{}, false
	}
	drivers := stringsFromResult(result, "drivers")
	return EmotionResult{EmotionDistribution: emotions, StanceDistribution: stances, Drivers: drivers, FromLLM: true}, true
}

func narrativesFromResult(result map[string]any) (NarrativesResult, bool) {
	if result == nil {
		return NarrativesResult{}, false
	}
	arr, ok := result["narratives"].([]any)
	if !ok || len(arr) == 0 {
		return NarrativesResult{}, false
	}
	out := make([]Narrative, 0, len(arr))
	total := 0.0
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := obj["title"].(string)
		stance, _ := obj["stance"].(string)
		probability, _ := asFloat(obj["probability"])
		total += probability
		out = append(out, Narrative{
			Title:           strings.TrimSpace(title),
			Stance:          domain.NormalizeStance(stance),
			Probability:     domain.Clamp01(probability),
			TriggerKeywords: stringsFromAny(obj["trigger_keywords"]),
			SampleMessage:   stringField(obj, "sample_message"),
		})
	}
	if len(out) == 0 || total > 1.01 {
		return NarrativesResult{}, false
	}
	return NarrativesResult{Narratives: out, FromLLM: true}, true
}

func flashpointsFromResult(result map[string]any) (FlashpointsResult, bool) {
	if result == nil {
		return FlashpointsResult{}, false
	}
	descriptions := stringsFromResult(result, "descriptions")
	if len(descriptions) == 0 {
		return FlashpointsResult{}, false
	}
	arr, _ := result["timeline"].([]any)
	timeline := make([]TimelineEntry, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		hour, _ := asFloat(obj["hour_offset"])
		desc := stringField(obj, "description")
		if desc == "" {
			continue
		}
		timeline = append(timeline, TimelineEntry{HourOffset: int(hour), Description: desc})
	}
	return FlashpointsResult{Descriptions: descriptions, Timeline: timeline, FromLLM: true}, true
}

func suggestionFromResult(result map[string]any) (SuggestionResult, bool) {
	if result == nil {
		return SuggestionResult{}, false
	}
	summary, _ := result["summary"].(string)
	summary = strings.TrimSpace(summary)
	arr, ok := result["actions"].([]any)
	if summary == "" || !ok || len(arr) == 0 {
		return SuggestionResult{}, false
	}
	actions := make([]SuggestedAction, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		priority := validPriority(stringField(obj, "priority"))
		category := validCategory(stringField(obj, "category"))
		desc := stringField(obj, "description")
		if desc == "" {
			continue
		}
		actions = append(actions, SuggestedAction{Priority: priority, Category: category, Description: desc})
	}
	if len(actions) == 0 {
		return SuggestionResult{}, false
	}
	return SuggestionResult{Summary: summary, Actions: actions, FromLLM: true}, true
}

func validPriority(s string) string {
	switch s {
	case "urgent", "high", "medium":
		return s
	default:
		return "medium"
	}
}

func validCategory(s string) string {
	switch s {
	case "official", "media", "platform", "user":
		return s
	default:
		return "platform"
	}
}

// ruleEmotion is deterministic in (risk_score, platform, time_window_hours):
// higher risk bands skew the distribution toward anxious/distrustful.
func ruleEmotion(p Params) EmotionResult {
	seed := deterministicSeed(p)
	switch {
	case p.RiskScore >= 75:
		return EmotionResult{
			EmotionDistribution: map[string]float64{"anxiety": 0.45, "anger": 0.25, "distrust": 0.2, "neutral": 0.1},
			StanceDistribution:  map[string]float64{"refute": 0.55, "insufficient": 0.3, "support": 0.15},
			Drivers:             []string{"high preliminary risk score", fmt.Sprintf("platform=%s", p.Platform), seed},
		}
	case p.RiskScore >= 55:
		return EmotionResult{
			EmotionDistribution: map[string]float64{"concern": 0.4, "curiosity": 0.3, "neutral": 0.3},
			StanceDistribution:  map[string]float64{"insufficient": 0.45, "refute": 0.3, "support": 0.25},
			Drivers:             []string{"moderate risk score", fmt.Sprintf("platform=%s", p.Platform), seed},
		}
	default:
		return EmotionResult{
			EmotionDistribution: map[string]float64{"neutral": 0.6, "curiosity": 0.25, "concern": 0.15},
			StanceDistribution:  map[string]float64{"support": 0.5, "insufficient": 0.3, "refute": 0.2},
			Drivers:             []string{"low risk score", fmt.Sprintf("platform=%s", p.Platform), seed},
		}
	}
}

func ruleNarratives(p Params) NarrativesResult {
	band := riskBandName(p.RiskScore)
	return NarrativesResult{Narratives: []Narrative{
		{
			Title:           fmt.Sprintf("%s-risk narrative on %s", band, p.Platform),
			Stance:          domain.StanceInsufficient,
			Probability:     0.6,
			TriggerKeywords: []string{band, p.Platform},
			SampleMessage:   fmt.Sprintf("users on %s discuss this within a %dh window", p.Platform, p.TimeWindowHours),
		},
	}}
}

func ruleFlashpoints(p Params) FlashpointsResult {
	hours := p.TimeWindowHours
	if hours <= 0 {
		hours = 24
	}
	mid := hours / 2
	return FlashpointsResult{
		Descriptions: []string{fmt.Sprintf("initial spread on %s", p.Platform), "peak discussion window", "official response window"},
		Timeline: []TimelineEntry{
			{HourOffset: 0, Description: "initial posting"},
			{HourOffset: mid, Description: "peak discussion"},
			{HourOffset: hours, Description: "expected resolution or official response"},
		},
	}
}

func ruleSuggestion(p Params) SuggestionResult {
	if p.RiskScore >= 75 {
		return SuggestionResult{
			Summary: "high risk: escalate for an official rebuttal and platform takedown review",
			Actions: []SuggestedAction{
				{Priority: "urgent", Category: "official", Description: "issue an official clarification statement"},
				{Priority: "high", Category: "platform", Description: "request platform-level labeling or takedown review"},
			},
		}
	}
	if p.RiskScore >= 55 {
		return SuggestionResult{
			Summary: "moderate risk: monitor and prepare a media brief",
			Actions: []SuggestedAction{
				{Priority: "high", Category: "media", Description: "prepare a fact-check brief for media partners"},
			},
		}
	}
	return SuggestionResult{
		Summary: "low risk: continue routine monitoring",
		Actions: []SuggestedAction{
			{Priority: "medium", Category: "user", Description: "recommend users verify against official sources"},
		},
	}
}

func marshalReport(rep domain.Report, p Params) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "risk_score=%.1f risk_level=%s scenario=%s platform=%s time_window_hours=%d\n", rep.RiskScore, rep.RiskLevel, rep.DetectedScenario, p.Platform, p.TimeWindowHours)
	fmt.Fprintf(&sb, "summary=%s\n", rep.Summary)
	for _, pt := range rep.SuspiciousPoints {
		fmt.Fprintf(&sb, "suspicious_point: %s\n", pt)
	}
	return sb.String()
}

func riskBandName(score float64) string {
	level, _ := domain.RiskBand(score)
	return string(level)
}

func deterministicSeed(p Params) string {
	h := fnv.New32a()
	h.Write([]byte(fmt.Sprintf("%s|%d", p.Platform, p.TimeWindowHours)))
	return fmt.Sprintf("seed-%d", h.Sum32()%1000)
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func stringsFromResult(result map[string]any, key string) []string {
	return stringsFromAny(result[key])
}

func stringsFromAny(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func floatMapFromResult(result map[string]any, key string) (map[string]float64, bool) {
	obj, ok := result[key].(map[string]any)
	if !ok || len(obj) == 0 {
		return nil, false
	}
	out := make(map[string]float64, len(obj))
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if f, ok := asFloat(obj[k]); ok {
			out[k] = domain.Clamp01(f)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
