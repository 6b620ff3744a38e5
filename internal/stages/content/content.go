// Package content implements the Content-generate Stage (spec.md §4.9):
// clarification copy, FAQ, and platform scripts bound to a finished
// Report and an optional Simulate result.
package content

import (
	"context"
	"fmt"
	"strings"

	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/guardrails"
	"factcheck-orchestrator/internal/llmgw"
)

type Clarification struct {
	Short  string `json:"short"`
	Medium string `json:"medium"`
	Long   string `json:"long"`
}

type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type PlatformScript struct {
	Platform string `json:"platform"`
	Script   string `json:"script"`
}

// Result is the Content-generate Stage's output; it persists onto a
// history record's Content field (map[string]any) via ToMap.
type Result struct {
	Clarification   Clarification    `json:"clarification"`
	FAQ             []FAQItem        `json:"faq"`
	PlatformScripts []PlatformScript `json:"platform_scripts"`
	FromLLM         bool             `json:"-"`
}

// ToMap converts a Result into the generic payload HistoryStore.UpdateContent
// persists.
func (r Result) ToMap() map[string]any {
	faq := make([]map[string]any, 0, len(r.FAQ))
	for _, f := range r.FAQ {
		faq = append(faq, map[string]any{"question": f.Question, "answer": f.Answer})
	}
	scripts := make([]map[string]any, 0, len(r.PlatformScripts))
	for _, s := range r.PlatformScripts {
		scripts = append(scripts, map[string]any{"platform": s.Platform, "script": s.Script})
	}
	return map[string]any{
		"clarification": map[string]any{
			"short": r.Clarification.Short, "medium": r.Clarification.Medium, "long": r.Clarification.Long,
		},
		"faq":              faq,
		"platform_scripts": scripts,
	}
}

const systemPrompt = `Given a fact-check report (and optional simulation), write user-facing content. Return strict JSON only: {"clarification": {"short": string, "medium": string, "long": string}, "faq": [{"question": string, "answer": string}, ...], "platform_scripts": [{"platform": string, "script": string}, ...]}. No prose, no markdown fences.`

// Run produces content bound to rep (and, if non-nil, sim). style is
// normalized via guardrails.NormalizeStyle before being forwarded to the
// LM prompt; the rule fallback does not vary with style.
func Run(ctx context.Context, gw *llmgw.Gateway, llmEnabled bool, style string, rep domain.Report, sim map[string]any) Result {
	style = guardrails.NormalizeStyle(style)
	if llmEnabled && gw != nil {
		user := marshalForPrompt(style, rep, sim)
		result := gw.CallJSON(ctx, systemPrompt, user, llmgw.CallJSONOptions{TraceLabel: "content", StageName: "content"})
		if r, ok := fromResult(result); ok {
			return sanitizeResult(r)
		}
	}
	return sanitizeResult(ruleFallback(style, rep))
}

func fromResult(result map[string]any) (Result, bool) {
	if result == nil {
		return Result{}, false
	}
	clarObj, ok := result["clarification"].(map[string]any)
	if !ok {
		return Result{}, false
	}
	clarification := Clarification{
		Short:  stringField(clarObj, "short"),
		Medium: stringField(clarObj, "medium"),
		Long:   stringField(clarObj, "long"),
	}
	if clarification.Short == "" {
		return Result{}, false
	}

	var faq []FAQItem
	if arr, ok := result["faq"].([]any); ok {
		for _, item := range arr {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			q := stringField(obj, "question")
			a := stringField(obj, "answer")
			if q == "" || a == "" {
				continue
			}
			faq = append(faq, FAQItem{Question: q, Answer: a})
		}
	}

	var scripts []PlatformScript
	if arr, ok := result["platform_scripts"].([]any); ok {
		for _, item := range arr {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			p := stringField(obj, "platform")
			s := stringField(obj, "script")
			if p == "" || s == "" {
				continue
			}
			scripts = append(scripts, PlatformScript{Platform: p, Script: s})
		}
	}

	return Result{Clarification: clarification, FAQ: faq, PlatformScripts: scripts, FromLLM: true}, true
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

// ruleFallback builds deterministic content from the report alone: its
// summary, suspicious points and claim reports. style is not used.
func ruleFallback(style string, rep domain.Report) Result {
	short := rep.Summary
	medium := fmt.Sprintf("%s 建议关注点：%s", rep.Summary, strings.Join(rep.SuspiciousPoints, "；"))
	long := medium
	if len(rep.ClaimReports) > 0 {
		var sb strings.Builder
		sb.WriteString(medium)
		sb.WriteString("\n逐条分析：\n")
		for _, cr := range rep.ClaimReports {
			fmt.Fprintf(&sb, "- %s：判定为 %s\n", cr.Claim.ClaimText, cr.FinalStance)
		}
		long = sb.String()
	}

	var faq []FAQItem
	for _, cr := range rep.ClaimReports {
		faq = append(faq, FAQItem{
			Question: fmt.Sprintf("「%s」是否属实？", cr.Claim.ClaimText),
			Answer:   fmt.Sprintf("当前判定为 %s，风险等级 %s。", cr.FinalStance, rep.RiskLevel),
		})
	}
	if len(faq) == 0 {
		faq = []FAQItem{{Question: "这条内容可信吗？", Answer: short}}
	}

	scripts := []PlatformScript{
		{Platform: "weibo", Script: short},
		{Platform: "wechat", Script: medium},
		{Platform: "generic", Script: short},
	}

	return Result{
		Clarification:   Clarification{Short: short, Medium: medium, Long: long},
		FAQ:             faq,
		PlatformScripts: scripts,
	}
}

func sanitizeResult(r Result) Result {
	r.Clarification.Short = sanitize(r.Clarification.Short)
	r.Clarification.Medium = sanitize(r.Clarification.Medium)
	r.Clarification.Long = sanitize(r.Clarification.Long)
	for i := range r.FAQ {
		r.FAQ[i].Question = sanitize(r.FAQ[i].Question)
		r.FAQ[i].Answer = sanitize(r.FAQ[i].Answer)
	}
	for i := range r.PlatformScripts {
		r.PlatformScripts[i].Script = sanitize(r.PlatformScripts[i].Script)
	}
	return r
}

func sanitize(s string) string {
	return guardrails.SanitizeText(s, 2000).Text
}

func marshalForPrompt(style string, rep domain.Report, sim map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "style=%s risk_level=%s risk_label=%s\n", style, rep.RiskLevel, rep.RiskLabel)
	fmt.Fprintf(&sb, "summary=%s\n", rep.Summary)
	for _, pt := range rep.SuspiciousPoints {
		fmt.Fprintf(&sb, "suspicious_point: %s\n", pt)
	}
	if sim != nil {
		fmt.Fprintf(&sb, "simulation_summary=%v\n", sim["summary"])
	}
	return sb.String()
}
