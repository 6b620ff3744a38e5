// Package report implements the Report Stage (spec.md §4.7): deterministic
// score derivation from per-claim final stances, band mapping, scenario
// detection, and an optional LM pass over summary/suspicious points.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/llmgw"
)

const systemPrompt = `Given a fact-check report's claims, evidence and final stances, write a concise summary and a list of suspicious points, plus one conclusion per claim. Return strict JSON only: {"summary": string, "suspicious_points": [string, ...], "claim_conclusions": [{"claim_id": string, "conclusion": string}, ...]}. No prose, no markdown fences.`

var scenarioKeywords = map[domain.Scenario][]string{
	domain.ScenarioHealth:     {"疫苗", "病毒", "疫情", "医院", "药物", "health", "vaccine", "virus", "disease", "hospital"},
	domain.ScenarioGovernance: {"政府", "政策", "官员", "部门", "government", "policy", "official", "ministry"},
	domain.ScenarioSecurity:   {"爆炸", "袭击", "枪击", "恐怖", "security", "attack", "bomb", "shooting", "terror"},
	domain.ScenarioMedia:      {"报道", "记者", "媒体", "新闻", "media", "journalist", "news outlet"},
	domain.ScenarioTechnology: {"人工智能", "芯片", "软件", "科技", "technology", "ai", "chip", "software"},
	domain.ScenarioEducation:  {"学校", "考试", "学生", "教育", "school", "exam", "student", "education"},
}

// Run derives a Report from a set of claim/evidence pairs. finalStances
// supplies one domain.Stance per claim_id, already aggregated across that
// claim's evidence rows (see DeriveFinalStance).
func Run(ctx context.Context, gw *llmgw.Gateway, llmEnabled bool, claims []domain.Claim, evidencesByClaim map[string][]domain.Evidence, finalStances map[string]domain.Stance) domain.Report {
	claimReports := make([]domain.ClaimReport, 0, len(claims))
	score := 55.0
	var suspiciousPoints []string

	for _, c := range claims {
		stance := finalStances[c.ClaimID]
		if stance == "" {
			stance = domain.StanceInsufficient
		}
		switch stance {
		case domain.StanceSupport:
			score += 6
		case domain.StanceRefute:
			score -= 12
			suspiciousPoints = append(suspiciousPoints, fmt.Sprintf("claim %s refuted by evidence", c.ClaimID))
		case domain.StanceInsufficient:
			score -= 4
			suspiciousPoints = append(suspiciousPoints, fmt.Sprintf("claim %s lacks supporting evidence", c.ClaimID))
		}
		claimReports = append(claimReports, domain.ClaimReport{
			Claim:       c,
			Evidences:   evidencesByClaim[c.ClaimID],
			FinalStance: stance,
		})
	}

	score = domain.ClampScore(score)
	level, label := domain.RiskBand(score)
	scenario := detectScenario(claims)
	domains := evidenceDomains(claimReports)
	summary := fallbackSummary(score)
	if len(suspiciousPoints) == 0 {
		suspiciousPoints = []string{"none notable, keep monitoring"}
	}

	rep := domain.Report{
		RiskScore:        score,
		RiskLevel:        level,
		RiskLabel:        label,
		DetectedScenario: scenario,
		EvidenceDomains:  domains,
		Summary:          summary,
		SuspiciousPoints: suspiciousPoints,
		ClaimReports:     claimReports,
	}

	if llmEnabled && gw != nil {
		applyLLM(ctx, gw, &rep)
	}
	return rep
}

// DeriveFinalStance aggregates one claim's evidence rows into a single
// stance: the stance whose evidences carry the greatest combined
// source_weight*max(alignment_confidence, 0.2) wins; ties favor
// insufficient as the conservative default.
func DeriveFinalStance(evs []domain.Evidence) domain.Stance {
	weights := map[domain.Stance]float64{}
	for _, e := range evs {
		confidence := e.AlignmentConfidence
		if confidence < 0.2 {
			confidence = 0.2
		}
		weights[e.Stance] += e.SourceWeight * confidence
	}
	best := domain.StanceInsufficient
	bestWeight := weights[domain.StanceInsufficient]
	for _, s := range []domain.Stance{domain.StanceSupport, domain.StanceRefute} {
		if weights[s] > bestWeight {
			best = s
			bestWeight = weights[s]
		}
	}
	return best
}

func detectScenario(claims []domain.Claim) domain.Scenario {
	n := len(claims)
	if n > 3 {
		n = 3
	}
	var sb strings.Builder
	for _, c := range claims[:n] {
		sb.WriteString(strings.ToLower(c.ClaimText))
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(c.Entity))
		sb.WriteString(" ")
	}
	text := sb.String()

	order := []domain.Scenario{
		domain.ScenarioHealth, domain.ScenarioGovernance, domain.ScenarioSecurity,
		domain.ScenarioMedia, domain.ScenarioTechnology, domain.ScenarioEducation,
	}
	best := domain.ScenarioGeneral
	bestCount := 0
	for _, scenario := range order {
		count := 0
		for _, kw := range scenarioKeywords[scenario] {
			count += strings.Count(text, strings.ToLower(kw))
		}
		if count > bestCount {
			bestCount = count
			best = scenario
		}
	}
	return best
}

func evidenceDomains(crs []domain.ClaimReport) []string {
	set := map[string]bool{}
	for _, cr := range crs {
		for _, e := range cr.Evidences {
			if e.Domain != "" {
				set[e.Domain] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func fallbackSummary(score float64) string {
	switch {
	case score >= 75:
		return "内容存在较高虚假信息风险，证据大多反驳了所述主张，建议谨慎转发并核实信息来源。"
	case score >= 55:
		return "内容可疑，部分主张缺乏证据支持，建议进一步核实后再传播。"
	case score >= 35:
		return "内容部分可信，建议结合权威信息来源进一步确认细节。"
	default:
		return "内容可信度较高，未发现明显的虚假信息迹象。"
	}
}

func applyLLM(ctx context.Context, gw *llmgw.Gateway, rep *domain.Report) {
	user := marshalReportForPrompt(*rep)
	result := gw.CallJSON(ctx, systemPrompt, user, llmgw.CallJSONOptions{TraceLabel: "report", StageName: "report"})
	if result == nil {
		return
	}
	summary, _ := result["summary"].(string)
	summary = strings.TrimSpace(summary)
	points := stringsFromResult(result, "suspicious_points")
	if summary == "" {
		return
	}
	rep.Summary = summary
	if len(points) > 0 {
		rep.SuspiciousPoints = points
	}
	applyConclusions(result, rep)
}

func applyConclusions(result map[string]any, rep *domain.Report) {
	arr, ok := result["claim_conclusions"].([]any)
	if !ok {
		return
	}
	byID := map[string]int{}
	for i, cr := range rep.ClaimReports {
		byID[cr.Claim.ClaimID] = i
	}
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		claimID, _ := obj["claim_id"].(string)
		conclusion, _ := obj["conclusion"].(string)
		conclusion = strings.TrimSpace(conclusion)
		if claimID == "" || conclusion == "" {
			continue
		}
		if idx, ok := byID[claimID]; ok {
			rep.ClaimReports[idx].Notes = conclusion
		}
	}
}

func stringsFromResult(result map[string]any, key string) []string {
	arr, ok := result[key].([]any)
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

func marshalReportForPrompt(rep domain.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "risk_score=%.1f risk_level=%s detected_scenario=%s\n", rep.RiskScore, rep.RiskLevel, rep.DetectedScenario)
	for _, cr := range rep.ClaimReports {
		fmt.Fprintf(&sb, "claim %s: %s [final_stance=%s]\n", cr.Claim.ClaimID, cr.Claim.ClaimText, cr.FinalStance)
		for _, e := range cr.Evidences {
			fmt.Fprintf(&sb, "  evidence %s: %s (stance=%s, weight=%.2f)\n", e.EvidenceID, e.Summary, e.Stance, e.SourceWeight)
		}
	}
	return sb.String()
}
