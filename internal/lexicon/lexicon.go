// Package lexicon is the single source of truth for the keyword/phrase
// lists the rule-fallback paths share across stages: the Risk Stage
// (SPEC_FULL.md §4.2.5) and the Claims Stage (spec.md §4.3) score the same
// risk-term phrases, and the Evidence-search/Align stages (spec.md §4.4,
// §4.6) score the same refute/official-term phrases. Keeping one lexicon
// avoids the two stages drifting apart on what counts as a "risk term".
package lexicon

import (
	"regexp"
	"strings"
)

// RiskTerms are rhetoric phrases that raise both the Claims stage's
// per-sentence verifiability score and the Risk Stage's rule-fallback
// score (SPEC_FULL.md §4.2.5).
var RiskTerms = []string{
	"震惊", "内部消息", "必须转发", "紧急扩散", "秘而不宣", "官方隐瞒",
	"breaking", "shocking", "must share", "they don't want you to know",
}

// AbsoluteRhetoricMarkers are superlative/absolute-certainty phrases the
// Risk Stage's rule fallback scores +10 for (SPEC_FULL.md §4.2.5).
var AbsoluteRhetoricMarkers = []string{"必然", "100%", "绝对", "一定", "肯定", "毫无疑问"}

// UrgencyMarkers are exclamation/urgency phrases the Risk Stage's rule
// fallback scores +6 per hit for.
var UrgencyMarkers = []string{"!", "！", "立即", "马上", "速看", "紧急"}

// attributedSourceRe matches a quoted official/agency name, the Risk
// Stage's -5 "attributed-source marker" signal.
var attributedSourceRe = regexp.MustCompile(`(卫健委|疾控中心|新华社|路透社|美联社|according to (the )?(ministry|government|officials))`)

// newsDatelineRe matches dateline/wire-service patterns for the Risk
// Stage's is_news rule match.
var newsDatelineRe = regexp.MustCompile(`(记者.{0,10}报道|(新华社|路透社|美联社))`)

// RefuteTerms are rumor-control phrases; shared by websearch.InferStance
// and the Align Stage's rule-path priority ladder (spec.md §4.6).
var RefuteTerms = []string{"谣言", "辟谣", "不实", "虚假信息", "fact check", "debunk", "hoax", "false claim", "misinformation"}

// OfficialTerms are official-source phrases; shared the same way as RefuteTerms.
var OfficialTerms = []string{"官方", "政府", "卫健委", "疾控中心", "official statement", "ministry", "government", "according to officials"}

// CountRiskTerms returns how many RiskTerms phrases occur in text (case-insensitive).
func CountRiskTerms(text string) int { return countPhrases(text, RiskTerms) }

// CountAbsoluteRhetoric returns how many AbsoluteRhetoricMarkers occur in text.
func CountAbsoluteRhetoric(text string) int { return countPhrases(text, AbsoluteRhetoricMarkers) }

// CountUrgencyMarkers returns how many UrgencyMarkers occur in text.
func CountUrgencyMarkers(text string) int { return countPhrases(text, UrgencyMarkers) }

// HasAttributedSource reports whether text names a quoted official/agency source.
func HasAttributedSource(text string) bool { return attributedSourceRe.MatchString(text) }

// IsNewsDateline reports whether text matches a wire-service dateline pattern.
func IsNewsDateline(text string) bool { return newsDatelineRe.MatchString(text) }

// HasRiskTerm reports whether text contains any RiskTerms phrase.
func HasRiskTerm(text string) bool { return CountRiskTerms(text) > 0 }

// HasRefuteTerm reports whether text contains any RefuteTerms phrase.
func HasRefuteTerm(text string) bool { return countPhrases(text, RefuteTerms) > 0 }

// HasOfficialTerm reports whether text contains any OfficialTerms phrase.
func HasOfficialTerm(text string) bool { return countPhrases(text, OfficialTerms) > 0 }

func countPhrases(text string, phrases []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, p := range phrases {
		n += strings.Count(lower, strings.ToLower(p))
	}
	return n
}
