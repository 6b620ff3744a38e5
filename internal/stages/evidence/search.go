// Package evidence implements the Evidence-search and Evidence-summarize
// stages (spec.md §4.4, §4.5): per-claim provider-dispatched web search,
// relevance re-ranking, heuristic stance tagging, and optional LM-driven
// merge of redundant rows before the Align Stage ever sees them.
package evidence

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"factcheck-orchestrator/internal/domain"
	"factcheck-orchestrator/internal/websearch"
)

// Search runs the Evidence-search Stage for one claim (spec.md §4.4): it
// queries the configured provider, re-ranks by relevance, and tags a
// heuristic stance. When search is disabled (registry/provider nil) or the
// provider returns nothing, it inserts a single insufficient placeholder so
// downstream stages always have a per-claim row.
func Search(ctx context.Context, registry *websearch.Registry, providerName string, claim domain.Claim, topK int, allowedDomains []string, now time.Time) []domain.Evidence {
	if registry == nil {
		return []domain.Evidence{placeholder(claim)}
	}
	provider, ok := registry.Get(providerName)
	if !ok {
		return []domain.Evidence{placeholder(claim)}
	}
	results, err := provider.Search(ctx, claim.ClaimText, topK)
	if err != nil || len(results) == 0 {
		return []domain.Evidence{placeholder(claim)}
	}

	ranked := websearch.Rerank(claim.ClaimText, results, allowedDomains, now)
	if len(ranked) == 0 {
		return []domain.Evidence{placeholder(claim)}
	}

	out := make([]domain.Evidence, 0, len(ranked))
	for i, r := range ranked {
		stance := websearch.InferStance(r.Title, r.Summary, r.Relevance)
		out = append(out, domain.Evidence{
			EvidenceID:   fmt.Sprintf("e%d", i+1),
			ClaimID:      claim.ClaimID,
			Title:        r.Title,
			Source:       providerName,
			URL:          r.URL,
			PublishedAt:  r.PublishedAt,
			Summary:      r.Summary,
			Stance:       domain.NormalizeStance(stance),
			SourceWeight: domain.Clamp01(r.Relevance),
			SourceType:   "web_live",
			RetrievedAt:  now.UTC().Format(time.RFC3339),
			Domain:       hostOf(r.URL),
			RawSnippet:   r.RawSnippet,
			Relevance:    r.Relevance,
		})
	}
	return out
}

func placeholder(claim domain.Claim) domain.Evidence {
	return domain.Evidence{
		EvidenceID: "e1",
		ClaimID:    claim.ClaimID,
		Stance:     domain.StanceInsufficient,
		SourceType: "placeholder",
		Summary:    "no search evidence available for this claim",
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
