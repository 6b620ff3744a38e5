package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// TavilyProvider queries the Tavily Search API, which returns a clean JSON
// results array keyed by "results".
type TavilyProvider struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func NewTavilyProvider(apiKey string) *TavilyProvider {
	return &TavilyProvider{
		APIKey:     apiKey,
		Endpoint:   "https://api.tavily.com/search",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *TavilyProvider) Name() string { return "tavily" }

func (p *TavilyProvider) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	body, err := json.Marshal(map[string]any{
		"api_key":     p.APIKey,
		"query":       query,
		"max_results": topK,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, jsonReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Title         string  `json:"title"`
			URL           string  `json:"url"`
			Content       string  `json:"content"`
			Score         float64 `json:"score"`
			PublishedDate string  `json:"published_date"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(payload.Results))
	for _, r := range payload.Results {
		out = append(out, Result{
			Title:       r.Title,
			URL:         r.URL,
			Summary:     r.Content,
			Score:       r.Score,
			PublishedAt: r.PublishedDate,
			RawSnippet:  r.Content,
		})
	}
	return out, nil
}

// SerpAPIProvider queries serpapi.com's google-search engine JSON endpoint.
type SerpAPIProvider struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func NewSerpAPIProvider(apiKey string) *SerpAPIProvider {
	return &SerpAPIProvider{
		APIKey:     apiKey,
		Endpoint:   "https://serpapi.com/search",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *SerpAPIProvider) Name() string { return "serpapi" }

func (p *SerpAPIProvider) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("api_key", p.APIKey)
	q.Set("num", strconv.Itoa(topK))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
			Position int   `json:"position"`
		} `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(payload.OrganicResults))
	for _, r := range payload.OrganicResults {
		score := 1.0
		if r.Position > 0 {
			score = 1.0 / float64(r.Position)
		}
		out = append(out, Result{
			Title:       r.Title,
			URL:         r.Link,
			Summary:     r.Snippet,
			Score:       score,
			PublishedAt: r.Date,
			RawSnippet:  r.Snippet,
		})
	}
	return out, nil
}

// BaiduCompatibleProvider targets Baidu-compatible search endpoints (Baidu
// AI Search / Qianfan and similar clones that mirror its JSON shape).
type BaiduCompatibleProvider struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func NewBaiduCompatibleProvider(endpoint, apiKey string) *BaiduCompatibleProvider {
	return &BaiduCompatibleProvider{
		APIKey:     apiKey,
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *BaiduCompatibleProvider) Name() string { return "baidu" }

func (p *BaiduCompatibleProvider) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	body, err := json.Marshal(map[string]any{
		"query":   query,
		"top_k":   topK,
		"api_key": p.APIKey,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, jsonReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Data []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Summary string  `json:"summary"`
			Score   float64 `json:"score"`
			Date    string  `json:"date"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(payload.Data))
	for _, r := range payload.Data {
		out = append(out, Result{
			Title:       r.Title,
			URL:         r.URL,
			Summary:     r.Summary,
			Score:       r.Score,
			PublishedAt: r.Date,
			RawSnippet:  r.Summary,
		})
	}
	return out, nil
}
