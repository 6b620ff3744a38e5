package websearch

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// SearXNGProvider queries a self-hosted SearXNG instance's HTML results page
// and scrapes result rows with goquery, adapted from the teacher's
// postRequest+extractURLsFromHTML pair (internal/web/web.go) which only
// extracted bare URLs — this keeps title/snippet too, since Result needs them.
type SearXNGProvider struct {
	Endpoint   string
	HTTPClient *http.Client
}

func NewSearXNGProvider(endpoint string) *SearXNGProvider {
	return &SearXNGProvider{Endpoint: endpoint, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

func (p *SearXNGProvider) Name() string { return "searxng" }

func (p *SearXNGProvider) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	form := url.Values{}
	form.Set("q", query)
	form.Set("format", "html")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []Result
	doc.Find("article.result, div.result").Each(func(i int, s *goquery.Selection) {
		if len(out) >= topK {
			return
		}
		link := s.Find("a").First()
		href, _ := link.Attr("href")
		if href == "" {
			return
		}
		title := strings.TrimSpace(link.Text())
		summary := strings.TrimSpace(s.Find("p.content, .content").First().Text())
		out = append(out, Result{
			Title:   title,
			URL:     href,
			Summary: summary,
			Score:   1.0 / float64(i+1),
		})
	})
	return out, nil
}

// BochaProvider queries the Bocha search API, whose response is an HTML
// fragment per result card rather than a clean JSON array; scraped the same
// way as SearXNGProvider.
type BochaProvider struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

func NewBochaProvider(endpoint, apiKey string) *BochaProvider {
	return &BochaProvider{Endpoint: endpoint, APIKey: apiKey, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

func (p *BochaProvider) Name() string { return "bocha" }

func (p *BochaProvider) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	reqURL := p.Endpoint + "?q=" + url.QueryEscape(query) + "&count=" + strconv.Itoa(topK)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []Result
	doc.Find(".result-card, .web-item").Each(func(i int, s *goquery.Selection) {
		if len(out) >= topK {
			return
		}
		link := s.Find("a").First()
		href, _ := link.Attr("href")
		if href == "" {
			return
		}
		out = append(out, Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     href,
			Summary: strings.TrimSpace(s.Find(".summary, .snippet").First().Text()),
			Score:   1.0 / float64(i+1),
		})
	})
	return out, nil
}
