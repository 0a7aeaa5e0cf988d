package research

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

const (
	tavilyMaxResults = 8
	depthAdvanced    = "advanced"
	depthBasic       = "basic"
)

// TavilyClient talks to the Tavily search API.
type TavilyClient struct {
	HTTP      *http.Client
	BaseURL   string
	APIKey    string
	UserAgent string
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs one query with advanced depth and retries once with basic
// depth when the advanced request gets a non-2xx answer.
func (c *TavilyClient) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if c == nil || c.APIKey == "" {
		return nil, ErrUpstream
	}
	resp, err := c.do(ctx, query, depthAdvanced)
	var se *statusError
	if errors.As(err, &se) {
		resp, err = c.do(ctx, query, depthBasic)
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, domain.SearchResult{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.TrimSpace(r.Content),
			Score:   r.Score,
		})
	}
	return out, nil
}

func (c *TavilyClient) do(ctx context.Context, query, depth string) (*tavilyResponse, error) {
	var out tavilyResponse
	err := postJSON(ctx, c.httpClient(), strings.TrimRight(c.BaseURL, "/")+"/search", c.UserAgent, tavilyRequest{
		APIKey:      c.APIKey,
		Query:       query,
		SearchDepth: depth,
		MaxResults:  tavilyMaxResults,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *TavilyClient) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// WebSearch is the general web provider backed by Tavily.
type WebSearch struct {
	Client *TavilyClient
}

func (w *WebSearch) Name() string              { return "tavily" }
func (w *WebSearch) Source() domain.SourceType { return domain.SourceWeb }

func (w *WebSearch) Search(ctx context.Context, queries []string) ([]domain.SearchResult, error) {
	return searchEach(ctx, queries, func(ctx context.Context, q string) ([]domain.SearchResult, error) {
		hits, err := w.Client.Search(ctx, q)
		for i := range hits {
			hits[i].Source = domain.SourceWeb
			hits[i].Provider = w.Name()
		}
		return hits, err
	})
}

// ProductLaunch finds launch pages through a site-restricted Tavily search
// and keeps only post and product pages.
type ProductLaunch struct {
	Client *TavilyClient
}

const productHuntSite = "site:producthunt.com"

func (p *ProductLaunch) Name() string              { return "producthunt" }
func (p *ProductLaunch) Source() domain.SourceType { return domain.SourceProductLaunch }

func (p *ProductLaunch) Search(ctx context.Context, queries []string) ([]domain.SearchResult, error) {
	return searchEach(ctx, queries, func(ctx context.Context, q string) ([]domain.SearchResult, error) {
		if !strings.Contains(q, productHuntSite) {
			q = q + " " + productHuntSite
		}
		hits, err := p.Client.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		out := hits[:0]
		for _, h := range hits {
			if !isLaunchPage(h.URL) {
				continue
			}
			h.Source = domain.SourceProductLaunch
			h.Provider = p.Name()
			h.Title = strings.TrimSuffix(strings.TrimSpace(h.Title), " | Product Hunt")
			out = append(out, h)
		}
		return out, nil
	})
}

// isLaunchPage reports whether raw is a Product Hunt post or product page.
func isLaunchPage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "producthunt.com" {
		return false
	}
	return strings.Contains(u.Path, "/posts/") || strings.Contains(u.Path, "/products/")
}
