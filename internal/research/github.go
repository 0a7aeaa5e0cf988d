package research

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

const (
	githubPerPage      = 10
	githubMinResults   = 3
	githubFallbackSite = "site:github.com"
)

// GitHubSearch is the code-repository provider. When a query yields fewer
// than three repositories and Web is set, a site-restricted web search
// fills in.
type GitHubSearch struct {
	HTTP      *http.Client
	APIURL    string
	Token     string
	UserAgent string
	Web       *TavilyClient
}

type githubSearchResponse struct {
	Items []struct {
		FullName    string `json:"full_name"`
		HTMLURL     string `json:"html_url"`
		Description string `json:"description"`
		Stars       int    `json:"stargazers_count"`
	} `json:"items"`
}

func (g *GitHubSearch) Name() string              { return "github" }
func (g *GitHubSearch) Source() domain.SourceType { return domain.SourceCodeRepo }

func (g *GitHubSearch) Search(ctx context.Context, queries []string) ([]domain.SearchResult, error) {
	return searchEach(ctx, queries, func(ctx context.Context, q string) ([]domain.SearchResult, error) {
		hits, err := g.searchRepos(ctx, q)
		if len(hits) >= githubMinResults || g.Web == nil || g.Web.APIKey == "" {
			return hits, err
		}
		extra, ferr := g.Web.Search(ctx, q+" "+githubFallbackSite)
		if ferr != nil {
			if err != nil {
				return nil, err
			}
			return hits, nil
		}
		for _, h := range extra {
			if _, _, ok := githubRepo(h.URL); !ok {
				continue
			}
			h.Source = domain.SourceCodeRepo
			h.Provider = g.Name()
			h.Score = 0
			hits = append(hits, h)
		}
		return hits, nil
	})
}

func (g *GitHubSearch) searchRepos(ctx context.Context, q string) ([]domain.SearchResult, error) {
	u := fmt.Sprintf("%s/search/repositories?q=%s&sort=stars&order=desc&per_page=%d",
		strings.TrimRight(g.APIURL, "/"), url.QueryEscape(q), githubPerPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	client := g.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	var resp githubSearchResponse
	if err := doJSON(client, req, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.SearchResult, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.HTMLURL == "" {
			continue
		}
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			desc = it.FullName
		}
		out = append(out, domain.SearchResult{
			Source:   domain.SourceCodeRepo,
			Provider: g.Name(),
			Title:    it.FullName,
			URL:      it.HTMLURL,
			Snippet:  fmt.Sprintf("%s (%d stars)", desc, it.Stars),
			Score:    starScore(it.Stars),
		})
	}
	return out, nil
}

// starScore maps stars onto [0,1] logarithmically; 100k stars scores 1.
func starScore(stars int) float64 {
	if stars <= 0 {
		return 0
	}
	return math.Min(1, math.Log10(float64(stars)+1)/5)
}

// githubRepo extracts owner and repo from a github.com repository URL.
// Non-repository pages (topics, search, orgs, ...) are rejected.
func githubRepo(raw string) (owner, repo string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "github.com" {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	switch strings.ToLower(parts[0]) {
	case "topics", "search", "trending", "explore", "orgs", "collections", "marketplace", "features", "sponsors":
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}
