package research

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

func allowAll(context.Context, string) error { return nil }

const readme = `# Tool

Tool is a standup assistant that collects async updates from every teammate
and posts a digest to Slack at the end of the day.

| Plan | Price |
|------|-------|
| Free | $0    |
`

const landing = `<!doctype html>
<html><head>
<title>Geekbot - Async standups</title>
<meta name="description" content="Run standups in Slack without meetings.">
<script>trackEverything()</script>
</head>
<body>
<nav>Home | Pricing | Login</nav>
<h1>Standups that run themselves</h1>
<p>Geekbot asks your team the standup questions and shares the answers.</p>
<footer>Copyright</footer>
</body></html>`

func newContentServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/acme/tool/master/README.md", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(readme))
	})
	mux.HandleFunc("/tiny/repo/main/README.md", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# tiny"))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landing))
	})
	mux.HandleFunc("/file.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestEnrich_ReadmeFallsBackToMaster(t *testing.T) {
	srv, hits := newContentServer(t)
	e := NewEnricher(EnricherOptions{HTTP: srv.Client(), RawBaseURL: srv.URL, Guard: allowAll})

	out := e.Enrich(context.Background(), []domain.SearchResult{
		{Source: domain.SourceCodeRepo, Title: "acme/tool", URL: "https://github.com/acme/tool"},
	}, nil)
	if len(out) != 1 || out[0] == nil {
		t.Fatalf("expected one enrichment, got %+v", out)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected main then master, got %d requests", hits.Load())
	}
	got := out[0].Content
	if !strings.Contains(got, "standup assistant") || !strings.Contains(got, "Free $0") {
		t.Fatalf("README not flattened as expected:\n%s", got)
	}
	if strings.Contains(got, "|---") {
		t.Fatalf("table separator leaked:\n%s", got)
	}
}

func TestEnrich_ShortReadmeAndNonRepoSkipped(t *testing.T) {
	srv, _ := newContentServer(t)
	e := NewEnricher(EnricherOptions{HTTP: srv.Client(), RawBaseURL: srv.URL, Guard: allowAll})

	out := e.Enrich(context.Background(), []domain.SearchResult{
		{Source: domain.SourceCodeRepo, URL: "https://github.com/tiny/repo"},
		{Source: domain.SourceCodeRepo, URL: "https://github.com/topics/standup"},
	}, nil)
	if out[0] != nil || out[1] != nil {
		t.Fatalf("expected both skipped, got %+v %+v", out[0], out[1])
	}
}

func TestEnrich_PageExtraction(t *testing.T) {
	srv, _ := newContentServer(t)
	e := NewEnricher(EnricherOptions{HTTP: srv.Client(), Guard: allowAll, MaxChars: 2000})

	var calls []int
	out := e.Enrich(context.Background(), []domain.SearchResult{
		{Source: domain.SourceWeb, Title: "fallback", URL: srv.URL + "/page"},
		{Source: domain.SourceWeb, Title: "pdf", URL: srv.URL + "/file.pdf"},
		{Source: domain.SourceWeb, Title: "missing", URL: srv.URL + "/gone"},
	}, func(done, total int) {
		if total != 3 {
			t.Errorf("total = %d", total)
		}
		calls = append(calls, done)
	})

	if len(calls) != 3 {
		t.Fatalf("progress called %d times", len(calls))
	}
	page := out[0]
	if page == nil {
		t.Fatalf("page not enriched")
	}
	if page.Title != "Geekbot - Async standups" || page.Description != "Run standups in Slack without meetings." {
		t.Fatalf("unexpected metadata: %+v", page)
	}
	for _, gone := range []string{"trackEverything", "Pricing | Login", "Copyright"} {
		if strings.Contains(page.Content, gone) {
			t.Errorf("content should not contain %q:\n%s", gone, page.Content)
		}
	}
	if !strings.Contains(page.Content, "Standups that run themselves") {
		t.Fatalf("body text missing:\n%s", page.Content)
	}
	if out[1] != nil || out[2] != nil {
		t.Fatalf("non-html and 404 should fall back to snippets")
	}
}

func TestEnrich_TopNAndGuard(t *testing.T) {
	srv, _ := newContentServer(t)
	blocked := errors.New("blocked")
	e := NewEnricher(EnricherOptions{
		HTTP:  srv.Client(),
		TopN:  1,
		Guard: func(context.Context, string) error { return blocked },
	})
	out := e.Enrich(context.Background(), []domain.SearchResult{
		{Source: domain.SourceWeb, URL: srv.URL + "/page"},
		{Source: domain.SourceWeb, URL: srv.URL + "/page"},
	}, nil)
	if len(out) != 1 || out[0] != nil {
		t.Fatalf("guard should block and TopN should cap: %+v", out)
	}
}
