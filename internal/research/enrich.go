package research

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/search"
)

const (
	maxPageBody     int64 = 2 << 20
	minReadmeChars        = 100
	maxRedirects          = 5
	defaultMaxChars       = 3000
)

// Enrichment is the fetched content of one candidate.
type Enrichment struct {
	URL         string
	Source      domain.SourceType
	Title       string
	Description string
	Content     string
}

// EnricherOptions configures an Enricher.
type EnricherOptions struct {
	HTTP       *http.Client
	RawBaseURL string // raw README host, e.g. https://raw.githubusercontent.com
	UserAgent  string
	TopN       int
	Parallel   int
	Timeout    time.Duration // per fetch
	MaxChars   int

	// Guard vets every URL and redirect hop; nil means ValidateURL.
	Guard func(ctx context.Context, rawURL string) error
}

// Enricher deep-fetches the top candidates of a run: READMEs for
// repositories, landing pages for everything else.
type Enricher struct {
	opts      EnricherOptions
	client    *http.Client
	converter *converter.Converter
	sanitizer *bluemonday.Policy
}

// NewEnricher builds an Enricher. The HTTP client is copied so redirect
// hops can be vetted by the guard.
func NewEnricher(o EnricherOptions) *Enricher {
	if o.Guard == nil {
		o.Guard = ValidateURL
	}
	if o.TopN <= 0 {
		o.TopN = 8
	}
	if o.Parallel <= 0 {
		o.Parallel = 5
	}
	if o.MaxChars <= 0 {
		o.MaxChars = defaultMaxChars
	}
	hc := o.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	client := *hc
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errors.New("too many redirects")
		}
		return o.Guard(req.Context(), req.URL.String())
	}

	return &Enricher{
		opts:   o,
		client: &client,
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// Enrich fetches up to TopN candidates concurrently. The result is aligned
// with the fetched prefix of candidates; a failed fetch leaves a nil entry
// and the candidate falls back to its snippet. progress, when set, is
// called after each fetch with the count finished so far.
func (e *Enricher) Enrich(ctx context.Context, candidates []domain.SearchResult, progress func(done, total int)) []*Enrichment {
	n := min(e.opts.TopN, len(candidates))
	out := make([]*Enrichment, n)
	if n == 0 {
		return out
	}

	var finished atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallel)
	for i := 0; i < n; i++ {
		c := candidates[i]
		g.Go(func() error {
			fctx := gctx
			if e.opts.Timeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(gctx, e.opts.Timeout)
				defer cancel()
			}
			en, err := e.fetch(fctx, c)
			outcome := "ok"
			switch {
			case err != nil:
				outcome = "failed"
				zerolog.Ctx(ctx).Debug().Err(err).Str("url", c.URL).Msg("deep fetch failed")
			case en == nil:
				outcome = "skipped"
			}
			enrichFetches.WithLabelValues(c.Source.String(), outcome).Inc()
			out[i] = en
			if progress != nil {
				progress(int(finished.Add(1)), n)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Enricher) fetch(ctx context.Context, c domain.SearchResult) (*Enrichment, error) {
	if c.Source == domain.SourceCodeRepo {
		owner, repo, ok := githubRepo(c.URL)
		if !ok {
			return nil, nil
		}
		return e.fetchReadme(ctx, c, owner, repo)
	}
	return e.fetchPage(ctx, c)
}

// fetchReadme tries the main branch, then master.
func (e *Enricher) fetchReadme(ctx context.Context, c domain.SearchResult, owner, repo string) (*Enrichment, error) {
	var lastErr error
	for _, branch := range []string{"main", "master"} {
		u := fmt.Sprintf("%s/%s/%s/%s/README.md", strings.TrimRight(e.opts.RawBaseURL, "/"), owner, repo, branch)
		body, _, err := e.get(ctx, u, false)
		if err != nil {
			lastErr = err
			continue
		}
		text := strings.TrimSpace(search.FlattenMarkdown(string(body)))
		if len([]rune(text)) <= minReadmeChars {
			return nil, nil
		}
		return &Enrichment{
			URL:     c.URL,
			Source:  c.Source,
			Title:   c.Title,
			Content: search.Truncate(text, e.opts.MaxChars),
		}, nil
	}
	return nil, lastErr
}

func (e *Enricher) fetchPage(ctx context.Context, c domain.SearchResult) (*Enrichment, error) {
	body, ctype, err := e.get(ctx, c.URL, true)
	if err != nil {
		return nil, err
	}
	if ctype != "" && !strings.Contains(ctype, "html") {
		return nil, fmt.Errorf("unsupported content type %q", ctype)
	}
	return e.extract(c, body)
}

// extract pulls title and description with goquery, then sanitizes the
// body and converts it to flattened markdown.
func (e *Enricher) extract(c domain.SearchResult, body []byte) (*Enrichment, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	desc, _ := doc.Find(`meta[name="description"]`).Attr("content")
	if strings.TrimSpace(desc) == "" {
		desc, _ = doc.Find(`meta[property="og:description"]`).Attr("content")
	}

	doc.Find("script, style, noscript, nav, footer, header, svg, form, iframe").Remove()
	html, err := doc.Find("body").Html()
	if err != nil {
		return nil, err
	}
	clean := e.sanitizer.Sanitize(html)
	md, err := e.converter.ConvertString(clean, converter.WithDomain(c.URL))
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	if d := strings.TrimSpace(desc); d != "" {
		b.WriteString(d)
		b.WriteString("\n\n")
	}
	b.WriteString(search.FlattenMarkdown(md))

	content := strings.TrimSpace(b.String())
	if content == "" {
		return nil, nil
	}
	if title == "" {
		title = c.Title
	}
	return &Enrichment{
		URL:         c.URL,
		Source:      c.Source,
		Title:       title,
		Description: strings.TrimSpace(desc),
		Content:     search.Truncate(content, e.opts.MaxChars),
	}, nil
}

// get fetches u through the guard. Bodies larger than the cap are cut
// rather than rejected.
func (e *Enricher) get(ctx context.Context, u string, guard bool) ([]byte, string, error) {
	if guard {
		if err := e.opts.Guard(ctx, u); err != nil {
			return nil, "", err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	if e.opts.UserAgent != "" {
		req.Header.Set("User-Agent", e.opts.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &statusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return nil, "", err
	}
	return body, strings.ToLower(resp.Header.Get("Content-Type")), nil
}
