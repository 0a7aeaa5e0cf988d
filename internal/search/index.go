// Package search provides small, deterministic text-relevance primitives
// shared by the research pipeline and chat-on-report:
//
//   - Unicode-aware tokenization with stop-word removal
//   - Jaccard similarity and keyword coverage between token sets
//   - An immutable in-memory paragraph index (safe for concurrent use)
//     that retrieves the report passages most relevant to a question
//
// Scoring uses Jaccard similarity between the query token set and each
// paragraph's token set: score = |Q ∩ P| / |Q ∪ P|.
package search

import (
	"io"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Result is a ranked snippet with its similarity score.
type Result struct {
	Snippet string
	Score   float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
}

// DefaultStopwords are dropped from keyword sets before relevance checks.
// Generic product nouns ("app", "tool") are included so they never count as
// overlap on their own.
var DefaultStopwords = []string{
	"a", "an", "and", "app", "are", "as", "at", "be", "by", "for", "from",
	"how", "i", "in", "is", "it", "my", "of", "on", "or", "that", "the",
	"this", "to", "tool", "using", "want", "we", "what", "which", "who",
	"with", "you", "your",
}

var defaultStopset = toSet(DefaultStopwords)

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minParagraphRunes int
	stopwords         map[string]struct{}
	maxDocs           int
}

func defaultConfig() config {
	return config{
		minParagraphRunes: 20,
		stopwords:         defaultStopset,
		maxDocs:           0,
	}
}

func WithMinParagraphRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minParagraphRunes = n
		}
	}
}

// WithStopwords replaces the default stop-word set. An empty list keeps
// every token.
func WithStopwords(words []string) Option {
	return func(c *config) {
		c.stopwords = toSet(words)
	}
}

func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	text   string
	tokens map[string]struct{}
	tLen   int
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndexFromReader builds an Index from UTF-8 markdown provided by r.
// The reader is fully consumed; paragraphs are split on blank lines.
func NewIndexFromReader(r io.Reader, opts ...Option) (Index, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	all, err := io.ReadAll(r)
	if err != nil {
		return &index{cfg: cfg, docs: nil}, err
	}
	return buildIndex(Paragraphs(string(all)), cfg), nil
}

// NewIndexFromStrings builds an Index directly from a slice of paragraphs.
func NewIndexFromStrings(paragraphs []string, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return buildIndex(paragraphs, cfg)
}

func buildIndex(paragraphs []string, cfg config) *index {
	docs := make([]doc, 0, len(paragraphs))
	for _, raw := range paragraphs {
		t := strings.TrimSpace(normalizeWhitespace(raw))
		if t == "" {
			continue
		}
		if cfg.minParagraphRunes > 0 && utf8.RuneCountInString(t) < cfg.minParagraphRunes {
			continue
		}
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{text: t, tokens: toks, tLen: len(toks)})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// TopK returns up to k best-matching paragraphs by Jaccard similarity.
// Ties prefer shorter paragraphs, then lexical order.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		snippet  string
		score    float64
		lenRunes int
	}

	buf := make([]scored, 0, min(k*4, len(i.docs)))
	for _, d := range i.docs {
		score := jaccard(qTokens, d.tokens)
		if score <= 0 {
			continue
		}
		buf = append(buf, scored{
			snippet:  d.text,
			score:    score,
			lenRunes: utf8.RuneCountInString(d.text),
		})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].snippet < buf[b].snippet
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for i := 0; i < k; i++ {
		out[i] = Result{Snippet: buf[i].snippet, Score: buf[i].score}
	}
	return out
}

// ----------------------------------------------------------------------------
// Exported relevance helpers

// Tokens returns the lowercase word set of s without DefaultStopwords.
func Tokens(s string) map[string]struct{} {
	return tokenize(s, defaultStopset)
}

// Keywords returns up to n distinct non-stop words of s in order of first
// appearance.
func Keywords(s string, n int) []string {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	out := make([]string, 0, min(n, len(words)))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, stop := defaultStopset[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == n {
			break
		}
	}
	return out
}

// Jaccard returns |A ∩ B| / |A ∪ B| over two token sets, 0 when either is empty.
func Jaccard(a, b map[string]struct{}) float64 {
	return jaccard(a, b)
}

// Overlap returns how many tokens a and b share.
func Overlap(a, b map[string]struct{}) int {
	return overlap(a, b)
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+\p{L}+`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	over := overlap(a, b)
	if over == 0 {
		return 0
	}
	return float64(over) / float64(len(a)+len(b)-over)
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			m[w] = struct{}{}
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
