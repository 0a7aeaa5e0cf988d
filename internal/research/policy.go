package research

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
	"gopkg.in/yaml.v3"
)

// RankingPolicy holds the filter lists used by the aggregator. The zero
// value filters nothing; DefaultPolicy returns the built-in lists.
type RankingPolicy struct {
	BlockedDomains   []string `yaml:"blocked_domains"`
	HighValueDomains []string `yaml:"high_value_domains"`
	BlockedTitles    []string `yaml:"blocked_titles"` // regular expressions, matched lowercase
	MaxPerDomain     int      `yaml:"max_per_domain"` // 0 disables the cap

	blocked   map[string]struct{}
	highValue map[string]struct{}
	titles    []*regexp.Regexp
}

var defaultBlockedDomains = []string{
	"forbes.com", "businessinsider.com", "entrepreneur.com",
	"inc.com", "fastcompany.com", "wired.com",
	"g2.com", "capterra.com", "alternativeto.com",
	"slant.co", "sourceforge.net", "softwareadvice.com",
	"futurepedia.io", "theresanaiforthat.com",
	"indeed.com", "glassdoor.com", "linkedin.com",
	"twitter.com", "x.com", "facebook.com", "instagram.com",
	"nytimes.com", "wsj.com", "ft.com", "bloomberg.com",
	"amazon.com", "imdb.com",
	"techcrunch.com", "theverge.com", "zdnet.com", "cnet.com",
	"wikipedia.org", "medium.com", "youtube.com",
	"play.google.com", "apps.apple.com",
	"soft112.com", "talkwalker.com",
}

var defaultHighValueDomains = []string{
	"github.com", "producthunt.com", "news.ycombinator.com",
	"indiehackers.com", "devpost.com",
	"reddit.com", "dev.to", "hashnode.dev",
}

// Listicles, guides and comparison posts describe products without being one.
var defaultBlockedTitles = []string{
	`^best .+ alternatives`,
	`^\d+ best .+`,
	`^top \d+`,
	`^how to (build|create|use)`,
	`alternatives (for|to)\b`,
	`alternatives \(`,
	`\bvs\.?\b`,
	`reviews?:.+(pricing|alternatives)`,
	`(ultimate|complete) guide`,
	`comparison table`,
	`^looking for`,
	`a collection of awesome`,
}

// DefaultPolicy returns the built-in ranking policy.
func DefaultPolicy() *RankingPolicy {
	p := &RankingPolicy{
		BlockedDomains:   append([]string(nil), defaultBlockedDomains...),
		HighValueDomains: append([]string(nil), defaultHighValueDomains...),
		BlockedTitles:    append([]string(nil), defaultBlockedTitles...),
		MaxPerDomain:     4,
	}
	if err := p.compile(); err != nil {
		panic(err) // built-in patterns are constant
	}
	return p
}

// LoadPolicy reads a YAML policy from path. Lists left empty in the file
// keep their built-in defaults. An empty path returns DefaultPolicy.
func LoadPolicy(path string) (*RankingPolicy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicy(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ranking policy: %w", err)
	}
	return ParsePolicy(b)
}

// ParsePolicy decodes a YAML policy document. Unknown keys are rejected.
func ParsePolicy(b []byte) (*RankingPolicy, error) {
	def := DefaultPolicy()
	p := &RankingPolicy{MaxPerDomain: -1}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse ranking policy: %w", err)
	}
	if len(p.BlockedDomains) == 0 {
		p.BlockedDomains = def.BlockedDomains
	}
	if len(p.HighValueDomains) == 0 {
		p.HighValueDomains = def.HighValueDomains
	}
	if len(p.BlockedTitles) == 0 {
		p.BlockedTitles = def.BlockedTitles
	}
	if p.MaxPerDomain < 0 {
		p.MaxPerDomain = def.MaxPerDomain
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RankingPolicy) compile() error {
	p.blocked = domainSet(p.BlockedDomains)
	p.highValue = domainSet(p.HighValueDomains)
	p.titles = p.titles[:0]
	for _, expr := range p.BlockedTitles {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("blocked title %q: %w", expr, err)
		}
		p.titles = append(p.titles, re)
	}
	return nil
}

func domainSet(ds []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ds))
	for _, d := range ds {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d != "" {
			m[d] = struct{}{}
		}
	}
	return m
}

// DomainBlocked reports whether host or any parent domain is blocked.
func (p *RankingPolicy) DomainBlocked(host string) bool {
	return p != nil && matchDomain(host, p.blocked)
}

// HighValue reports whether host belongs to a high-value domain.
func (p *RankingPolicy) HighValue(host string) bool {
	return p != nil && matchDomain(host, p.highValue)
}

// TitleBlocked reports whether title looks like a listicle or guide.
func (p *RankingPolicy) TitleBlocked(title string) bool {
	if p == nil {
		return false
	}
	low := strings.ToLower(strings.TrimSpace(title))
	for _, re := range p.titles {
		if re.MatchString(low) {
			return true
		}
	}
	return false
}

// matchDomain walks from host up to its registrable domain and reports
// whether any label suffix is in set.
func matchDomain(host string, set map[string]struct{}) bool {
	if len(set) == 0 {
		return false
	}
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSuffix(host, ".")), "www.")
	if host == "" {
		return false
	}
	root := registrableDomain(host)
	for h := host; ; {
		if _, ok := set[h]; ok {
			return true
		}
		if h == root {
			return false
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			return false
		}
		h = h[i+1:]
	}
}

// registrableDomain returns the eTLD+1 of host, or host itself when the
// public suffix list cannot tell (IP literals, bare suffixes).
func registrableDomain(host string) string {
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}
