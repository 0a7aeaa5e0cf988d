package research

import (
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/search"
)

// Scoring weights. A candidate's score is
//
//	(0.45·overlap + 0.25·provider + 0.30·url_weight) × source multiplier
//
// plus a bonus for a repository named exactly like a keyword.
const (
	weightOverlap  = 0.45
	weightProvider = 0.25
	weightURL      = 0.30
	repoNameBonus  = 0.15

	titleDupThreshold = 0.9
)

var sourceMultiplier = map[domain.SourceType]float64{
	domain.SourceWeb:           1.00,
	domain.SourceCodeRepo:      1.10,
	domain.SourceProductLaunch: 1.05,
}

// Aggregation is the ranked, filtered and deduplicated view of a run's hits.
// RawSources is the capped prefix of Candidates kept for disclosure.
type Aggregation struct {
	Candidates []domain.SearchResult
	RawSources []domain.SearchResult
	Dropped    int
}

// Aggregate filters, deduplicates and ranks raw provider output. It does
// not modify its input and returns the same result for the same input.
func Aggregate(raw [][]domain.SearchResult, keywords []string, policy *RankingPolicy, maxRaw int) Aggregation {
	var flat []domain.SearchResult
	for _, hits := range raw {
		flat = append(flat, hits...)
	}
	sort.SliceStable(flat, func(i, j int) bool { return flat[i].Rank < flat[j].Rank })

	kw := search.Tokens(strings.Join(keywords, " "))
	kwNames := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		kwNames[strings.ToLower(k)] = struct{}{}
	}

	var (
		out       []domain.SearchResult
		seenURL   = map[string]struct{}{}
		titles    []map[string]struct{}
		titleKeys = map[string]struct{}{}
		perDomain = map[string]int{}
		dropped   int
	)
	for _, r := range flat {
		nu := NormalizeURL(r.URL)
		if nu == "" {
			dropped++
			continue
		}
		u, _ := url.Parse(nu)
		host := u.Hostname()
		if policy.DomainBlocked(host) || policy.TitleBlocked(r.Title) {
			dropped++
			continue
		}
		text := search.Tokens(r.Title + " " + r.Snippet)
		if len(kw) > 0 && search.Overlap(kw, text) == 0 {
			dropped++
			continue
		}
		if _, dup := seenURL[nu]; dup {
			dropped++
			continue
		}
		nt := normalizeTitle(r.Title)
		if nt != "" {
			if _, dup := titleKeys[nt]; dup {
				dropped++
				continue
			}
			tt := search.Tokens(nt)
			if nearDuplicate(tt, titles) {
				dropped++
				continue
			}
			titleKeys[nt] = struct{}{}
			titles = append(titles, tt)
		}
		if policy != nil && policy.MaxPerDomain > 0 {
			rd := registrableDomain(host)
			if perDomain[rd] >= policy.MaxPerDomain {
				dropped++
				continue
			}
			perDomain[rd]++
		}
		seenURL[nu] = struct{}{}

		r.Score = score(r, u, kw, text, kwNames, policy)
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Rank < out[j].Rank
	})

	rawN := len(out)
	if maxRaw > 0 && rawN > maxRaw {
		rawN = maxRaw
	}
	return Aggregation{
		Candidates: out,
		RawSources: append([]domain.SearchResult(nil), out[:rawN]...),
		Dropped:    dropped,
	}
}

func score(r domain.SearchResult, u *url.URL, kw, text, kwNames map[string]struct{}, policy *RankingPolicy) float64 {
	overlap := search.Jaccard(kw, text)
	prov := r.Score
	if prov <= 0 {
		prov = overlap
	}
	prov = clamp01(prov)

	s := weightOverlap*overlap + weightProvider*prov + weightURL*urlWeight(u, policy)
	if m, ok := sourceMultiplier[r.Source]; ok {
		s *= m
	}
	if r.Source == domain.SourceCodeRepo {
		if _, repo, ok := githubRepo(u.String()); ok {
			name := strings.ToLower(repo)
			if _, hit := kwNames[name]; hit {
				s += repoNameBonus
			}
		}
	}
	return s
}

// urlWeight favours repositories and launch pages over arbitrary articles.
func urlWeight(u *url.URL, policy *RankingPolicy) float64 {
	switch {
	case isGitHubRepoURL(u):
		return 1.0
	case isLaunchPage(u.String()):
		return 0.95
	case policy.HighValue(u.Hostname()):
		return 0.8
	case u.Path == "" || u.Path == "/":
		return 0.6
	default:
		return 0.3
	}
}

func isGitHubRepoURL(u *url.URL) bool {
	_, _, ok := githubRepo(u.String())
	return ok
}

// NormalizeURL is the uniqueness key of a result: lowercased, fragment
// dropped and trailing slash stripped. Non-http(s) URLs normalize to "".
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(strings.ToLower(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	u.RawFragment = ""
	return strings.TrimRight(u.String(), "/")
}

// normalizeTitle keeps lowercase letters and digits, collapsing everything
// else to single spaces.
func normalizeTitle(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

func nearDuplicate(t map[string]struct{}, seen []map[string]struct{}) bool {
	if len(t) == 0 {
		return false
	}
	for _, s := range seen {
		if search.Jaccard(t, s) >= titleDupThreshold {
			return true
		}
	}
	return false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
