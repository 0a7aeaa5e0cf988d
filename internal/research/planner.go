package research

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/search"
)

const (
	maxKeywords        = 8
	maxQueriesPerClass = 3
)

// Plan is the planner's output: the keyword phrase and the queries for
// every provider class taking part in the run.
type Plan struct {
	Keywords []string
	Queries  map[domain.SourceType][]string
}

// Phrase joins the keywords with single spaces.
func (p Plan) Phrase() string { return strings.Join(p.Keywords, " ") }

// AllQueries flattens the queries in SourceTypes order for the audit trail.
func (p Plan) AllQueries() []string {
	var out []string
	for _, st := range domain.SourceTypes {
		out = append(out, p.Queries[st]...)
	}
	return out
}

// Planner turns an idea into provider queries. LLM is optional; without it
// (or on any LLM failure) keywords come from the idea text.
type Planner struct {
	LLM      LLM
	MaxRunes int
}

// SanitizeIdea strips control characters, collapses whitespace and cuts
// the text to maxRunes runes.
func SanitizeIdea(s string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	n := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = b.Len() > 0
			continue
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		if maxRunes > 0 && n >= maxRunes {
			break
		}
		if space {
			b.WriteByte(' ')
			n++
			space = false
			if maxRunes > 0 && n >= maxRunes {
				break
			}
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}

// Plan sanitizes idea and builds the query set for mode. Fast mode plans
// web queries only and never calls the LLM.
func (p *Planner) Plan(ctx context.Context, idea, category string, mode domain.Mode) (Plan, error) {
	ctx, span := otel.Tracer("research/planner").Start(ctx, "Plan",
		trace.WithAttributes(attribute.String("mode", string(mode))))
	defer span.End()

	idea = SanitizeIdea(idea, p.MaxRunes)
	if idea == "" {
		return Plan{}, ErrInvalidIdea
	}
	category = SanitizeIdea(category, 64)

	var kws []string
	if mode == domain.ModeDeep && p.LLM != nil {
		var err error
		kws, err = p.llmKeywords(ctx, idea)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("keyword extraction failed; using idea text")
		}
	}
	if len(kws) == 0 {
		kws = fallbackKeywords(idea)
	}

	plan := Plan{Keywords: kws, Queries: map[domain.SourceType][]string{}}
	k := plan.Phrase()

	web := []string{k + " app alternative", k + " startup competitor", k + " indie hacker side project"}
	if category != "" {
		web[1] = k + " " + category + " startup competitor"
	}
	plan.Queries[domain.SourceWeb] = capQueries(web)

	if mode == domain.ModeDeep {
		plan.Queries[domain.SourceCodeRepo] = capQueries([]string{k, k + " open source tool"})
		plan.Queries[domain.SourceProductLaunch] = capQueries([]string{k + " site:producthunt.com", k + " launch"})
	}
	span.SetAttributes(attribute.Int("queries", len(plan.AllQueries())))
	return plan, nil
}

const keywordSystemPrompt = `You extract search keywords for competitor research.
Return a JSON object {"keywords": "<at most 8 words>"} naming the core product concept.
Drop filler such as "I want to build" or "an app that". No punctuation.`

func (p *Planner) llmKeywords(ctx context.Context, idea string) ([]string, error) {
	out, err := p.LLM.Complete(ctx, []Message{
		{Role: "system", Content: keywordSystemPrompt},
		{Role: "user", Content: idea},
	}, true)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Keywords string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		return nil, err
	}
	words := strings.Fields(SanitizeIdea(resp.Keywords, 120))
	if len(words) > maxKeywords {
		words = words[:maxKeywords]
	}
	return words, nil
}

// fallbackKeywords is the first eight non-stop words of the idea, or its
// first eight words when nothing else is left.
func fallbackKeywords(idea string) []string {
	if kws := search.Keywords(idea, maxKeywords); len(kws) > 0 {
		return kws
	}
	words := strings.Fields(strings.ToLower(idea))
	if len(words) > maxKeywords {
		words = words[:maxKeywords]
	}
	return words
}

func capQueries(qs []string) []string {
	out := make([]string, 0, maxQueriesPerClass)
	seen := map[string]struct{}{}
	for _, q := range qs {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
		if len(out) == maxQueriesPerClass {
			break
		}
	}
	return out
}
