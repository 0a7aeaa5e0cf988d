package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

const (
	maxCompetitors = 10
	maxListItems   = 8
)

// Synthesizer turns assembled evidence into an AnalysisReport.
type Synthesizer struct {
	LLM LLM
}

type synthPayload struct {
	Verdict          string `json:"verdict"`
	MarketSaturation string `json:"market_saturation"`
	Competitors      []struct {
		Name           string `json:"name"`
		URL            string `json:"url"`
		Description    string `json:"description"`
		Differentiator string `json:"differentiator"`
		ThreatLevel    string `json:"threat_level"`
	} `json:"competitors"`
	Gaps      []string `json:"gaps"`
	Pros      []string `json:"pros"`
	Cons      []string `json:"cons"`
	BuildPlan []string `json:"build_plan"`
}

const synthSystemPrompt = `You are a blunt startup analyst. Using only the evidence provided, assess
whether the idea is worth building. Respond with one JSON object with exactly these keys:
"verdict" (string, one or two sentences, must start with "Ship" or "Skip"),
"market_saturation" ("low"|"medium"|"high"),
"competitors" (array of {"name","url","description","differentiator","threat_level":"low"|"medium"|"high"}),
"gaps", "pros", "cons", "build_plan" (arrays of short strings).
Only list real products or repositories found in the evidence. Blog posts, listicles and tutorials are not competitors.`

const synthStrictSuffix = `
Your previous answer was rejected: %s.
Return ONLY the JSON object with exactly the keys listed above. No extra keys, no markdown.`

// Synthesize asks the model for a report and validates it strictly. A
// schema violation gets one stricter retry; a second violation returns
// ErrSynthesisFailed. Transport failures are returned as upstream errors.
func (s *Synthesizer) Synthesize(ctx context.Context, idea, evidence string) (*domain.AnalysisReport, error) {
	ctx, span := otel.Tracer("research/synth").Start(ctx, "Synthesize")
	defer span.End()

	if s == nil || s.LLM == nil {
		return nil, ErrLLMDisabled
	}
	msgs := []Message{
		{Role: "system", Content: synthSystemPrompt},
		{Role: "user", Content: "Idea: " + idea + "\n\nEvidence:\n" + evidence},
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt == 1 {
			synthesisRetries.Inc()
			msgs[0].Content = synthSystemPrompt + fmt.Sprintf(synthStrictSuffix, lastErr)
			zerolog.Ctx(ctx).Warn().Err(lastErr).Msg("synthesis output rejected; retrying")
		}
		out, err := s.LLM.Complete(ctx, msgs, true)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "llm")
			return nil, err
		}
		rep, err := DecodeReport(out)
		if err == nil {
			return rep, nil
		}
		lastErr = err
	}
	span.SetStatus(codes.Error, "schema")
	return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, lastErr)
}

// DecodeReport parses model output into a report, rejecting unknown keys,
// an empty verdict and out-of-enum levels. Lists are capped.
func DecodeReport(raw string) (*domain.AnalysisReport, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	var p synthPayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return nil, errors.New("trailing data after json object")
	}

	rep := &domain.AnalysisReport{
		Verdict:          strings.TrimSpace(p.Verdict),
		MarketSaturation: domain.ThreatLevel(strings.ToLower(strings.TrimSpace(p.MarketSaturation))),
		Gaps:             cleanList(p.Gaps),
		Pros:             cleanList(p.Pros),
		Cons:             cleanList(p.Cons),
		BuildPlan:        cleanList(p.BuildPlan),
	}
	if rep.Verdict == "" {
		return nil, errors.New("verdict is empty")
	}
	if !rep.MarketSaturation.Valid() {
		return nil, fmt.Errorf("market_saturation %q not in low|medium|high", p.MarketSaturation)
	}

	title := cases.Title(language.English)
	for _, c := range p.Competitors {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if name == strings.ToLower(name) && !strings.Contains(name, "/") {
			name = title.String(name)
		}
		lvl := domain.ThreatLevel(strings.ToLower(strings.TrimSpace(c.ThreatLevel)))
		if lvl != "" && !lvl.Valid() {
			return nil, fmt.Errorf("competitor %q threat_level %q not in low|medium|high", name, c.ThreatLevel)
		}
		rep.Competitors = append(rep.Competitors, domain.CompetitorProfile{
			Name:           name,
			URL:            strings.TrimSpace(c.URL),
			Description:    strings.TrimSpace(c.Description),
			Differentiator: strings.TrimSpace(c.Differentiator),
			ThreatLevel:    lvl,
		})
		if len(rep.Competitors) == maxCompetitors {
			break
		}
	}
	return rep, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, min(len(in), maxListItems))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == maxListItems {
			break
		}
	}
	return out
}

// Attribute links competitors to raw sources, first by normalized URL and
// then by normalized name against source titles. A matched competitor takes
// the source's URL; an unmatched one loses its URL, so every competitor link
// points at a collected source. It returns the number of raw sources no
// competitor was matched to.
func Attribute(rep *domain.AnalysisReport, raw []domain.SearchResult) int {
	if rep == nil {
		return len(raw)
	}
	byURL := make(map[string]int, len(raw))
	titles := make([]string, len(raw))
	for i, r := range raw {
		if nu := NormalizeURL(r.URL); nu != "" {
			if _, dup := byURL[nu]; !dup {
				byURL[nu] = i
			}
		}
		titles[i] = normalizeTitle(r.Title)
	}

	matched := make([]bool, len(raw))
	for ci := range rep.Competitors {
		c := &rep.Competitors[ci]
		if i, ok := byURL[NormalizeURL(c.URL)]; ok && c.URL != "" {
			c.URL = raw[i].URL
			matched[i] = true
			continue
		}
		linked := ""
		if name := normalizeTitle(c.Name); name != "" {
			for i, t := range titles {
				if nameMatches(name, t, raw[i].URL) {
					matched[i] = true
					linked = raw[i].URL
					break
				}
			}
		}
		c.URL = linked
	}

	extra := 0
	for _, m := range matched {
		if !m {
			extra++
		}
	}
	return extra
}

func nameMatches(name, title, rawURL string) bool {
	if title == name || strings.HasPrefix(title, name+" ") {
		return true
	}
	if _, repo, ok := githubRepo(rawURL); ok {
		return normalizeTitle(repo) == name
	}
	return false
}
