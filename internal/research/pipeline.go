package research

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/shiporskip-backend/internal/config"
	"github.com/tbourn/shiporskip-backend/internal/domain"
)

// Request is one analysis run.
type Request struct {
	Idea     string
	Category string
	Mode     domain.Mode
}

// Pipeline wires the stages together. Providers are split by mode: fast
// runs use FastProviders, deep runs use DeepProviders plus the Enricher.
type Pipeline struct {
	Planner       *Planner
	FastProviders []Provider
	DeepProviders []Provider
	Policy        *RankingPolicy
	Enricher      *Enricher
	Synth         *Synthesizer

	ProviderTimeout time.Duration
	FastBudget      time.Duration
	DeepBudget      time.Duration
	MaxRawSources   int
	ContextBudget   int
}

// Run executes the pipeline within the mode's budget and reports progress
// on em (which may be nil). It never emits the terminal event; that belongs
// to the caller, which also knows about persistence and quota.
func (p *Pipeline) Run(ctx context.Context, req Request, em *Emitter) (rep *domain.AnalysisReport, err error) {
	budget, providers := p.FastBudget, p.FastProviders
	if req.Mode == domain.ModeDeep {
		budget, providers = p.DeepBudget, p.DeepProviders
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	ctx, span := otel.Tracer("research/pipeline").Start(ctx, "Run",
		trace.WithAttributes(attribute.String("mode", string(req.Mode))))
	defer span.End()
	log := zerolog.Ctx(ctx)
	mode := string(req.Mode)

	defer func() {
		outcome := "ok"
		switch {
		case err == nil:
		case errors.Is(err, ErrNoResults):
			outcome = "no_results"
		case errors.Is(err, ErrSynthesisFailed):
			outcome = "synthesis_failed"
		case errors.Is(err, context.Canceled):
			outcome = "cancelled"
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
		default:
			outcome = "error"
		}
		runOutcomes.WithLabelValues(mode, outcome).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
	}()

	em.Progress(StageStarted, "Starting research", 5)

	t := time.Now()
	plan, err := p.Planner.Plan(ctx, req.Idea, req.Category, req.Mode)
	if err != nil {
		return nil, err
	}
	stageLatency.WithLabelValues(mode, StageQueries).Observe(time.Since(t).Seconds())
	em.Progress(StageQueries, fmt.Sprintf("Planned %d queries for %q", len(plan.AllQueries()), plan.Phrase()), 15)

	t = time.Now()
	em.Progress(StageSearching, fmt.Sprintf("Searching %d sources", len(providers)), 25)
	raw, statuses := fanOut(ctx, providers, plan.Queries, p.ProviderTimeout, req.Mode)
	stageLatency.WithLabelValues(mode, StageSearching).Observe(time.Since(t).Seconds())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, hits := range raw {
		total += len(hits)
	}
	if total == 0 {
		log.Info().Interface("providers", statuses).Msg("no provider returned results")
		return nil, ErrNoResults
	}

	em.Progress(StageFiltering, fmt.Sprintf("Filtering %d results", total), 45)
	agg := Aggregate(raw, plan.Keywords, p.Policy, p.MaxRawSources)
	if len(agg.Candidates) == 0 {
		log.Info().Int("raw", total).Int("dropped", agg.Dropped).Msg("every result was filtered out")
		return nil, ErrNoResults
	}
	log.Debug().Int("raw", total).Int("kept", len(agg.Candidates)).Int("dropped", agg.Dropped).Msg("aggregated")

	var enriched []*Enrichment
	if req.Mode == domain.ModeDeep && p.Enricher != nil {
		t = time.Now()
		em.Progress(StageEnriching, "Reading competitor pages", 55)
		enriched = p.Enricher.Enrich(ctx, agg.Candidates, func(done, total int) {
			em.Progress(StageEnriching, fmt.Sprintf("Read %d of %d pages", done, total), 55+20*done/total)
		})
		stageLatency.WithLabelValues(mode, StageEnriching).Observe(time.Since(t).Seconds())
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	t = time.Now()
	em.Progress(StageSynthesizing, "Synthesizing report", 85)
	evidence := AssembleContext(agg, enriched, p.ContextBudget)
	rep, err = p.Synth.Synthesize(ctx, SanitizeIdea(req.Idea, p.Planner.MaxRunes), evidence)
	stageLatency.WithLabelValues(mode, StageSynthesizing).Observe(time.Since(t).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, err
	}

	rep.RawSources = agg.RawSources
	rep.ExtraSources = Attribute(rep, agg.RawSources)
	rep.Queries = plan.AllQueries()
	rep.Providers = statuses
	return rep, nil
}

// NewPipeline builds the production pipeline from configuration. hc is
// shared by every provider and the enricher; llm may be nil, in which case
// keywords fall back to the idea text and synthesis reports ErrLLMDisabled.
func NewPipeline(cfg config.Config, hc *http.Client, llm LLM, policy *RankingPolicy) *Pipeline {
	pv := cfg.Providers
	tavily := &TavilyClient{HTTP: hc, BaseURL: pv.TavilyBaseURL, APIKey: pv.TavilyAPIKey, UserAgent: pv.UserAgent}
	web := &WebSearch{Client: tavily}
	gh := &GitHubSearch{HTTP: hc, APIURL: pv.GitHubAPIURL, Token: pv.GitHubToken, UserAgent: pv.UserAgent, Web: tavily}
	launch := &ProductLaunch{Client: tavily}

	pc := cfg.Pipeline
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Pipeline{
		Planner:       &Planner{LLM: llm, MaxRunes: pc.IdeaMaxRunes},
		FastProviders: []Provider{web},
		DeepProviders: []Provider{web, gh, launch},
		Policy:        policy,
		Enricher: NewEnricher(EnricherOptions{
			HTTP:       hc,
			RawBaseURL: pv.GitHubRawURL,
			UserAgent:  pv.UserAgent,
			TopN:       pc.DeepFetchTopN,
			Parallel:   pc.DeepFetchParallel,
			Timeout:    pc.FetchTimeout,
			MaxChars:   pc.EnrichMaxChars,
		}),
		Synth:           &Synthesizer{LLM: llm},
		ProviderTimeout: pv.Timeout,
		FastBudget:      pc.FastBudget,
		DeepBudget:      pc.DeepBudget,
		MaxRawSources:   pc.MaxRawSources,
		ContextBudget:   pc.ContextBudget,
	}
}
