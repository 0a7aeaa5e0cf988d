// Package services – AnalysisService
//
// AnalysisService drives one analysis run end to end: input validation, the
// deep-run concurrency guard, quota reservation, the research record
// lifecycle, the pipeline itself, and the commit-or-release decision on the
// reservation. Runs are split in two steps so the HTTP layer can reject a
// request with a plain error before it starts streaming:
//
//	t, err := svc.Begin(ctx, id, in)   // validate, guard, reserve, create record
//	res, err := svc.Execute(ctx, t, em) // pipeline, persist, release on failure
package services

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/identity"
	"github.com/tbourn/shiporskip-backend/internal/repo"
	"github.com/tbourn/shiporskip-backend/internal/research"
)

// Idempotency scope for replayable fast analyses.
const scopeAnalyzeFast = "analyze:fast"

// cleanupTimeout bounds persistence and release work that must finish even
// after the client went away.
const cleanupTimeout = 5 * time.Second

// Runner executes the research pipeline.
type Runner interface {
	Run(ctx context.Context, req research.Request, em *research.Emitter) (*domain.AnalysisReport, error)
}

// AnalyzeInput is a validated-at-the-edge submission.
type AnalyzeInput struct {
	Idea     string
	Category string
	Mode     domain.Mode
}

// Ticket is an admitted run: quota reserved and, for signed-in users, a
// research record in the processing state.
type Ticket struct {
	Identity   identity.Identity
	Request    research.Request
	Grant      *Grant
	ResearchID string
}

// AnalysisResult is what a finished run hands back to the caller.
type AnalysisResult struct {
	ResearchID string                 `json:"research_id,omitempty"`
	Saved      bool                   `json:"saved"`
	Report     *domain.AnalysisReport `json:"report"`
	Usage      *Usage                 `json:"usage,omitempty"`
	Replayed   bool                   `json:"-"`
}

// AnalysisService coordinates analysis runs.
type AnalysisService struct {
	DB       *gorm.DB
	Pipeline Runner
	Quota    *QuotaService

	IdeaMaxRunes   int
	IdempotencyTTL time.Duration
}

// Validate checks the mode and the idea without touching storage or
// providers.
func (s *AnalysisService) Validate(in AnalyzeInput) error {
	if !in.Mode.Valid() {
		return ErrInvalidMode
	}
	idea := research.SanitizeIdea(in.Idea, 0)
	if idea == "" {
		return research.ErrInvalidIdea
	}
	if s.IdeaMaxRunes > 0 && utf8.RuneCountInString(idea) > s.IdeaMaxRunes {
		return ErrIdeaTooLong
	}
	return nil
}

// Begin validates in, applies the deep-run guard, reserves quota and, for
// signed-in users, creates the processing record. Nothing is reserved when
// an error is returned.
func (s *AnalysisService) Begin(ctx context.Context, id identity.Identity, in AnalyzeInput) (*Ticket, error) {
	ctx, span := otel.Tracer("services/AnalysisService").Start(ctx, "Begin",
		trace.WithAttributes(
			attribute.String("mode", string(in.Mode)),
			attribute.String("identity.kind", string(id.Kind)),
		),
	)
	defer span.End()

	if err := s.Validate(in); err != nil {
		return nil, err
	}
	idea := research.SanitizeIdea(in.Idea, 0)
	category := research.SanitizeIdea(in.Category, 64)

	if in.Mode == domain.ModeDeep && id.Authenticated() {
		active, err := repo.HasActiveResearch(ctx, s.DB, id.UserID, domain.ModeDeep)
		if err != nil {
			return nil, err
		}
		if active {
			return nil, ErrResearchInProgress
		}
	}

	grant, err := s.Quota.Reserve(ctx, id, in.Mode)
	if err != nil {
		return nil, err
	}

	t := &Ticket{
		Identity: id,
		Request:  research.Request{Idea: idea, Category: category, Mode: in.Mode},
		Grant:    grant,
	}
	if id.Authenticated() {
		rec, err := repo.CreateResearch(ctx, s.DB, id.UserID, idea, category, in.Mode, domain.StatusProcessing)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("could not create research record; run will not be saved")
		} else {
			t.ResearchID = rec.ID
		}
	}
	span.SetAttributes(attribute.String("research.id", t.ResearchID))
	return t, nil
}

// Execute runs the pipeline for t. On success the reservation is kept and
// the report persisted; a persistence failure still returns the report with
// Saved=false. On failure the reservation is released and the record marked
// failed. Execute never emits the terminal event on em.
func (s *AnalysisService) Execute(ctx context.Context, t *Ticket, em *research.Emitter) (*AnalysisResult, error) {
	ctx, span := otel.Tracer("services/AnalysisService").Start(ctx, "Execute",
		trace.WithAttributes(
			attribute.String("mode", string(t.Request.Mode)),
			attribute.String("research.id", t.ResearchID),
		),
	)
	defer span.End()
	log := zerolog.Ctx(ctx)

	rep, err := s.Pipeline.Run(ctx, t.Request, em)

	// Cleanup must survive a client disconnect.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err != nil {
		span.RecordError(err)
		if rerr := s.Quota.Release(cctx, t.Grant); rerr != nil {
			log.Error().Err(rerr).Msg("could not release quota reservation")
		}
		if t.ResearchID != "" {
			if terr := repo.TransitionResearch(cctx, s.DB, t.ResearchID, domain.StatusFailed, nil, failureReason(err)); terr != nil {
				log.Warn().Err(terr).Str("research_id", t.ResearchID).Msg("could not mark research failed")
			}
		}
		return nil, err
	}

	res := &AnalysisResult{ResearchID: t.ResearchID, Report: rep}
	if t.ResearchID != "" {
		em.Progress(research.StageSaving, "Saving report", 95)
		if terr := repo.TransitionResearch(cctx, s.DB, t.ResearchID, domain.StatusCompleted, rep, ""); terr != nil {
			log.Error().Err(terr).Str("research_id", t.ResearchID).Msg("could not persist report")
		} else {
			res.Saved = true
		}
	}
	if u, uerr := s.Quota.Snapshot(cctx, t.Identity); uerr == nil {
		res.Usage = &u
	}
	return res, nil
}

// RunFast is Begin plus Execute for the synchronous fast endpoint. When a
// signed-in user repeats an Idempotency-Key, the stored report is replayed
// without reserving quota.
func (s *AnalysisService) RunFast(ctx context.Context, id identity.Identity, in AnalyzeInput, idemKey string) (*AnalysisResult, error) {
	in.Mode = domain.ModeFast
	if id.Authenticated() && idemKey != "" {
		if res, ok := s.replay(ctx, id, idemKey); ok {
			return res, nil
		}
	}

	t, err := s.Begin(ctx, id, in)
	if err != nil {
		return nil, err
	}
	res, err := s.Execute(ctx, t, nil)
	if err != nil {
		return nil, err
	}

	if res.Saved && idemKey != "" {
		_, ierr := repo.CreateIdempotency(ctx, s.DB, id.UserID, scopeAnalyzeFast, idemKey, res.ResearchID, 200, s.ttl())
		if ierr != nil && !errors.Is(ierr, repo.ErrDuplicate) {
			zerolog.Ctx(ctx).Warn().Err(ierr).Msg("could not store idempotency record")
		}
	}
	return res, nil
}

// IdempotencyExists reports whether a live replay record exists for key.
// It backs the idempotency middleware's rate-limit bypass.
func (s *AnalysisService) IdempotencyExists(ctx context.Context, userID, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, userID, scopeAnalyzeFast, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *AnalysisService) replay(ctx context.Context, id identity.Identity, key string) (*AnalysisResult, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, id.UserID, scopeAnalyzeFast, key, time.Now().UTC())
	if err != nil {
		return nil, false
	}
	r, err := repo.GetResearch(ctx, s.DB, rec.ResourceID, id.UserID)
	if err != nil || r.Status != domain.StatusCompleted || r.Result == nil {
		return nil, false
	}
	res := &AnalysisResult{ResearchID: r.ID, Saved: true, Report: r.Result, Replayed: true}
	if u, uerr := s.Quota.Snapshot(ctx, id); uerr == nil {
		res.Usage = &u
	}
	return res, true
}

func (s *AnalysisService) ttl() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return 24 * time.Hour
}

// failureReason is the user-safe error stored on a failed record.
func failureReason(err error) string {
	switch {
	case errors.Is(err, research.ErrNoResults):
		return "no results found for this idea"
	case errors.Is(err, research.ErrSynthesisFailed):
		return "could not synthesize a report"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, research.ErrUpstream), errors.Is(err, research.ErrLLMDisabled):
		return "an upstream service failed"
	default:
		return "analysis failed"
	}
}
