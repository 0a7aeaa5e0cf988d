// Package services – QuotaService
//
// QuotaService is the usage ledger: per-identity daily allowances for fast
// and deep analyses. Reservations are atomic conditional updates in the
// database, so concurrent requests can never overdraw an identity. A
// reservation is kept when the run completes and released otherwise.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/shiporskip-backend/internal/config"
	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/identity"
	"github.com/tbourn/shiporskip-backend/internal/repo"
)

// Limits is the daily allowance of one identity class.
type Limits struct {
	Fast int
	Deep int
}

func (l Limits) forMode(m domain.Mode) int {
	if m == domain.ModeDeep {
		return l.Deep
	}
	return l.Fast
}

// ModeUsage is the state of one mode's allowance.
type ModeUsage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// Usage is a read-only snapshot of an identity's allowances.
type Usage struct {
	Tier     identity.Kind `json:"tier"`
	Fast     ModeUsage     `json:"fast"`
	Deep     ModeUsage     `json:"deep"`
	ResetsAt time.Time     `json:"resets_at"`
	Degraded bool          `json:"degraded,omitempty"`
}

// QuotaError carries the usage snapshot of a denied reservation.
type QuotaError struct {
	Mode  domain.Mode
	Usage Usage
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded; resets at %s", e.Mode, e.Usage.ResetsAt.Format(time.RFC3339))
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// Grant is an admitted reservation. A degraded grant was admitted without
// touching the ledger (fail-open) and has nothing to release.
type Grant struct {
	Identity identity.Identity
	Mode     domain.Mode
	Day      string
	Degraded bool
}

// QuotaService reserves, releases and reports daily usage.
type QuotaService struct {
	DB       *gorm.DB
	Anon     Limits
	User     Limits
	FailOpen bool

	// Now is overridable in tests.
	Now func() time.Time
}

// NewQuotaService builds a QuotaService from cfg.
func NewQuotaService(db *gorm.DB, cfg config.QuotaConfig) *QuotaService {
	return &QuotaService{
		DB:       db,
		Anon:     Limits{Fast: cfg.AnonFast, Deep: cfg.AnonDeep},
		User:     Limits{Fast: cfg.UserFast, Deep: cfg.UserDeep},
		FailOpen: cfg.FailOpen,
	}
}

func (s *QuotaService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *QuotaService) limits(id identity.Identity) Limits {
	if id.Authenticated() {
		return s.User
	}
	return s.Anon
}

// ResetsAt returns the next UTC midnight after t.
func ResetsAt(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// Reserve takes one unit of mode for id. A denial returns a *QuotaError;
// a ledger failure returns ErrLedgerUnavailable unless FailOpen is set, in
// which case a degraded grant is returned.
func (s *QuotaService) Reserve(ctx context.Context, id identity.Identity, mode domain.Mode) (*Grant, error) {
	ctx, span := otel.Tracer("services/QuotaService").Start(ctx, "Reserve",
		trace.WithAttributes(
			attribute.String("identity.kind", string(id.Kind)),
			attribute.String("mode", string(mode)),
		),
	)
	defer span.End()

	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	now := s.now()
	day := now.Format(time.DateOnly)
	limit := s.limits(id).forMode(mode)

	admitted, err := s.consume(ctx, id.Key, day, mode, limit)
	if err != nil {
		if s.FailOpen {
			zerolog.Ctx(ctx).Warn().Err(err).Str("mode", string(mode)).Msg("usage ledger unavailable; admitting without accounting")
			quotaDecisions.WithLabelValues(string(id.Kind), string(mode), "degraded").Inc()
			return &Grant{Identity: id, Mode: mode, Day: day, Degraded: true}, nil
		}
		quotaDecisions.WithLabelValues(string(id.Kind), string(mode), "unavailable").Inc()
		return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	if !admitted {
		quotaDecisions.WithLabelValues(string(id.Kind), string(mode), "denied").Inc()
		usage, uerr := s.Snapshot(ctx, id)
		if uerr != nil {
			usage = s.emptyUsage(id, now)
		}
		return nil, &QuotaError{Mode: mode, Usage: usage}
	}
	quotaDecisions.WithLabelValues(string(id.Kind), string(mode), "admitted").Inc()
	return &Grant{Identity: id, Mode: mode, Day: day}, nil
}

func (s *QuotaService) consume(ctx context.Context, key, day string, mode domain.Mode, limit int) (bool, error) {
	if err := repo.EnsureUsage(ctx, s.DB, key, day); err != nil {
		return false, err
	}
	if err := repo.ResetUsageIfStale(ctx, s.DB, key, day); err != nil {
		return false, err
	}
	return repo.TryConsumeUsage(ctx, s.DB, key, day, mode, limit)
}

// Release returns a grant's unit. Degraded and nil grants are no-ops.
func (s *QuotaService) Release(ctx context.Context, g *Grant) error {
	if g == nil || g.Degraded {
		return nil
	}
	if err := repo.ReleaseUsage(ctx, s.DB, g.Identity.Key, g.Day, g.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	quotaReleases.WithLabelValues(string(g.Mode)).Inc()
	return nil
}

// Snapshot reports id's usage without changing it. A ledger failure is
// reported as ErrLedgerUnavailable; with FailOpen the snapshot is returned
// as degraded instead.
func (s *QuotaService) Snapshot(ctx context.Context, id identity.Identity) (Usage, error) {
	now := s.now()
	row, err := repo.GetUsage(ctx, s.DB, id.Key, now.Format(time.DateOnly))
	if err != nil {
		if s.FailOpen {
			u := s.emptyUsage(id, now)
			u.Degraded = true
			return u, nil
		}
		return Usage{}, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	lim := s.limits(id)
	return Usage{
		Tier:     id.Kind,
		Fast:     modeUsage(row.FastUsed, lim.Fast),
		Deep:     modeUsage(row.DeepUsed, lim.Deep),
		ResetsAt: ResetsAt(now),
	}, nil
}

func (s *QuotaService) emptyUsage(id identity.Identity, now time.Time) Usage {
	lim := s.limits(id)
	return Usage{
		Tier:     id.Kind,
		Fast:     modeUsage(0, lim.Fast),
		Deep:     modeUsage(0, lim.Deep),
		ResetsAt: ResetsAt(now),
	}
}

func modeUsage(used, limit int) ModeUsage {
	return ModeUsage{Used: used, Limit: limit, Remaining: max(limit-used, 0)}
}

// IsQuotaError reports whether err is a denial and returns its snapshot.
func IsQuotaError(err error) (*QuotaError, bool) {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
