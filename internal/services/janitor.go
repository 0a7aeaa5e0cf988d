// Package services – Janitor
//
// Janitor fails research records stuck in processing (for example after a
// crash mid-run) and purges expired idempotency records. It runs in-process
// on a ticker; a zero Interval disables the loop.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/shiporskip-backend/internal/repo"
)

// Janitor periodically sweeps stale state.
type Janitor struct {
	DB         *gorm.DB
	StaleAfter time.Duration
	Interval   time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

func (j *Janitor) now() time.Time {
	if j.Now != nil {
		return j.Now().UTC()
	}
	return time.Now().UTC()
}

// Sweep runs one pass and returns how many research records were failed.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	now := j.now()
	n, err := repo.SweepStaleResearch(ctx, j.DB, now.Add(-j.StaleAfter))
	if err != nil {
		return 0, err
	}
	janitorSwept.Add(float64(n))
	if _, err := repo.PurgeExpiredIdempotency(ctx, j.DB, now); err != nil {
		return n, err
	}
	return n, nil
}

// Run sweeps every Interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if j.Interval <= 0 {
		return
	}
	log := zerolog.Ctx(ctx)
	t := time.NewTicker(j.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := j.Sweep(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("janitor sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("swept", n).Msg("failed stale research runs")
			}
		}
	}
}
