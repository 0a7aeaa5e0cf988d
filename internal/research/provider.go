package research

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

// Provider is one search backend. Search runs every query and returns the
// merged hits; a partial failure still returns what succeeded.
type Provider interface {
	Name() string
	Source() domain.SourceType
	Search(ctx context.Context, queries []string) ([]domain.SearchResult, error)
}

// fanOut runs every provider concurrently with its own timeout. A failing
// provider never cancels the others. Results keep provider order; each hit
// gets a Rank from (provider order, insertion order).
func fanOut(ctx context.Context, providers []Provider, queries map[domain.SourceType][]string, timeout time.Duration, mode domain.Mode) ([][]domain.SearchResult, map[string]domain.ProviderStatus) {
	results := make([][]domain.SearchResult, len(providers))
	statuses := make([]domain.ProviderStatus, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		qs := queries[p.Source()]
		if len(qs) == 0 {
			statuses[i] = domain.ProviderEmpty
			continue
		}
		g.Go(func() error {
			start := time.Now()
			pctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			hits, err := p.Search(pctx, qs)
			stageLatency.WithLabelValues(string(mode), "provider_"+p.Name()).Observe(time.Since(start).Seconds())

			switch {
			case err != nil && len(hits) == 0:
				statuses[i] = domain.ProviderFailed
				if errors.Is(err, context.DeadlineExceeded) || pctx.Err() == context.DeadlineExceeded {
					statuses[i] = domain.ProviderTimeout
				}
				zerolog.Ctx(ctx).Warn().Err(err).Str("provider", p.Name()).Msg("provider search failed")
			case len(hits) == 0:
				statuses[i] = domain.ProviderEmpty
			default:
				statuses[i] = domain.ProviderOK
				if err != nil {
					zerolog.Ctx(ctx).Debug().Err(err).Str("provider", p.Name()).Msg("provider partially failed")
				}
			}
			providerCalls.WithLabelValues(p.Name(), string(statuses[i])).Inc()
			results[i] = hits
			return nil
		})
	}
	_ = g.Wait()

	rank := 0
	out := make(map[string]domain.ProviderStatus, len(providers))
	for i, p := range providers {
		out[p.Name()] = statuses[i]
		for j := range results[i] {
			results[i][j].Rank = rank
			if results[i][j].Provider == "" {
				results[i][j].Provider = p.Name()
			}
			rank++
		}
	}
	return results, out
}

// searchEach runs fn for every query and merges the hits. It fails only when
// every query failed.
func searchEach(ctx context.Context, queries []string, fn func(ctx context.Context, q string) ([]domain.SearchResult, error)) ([]domain.SearchResult, error) {
	var (
		out     []domain.SearchResult
		lastErr error
		okCount int
	)
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			if okCount == 0 {
				return out, err
			}
			return out, nil
		}
		hits, err := fn(ctx, q)
		if err != nil {
			lastErr = err
			continue
		}
		okCount++
		out = append(out, hits...)
	}
	if okCount == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}
