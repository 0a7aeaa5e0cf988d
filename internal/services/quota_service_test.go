package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tbourn/shiporskip-backend/internal/config"
	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/identity"
)

func newQuota(t *testing.T) *QuotaService {
	t.Helper()
	return NewQuotaService(newSvcDB(t), config.QuotaConfig{AnonFast: 3, AnonDeep: 1, UserFast: 20, UserDeep: 4})
}

func TestQuota_ReserveUntilDenied(t *testing.T) {
	q := newQuota(t)
	ctx := context.Background()
	anon := identity.Anonymous("salt", "203.0.113.7")

	for i := 0; i < 3; i++ {
		if _, err := q.Reserve(ctx, anon, domain.ModeFast); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	_, err := q.Reserve(ctx, anon, domain.ModeFast)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	qe, ok := IsQuotaError(err)
	if !ok {
		t.Fatalf("expected *QuotaError, got %T", err)
	}
	want := ModeUsage{Used: 3, Limit: 3, Remaining: 0}
	if diff := cmp.Diff(want, qe.Usage.Fast); diff != "" {
		t.Fatalf("fast usage mismatch (-want +got):\n%s", diff)
	}
	if qe.Usage.Tier != identity.KindAnonymous {
		t.Fatalf("tier = %q", qe.Usage.Tier)
	}

	// Deep is counted separately.
	if _, err := q.Reserve(ctx, anon, domain.ModeDeep); err != nil {
		t.Fatalf("deep reserve: %v", err)
	}
}

func TestQuota_UserLimitsAndInvalidMode(t *testing.T) {
	q := newQuota(t)
	ctx := context.Background()
	u := identity.User("u1", "a@example.com")

	for i := 0; i < 4; i++ {
		if _, err := q.Reserve(ctx, u, domain.ModeDeep); err != nil {
			t.Fatalf("deep %d: %v", i, err)
		}
	}
	if _, err := q.Reserve(ctx, u, domain.ModeDeep); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("5th deep should be denied, got %v", err)
	}
	if _, err := q.Reserve(ctx, u, domain.Mode("slow")); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestQuota_ConcurrentReservationsNeverOverdraw(t *testing.T) {
	q := newQuota(t)
	ctx := context.Background()
	anon := identity.Anonymous("salt", "198.51.100.1")

	var admitted, denied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Reserve(ctx, anon, domain.ModeFast)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, ErrQuotaExceeded):
				denied.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 3 || denied.Load() != 9 {
		t.Fatalf("admitted=%d denied=%d; want 3/9", admitted.Load(), denied.Load())
	}
}

func TestQuota_ReleaseReturnsUnit(t *testing.T) {
	q := newQuota(t)
	ctx := context.Background()
	anon := identity.Anonymous("salt", "192.0.2.1")

	g, err := q.Reserve(ctx, anon, domain.ModeDeep)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := q.Reserve(ctx, anon, domain.ModeDeep); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("second deep should be denied, got %v", err)
	}
	if err := q.Release(ctx, g); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := q.Reserve(ctx, anon, domain.ModeDeep); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}

	if err := q.Release(ctx, nil); err != nil {
		t.Fatalf("nil release should be a no-op: %v", err)
	}
}

func TestQuota_DayRollover(t *testing.T) {
	q := newQuota(t)
	ctx := context.Background()
	anon := identity.Anonymous("salt", "192.0.2.2")

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	q.Now = func() time.Time { return day1 }
	for i := 0; i < 3; i++ {
		if _, err := q.Reserve(ctx, anon, domain.ModeFast); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}
	if _, err := q.Reserve(ctx, anon, domain.ModeFast); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected denial on day 1, got %v", err)
	}

	q.Now = func() time.Time { return day1.Add(2 * time.Minute) }
	if _, err := q.Reserve(ctx, anon, domain.ModeFast); err != nil {
		t.Fatalf("new day should reset usage: %v", err)
	}
	u, err := q.Snapshot(ctx, anon)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if u.Fast.Used != 1 || u.Fast.Remaining != 2 {
		t.Fatalf("unexpected usage after rollover: %+v", u.Fast)
	}
	if want := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC); !u.ResetsAt.Equal(want) {
		t.Fatalf("resets_at = %v; want %v", u.ResetsAt, want)
	}
}

func TestQuota_LedgerFailure(t *testing.T) {
	ctx := context.Background()
	anon := identity.Anonymous("salt", "192.0.2.3")

	// No usage_counters table: every ledger call fails.
	closed := &QuotaService{DB: newSvcDB(t, &domain.Research{}), Anon: Limits{Fast: 3, Deep: 1}}
	if _, err := closed.Reserve(ctx, anon, domain.ModeFast); !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("fail-closed should return ErrLedgerUnavailable, got %v", err)
	}
	if _, err := closed.Snapshot(ctx, anon); !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("fail-closed snapshot should error, got %v", err)
	}

	open := &QuotaService{DB: newSvcDB(t, &domain.Research{}), Anon: Limits{Fast: 3, Deep: 1}, FailOpen: true}
	g, err := open.Reserve(ctx, anon, domain.ModeFast)
	if err != nil {
		t.Fatalf("fail-open should admit, got %v", err)
	}
	if !g.Degraded {
		t.Fatalf("fail-open grant should be degraded")
	}
	if err := open.Release(ctx, g); err != nil {
		t.Fatalf("degraded release should be a no-op: %v", err)
	}
	u, err := open.Snapshot(ctx, anon)
	if err != nil || !u.Degraded {
		t.Fatalf("fail-open snapshot should be degraded, got %+v, %v", u, err)
	}
}

func TestResetsAt(t *testing.T) {
	in := time.Date(2026, 12, 31, 10, 0, 0, 0, time.FixedZone("X", 5*3600))
	want := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ResetsAt(in); !got.Equal(want) {
		t.Fatalf("ResetsAt = %v; want %v", got, want)
	}
}
