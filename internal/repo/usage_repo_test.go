package repo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

func TestTryConsumeUsage_StopsAtLimit(t *testing.T) {
	db := newTestDB(t, &domain.UsageCounter{})
	ctx := context.Background()
	id, day := "anon:abc", "2025-06-01"

	for i := 0; i < 3; i++ {
		if err := EnsureUsage(ctx, db, id, day); err != nil {
			t.Fatalf("EnsureUsage: %v", err)
		}
		ok, err := TryConsumeUsage(ctx, db, id, day, domain.ModeFast, 2)
		if err != nil {
			t.Fatalf("TryConsumeUsage: %v", err)
		}
		if want := i < 2; ok != want {
			t.Fatalf("attempt %d admitted=%v; want %v", i, ok, want)
		}
	}

	u, err := GetUsage(ctx, db, id, day)
	if err != nil || u.FastUsed != 2 || u.DeepUsed != 0 {
		t.Fatalf("GetUsage = %+v, %v", u, err)
	}
}

func TestResetUsageIfStale_RollsOverDay(t *testing.T) {
	db := newTestDB(t, &domain.UsageCounter{})
	ctx := context.Background()
	id := "user:u1"

	_ = EnsureUsage(ctx, db, id, "2025-06-01")
	if ok, _ := TryConsumeUsage(ctx, db, id, "2025-06-01", domain.ModeDeep, 1); !ok {
		t.Fatalf("first deep run should be admitted")
	}
	if ok, _ := TryConsumeUsage(ctx, db, id, "2025-06-01", domain.ModeDeep, 1); ok {
		t.Fatalf("second deep run should be denied")
	}

	// Yesterday's usage reads as zero today.
	if u, _ := GetUsage(ctx, db, id, "2025-06-02"); u.DeepUsed != 0 {
		t.Fatalf("stale day should read as zero, got %+v", u)
	}

	_ = EnsureUsage(ctx, db, id, "2025-06-02")
	if err := ResetUsageIfStale(ctx, db, id, "2025-06-02"); err != nil {
		t.Fatalf("ResetUsageIfStale: %v", err)
	}
	if ok, _ := TryConsumeUsage(ctx, db, id, "2025-06-02", domain.ModeDeep, 1); !ok {
		t.Fatalf("deep run should be admitted after day rollover")
	}
}

func TestResetUsageIfStale_NeverMovesDayBackward(t *testing.T) {
	db := newTestDB(t, &domain.UsageCounter{})
	ctx := context.Background()
	id := "anon:abc"

	_ = EnsureUsage(ctx, db, id, "2025-06-02")
	if ok, _ := TryConsumeUsage(ctx, db, id, "2025-06-02", domain.ModeFast, 3); !ok {
		t.Fatalf("fast run should be admitted")
	}

	// A request that computed its day just before midnight arrives late.
	if err := ResetUsageIfStale(ctx, db, id, "2025-06-01"); err != nil {
		t.Fatalf("ResetUsageIfStale: %v", err)
	}
	u, err := GetUsage(ctx, db, id, "2025-06-02")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if u.Day != "2025-06-02" || u.FastUsed != 1 {
		t.Fatalf("late reset rewound the counter: %+v", u)
	}
}

func TestReleaseUsage_FloorsAtZero(t *testing.T) {
	db := newTestDB(t, &domain.UsageCounter{})
	ctx := context.Background()
	id, day := "user:u2", "2025-06-01"

	_ = EnsureUsage(ctx, db, id, day)
	_, _ = TryConsumeUsage(ctx, db, id, day, domain.ModeFast, 5)
	for i := 0; i < 3; i++ {
		if err := ReleaseUsage(ctx, db, id, day, domain.ModeFast); err != nil {
			t.Fatalf("ReleaseUsage: %v", err)
		}
	}
	u, _ := GetUsage(ctx, db, id, day)
	if u.FastUsed != 0 {
		t.Fatalf("counter went below zero or did not release: %+v", u)
	}
}

func TestUsage_UnknownMode(t *testing.T) {
	db := newTestDB(t, &domain.UsageCounter{})
	if _, err := TryConsumeUsage(context.Background(), db, "x", "d", domain.Mode("slow"), 1); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
	if err := ReleaseUsage(context.Background(), db, "x", "d", domain.Mode("slow")); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestTryConsumeUsage_ConcurrentAdmissionsNeverExceedLimit(t *testing.T) {
	db := newFileDB(t, &domain.UsageCounter{})
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	ctx := context.Background()
	id, day := "anon:race", "2025-06-01"
	const limit = 3

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := EnsureUsage(ctx, db, id, day); err != nil {
				t.Errorf("EnsureUsage: %v", err)
				return
			}
			ok, err := TryConsumeUsage(ctx, db, id, day, domain.ModeFast, limit)
			if err != nil {
				t.Errorf("TryConsumeUsage: %v", err)
				return
			}
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != limit {
		t.Fatalf("admitted %d runs; want exactly %d", got, limit)
	}
}
