package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestResearchStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	_, _, err := ResearchStats(context.Background(), db, "u1")
	if err == nil {
		t.Fatalf("expected error due to missing research table")
	}
}

func TestResearchStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.Research{})
	count, maxAt, err := ResearchStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("ResearchStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestResearchStats_Success_FilterAndMax(t *testing.T) {
	db := newTestDB(t, &domain.Research{})

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max for u1
	t3 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)   // other user, newer

	for _, r := range []*domain.Research{
		{ID: "r1", UserID: "u1", Idea: "a", Mode: domain.ModeFast, Status: domain.StatusCompleted, CreatedAt: t1, UpdatedAt: t1},
		{ID: "r2", UserID: "u1", Idea: "b", Mode: domain.ModeDeep, Status: domain.StatusFailed, CreatedAt: t2, UpdatedAt: t2},
		{ID: "r3", UserID: "u2", Idea: "x", Mode: domain.ModeFast, Status: domain.StatusCompleted, CreatedAt: t3, UpdatedAt: t3},
	} {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed %s: %v", r.ID, err)
		}
	}

	count, maxAt, err := ResearchStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("ResearchStats error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected maxUpdatedAt %v, got %v", t2, maxAt)
	}
}

// Force the second query (SELECT updated_at ...) to fail by renaming the column.
func TestResearchStats_SelectLatest_ErrorPath(t *testing.T) {
	db := newTestDB(t, &domain.Research{})

	now := time.Now().UTC()
	if err := db.Create(&domain.Research{
		ID: "rx", UserID: "uerr", Idea: "x", Mode: domain.ModeFast, Status: domain.StatusPending,
		CreatedAt: now, UpdatedAt: now,
	}).Error; err != nil {
		t.Fatalf("seed research: %v", err)
	}

	if err := db.Exec(`ALTER TABLE research RENAME COLUMN updated_at TO updated_at_old`).Error; err != nil {
		t.Fatalf("rename column: %v", err)
	}

	_, _, err := ResearchStats(context.Background(), db, "uerr")
	if err == nil {
		t.Fatalf("expected error from latest-updated select after column rename")
	}
}
