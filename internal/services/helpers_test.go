package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/repo"
	"github.com/tbourn/shiporskip-backend/internal/research"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if sqlDB, err := db.DB(); err == nil {
		// One connection serializes writers so shared-cache never reports a lock.
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if len(migrate) == 0 {
		if err := repo.AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	} else if err := db.AutoMigrate(migrate...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func sampleReport() *domain.AnalysisReport {
	return &domain.AnalysisReport{
		Verdict:          "Ship it, but niche down to remote agencies.",
		MarketSaturation: domain.ThreatMedium,
		Competitors: []domain.CompetitorProfile{
			{Name: "Geekbot", URL: "https://geekbot.com", Description: "Async standups inside Slack.", ThreatLevel: domain.ThreatHigh},
			{Name: "Standuply", URL: "https://standuply.com", Description: "Standup and survey bot with reports.", ThreatLevel: domain.ThreatMedium},
		},
		Gaps:      []string{"No tool summarizes standups into weekly client updates."},
		Pros:      []string{"Clear pain for agencies billing by the hour."},
		Cons:      []string{"Slack marketplace pricing pressure is strong."},
		BuildPlan: []string{"Ship a Slack bot", "Add weekly digest emails"},
	}
}

func seedResearch(t *testing.T, db *gorm.DB, userID string, status domain.Status, rep *domain.AnalysisReport) *domain.Research {
	t.Helper()
	r, err := repo.CreateResearch(context.Background(), db, userID, "standup bot for agencies", "", domain.ModeFast, domain.StatusProcessing)
	if err != nil {
		t.Fatalf("create research: %v", err)
	}
	if status != domain.StatusProcessing {
		if err := repo.TransitionResearch(context.Background(), db, r.ID, status, rep, ""); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	r.Status = status
	r.Result = rep
	return r
}

// fakeRunner returns a fixed report or error and records requests.
type fakeRunner struct {
	mu    sync.Mutex
	rep   *domain.AnalysisReport
	err   error
	calls []research.Request
	// block, when set, holds Run until ctx ends.
	block bool
}

func (f *fakeRunner) Run(ctx context.Context, req research.Request, em *research.Emitter) (*domain.AnalysisReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	em.Progress(research.StageStarted, "Starting", 5)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.rep, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeLLM answers with reply and records the last prompt.
type fakeLLM struct {
	reply string
	err   error
	last  []research.Message
}

func (f *fakeLLM) Complete(_ context.Context, msgs []research.Message, _ bool) (string, error) {
	f.last = msgs
	return f.reply, f.err
}
