package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

func newFileDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedResearch(t *testing.T, db *gorm.DB, id, userID string) {
	t.Helper()
	r := &domain.Research{ID: id, UserID: userID, Idea: "idea " + id, Mode: domain.ModeFast, Status: domain.StatusCompleted, CreatedAt: time.Now().UTC()}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("seed research %s: %v", id, err)
	}
}

func TestCreateChatMessage_Error_NoTable(t *testing.T) {
	db := newFileDB(t /* no migrations */)
	m, err := CreateChatMessage(context.Background(), db, "r1", "u1", "user", "hi")
	if err == nil || m != nil {
		t.Fatalf("expected error creating without table, got m=%v err=%v", m, err)
	}
}

func TestCreateChatMessage_PersistsFields(t *testing.T) {
	db := newFileDB(t, &domain.Research{}, &domain.ChatMessage{})
	seedResearch(t, db, "r1", "u1")

	start := time.Now().UTC().Add(-time.Minute)
	m, err := CreateChatMessage(context.Background(), db, "r1", "u1", "user", "Who is the biggest threat?")
	if err != nil {
		t.Fatalf("CreateChatMessage: %v", err)
	}
	if m.ID == "" || m.ResearchID != "r1" || m.Role != "user" || m.CreatedAt.Before(start) {
		t.Fatalf("unexpected message: %+v", m)
	}

	var got domain.ChatMessage
	if err := db.First(&got, "id = ?", m.ID).Error; err != nil {
		t.Fatalf("load message: %v", err)
	}
	if got.Content != "Who is the biggest threat?" || got.UserID != "u1" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestCreateChatMessage_RejectsUnknownParent(t *testing.T) {
	db := newFileDB(t, &domain.Research{}, &domain.ChatMessage{})
	if _, err := CreateChatMessage(context.Background(), db, "missing", "u1", "user", "hi"); err == nil {
		t.Fatalf("expected foreign key violation for unknown research")
	}
}

func TestListRecentChatMessages_WindowAndOrder(t *testing.T) {
	db := newFileDB(t, &domain.Research{}, &domain.ChatMessage{})
	seedResearch(t, db, "r1", "u1")
	seedResearch(t, db, "r2", "u1")

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		m := &domain.ChatMessage{ID: fmt.Sprintf("m%d", i), ResearchID: "r1", UserID: "u1", Role: role, Content: fmt.Sprint(i), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.Omit("Research").Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := db.Omit("Research").Create(&domain.ChatMessage{ID: "other", ResearchID: "r2", UserID: "u1", Role: "user", Content: "x", CreatedAt: base}).Error; err != nil {
		t.Fatalf("seed other: %v", err)
	}

	got, err := ListRecentChatMessages(context.Background(), db, "r1", 3)
	if err != nil {
		t.Fatalf("ListRecentChatMessages: %v", err)
	}
	if len(got) != 3 || got[0].ID != "m2" || got[1].ID != "m3" || got[2].ID != "m4" {
		t.Fatalf("expected m2,m3,m4 oldest first; got %+v", got)
	}

	all, err := ListChatMessages(context.Background(), db, "r1")
	if err != nil || len(all) != 5 || all[0].ID != "m0" {
		t.Fatalf("ListChatMessages = %d msgs, err=%v", len(all), err)
	}

	n, err := CountUserChatMessages(context.Background(), db, "r1")
	if err != nil || n != 3 {
		t.Fatalf("CountUserChatMessages = %d, %v; want 3", n, err)
	}
}
