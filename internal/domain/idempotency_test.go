// internal/domain/idempotency_test.go
package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestIdempotency_Migration_Indexes_AndInsert(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable(&Idempotency{}) {
		t.Fatalf("expected table %q to exist", Idempotency{}.TableName())
	}
	if !m.HasIndex(&Idempotency{}, "ux_user_scope_key") {
		t.Fatalf("expected composite index ux_user_scope_key to exist")
	}

	now := time.Now().UTC()
	rec := &Idempotency{
		ID:         "id-1",
		UserID:     "u1",
		Scope:      "analyze:fast",
		Key:        "k1",
		ResourceID: "r1",
		Status:     200,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.UserID != "u1" || got.Scope != "analyze:fast" || got.Key != "k1" || got.ResourceID != "r1" || got.Status != 200 {
		t.Fatalf("unexpected row: %+v", got)
	}

	// (user_id, scope, key) must be unique
	dup := *rec
	dup.ID = "id-2"
	dup.ResourceID = "r2"
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (user_id, scope, key)")
	}

	// Same key under another scope is fine
	other := *rec
	other.ID = "id-3"
	other.Scope = "analyze:deep"
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("different scope should insert: %v", err)
	}
}
