package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/identity"
	"github.com/tbourn/shiporskip-backend/internal/repo"
)

// repoShim adapts the repo free functions for tests.
type repoShim struct{}

func (repoShim) GetResearch(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Research, error) {
	return repo.GetResearch(ctx, db, id, userID)
}
func (repoShim) CountResearch(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountResearch(ctx, db, userID)
}
func (repoShim) ListResearchPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Research, error) {
	return repo.ListResearchPage(ctx, db, userID, offset, limit)
}
func (repoShim) DeleteResearch(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteResearch(ctx, db, id, userID)
}
func (repoShim) UpdateResearchNotes(ctx context.Context, db *gorm.DB, id, userID, notes string) error {
	return repo.UpdateResearchNotes(ctx, db, id, userID, notes)
}
func (repoShim) ResearchStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	return repo.ResearchStats(ctx, db, userID)
}

// ----- fake repo -----

type fakeResearchRepo struct {
	repoShim
	countErr   error
	pageOffset int
	pageLimit  int
}

func (f *fakeResearchRepo) CountResearch(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return repo.CountResearch(ctx, db, userID)
}

func (f *fakeResearchRepo) ListResearchPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Research, error) {
	f.pageOffset, f.pageLimit = offset, limit
	return repo.ListResearchPage(ctx, db, userID, offset, limit)
}

func TestResearchService_RequiresAuth(t *testing.T) {
	s := NewResearchService(newSvcDB(t), repoShim{})
	ctx := context.Background()
	anon := identity.Anonymous("salt", "192.0.2.20")

	if _, _, err := s.ListPage(ctx, anon, 1, 10); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("ListPage: %v", err)
	}
	if _, err := s.Get(ctx, anon, "x"); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("Get: %v", err)
	}
	if err := s.Delete(ctx, anon, "x"); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.UpdateNotes(ctx, anon, "x", "n"); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("UpdateNotes: %v", err)
	}
	if _, _, err := s.Stats(ctx, anon); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("Stats: %v", err)
	}
}

func TestResearchService_ListPage_DefaultsAndOwnership(t *testing.T) {
	db := newSvcDB(t)
	fr := &fakeResearchRepo{}
	s := NewResearchService(db, fr)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedResearch(t, db, "u1", domain.StatusCompleted, sampleReport())
	}
	seedResearch(t, db, "u2", domain.StatusCompleted, sampleReport())

	items, total, err := s.ListPage(ctx, identity.User("u1", ""), 0, 0)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("total=%d len=%d; want 3/3", total, len(items))
	}
	if fr.pageOffset != 0 || fr.pageLimit != 20 {
		t.Fatalf("defaults not applied: offset=%d limit=%d", fr.pageOffset, fr.pageLimit)
	}
	for _, it := range items {
		if it.UserID != "u1" {
			t.Fatalf("foreign record leaked: %+v", it)
		}
		if it.Result != nil {
			t.Fatalf("listing should omit the report body")
		}
	}

	if _, _, err := s.ListPage(ctx, identity.User("u1", ""), 2, 2); err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if fr.pageOffset != 2 || fr.pageLimit != 2 {
		t.Fatalf("page 2 offset=%d limit=%d", fr.pageOffset, fr.pageLimit)
	}

	empty, total, err := s.ListPage(ctx, identity.User("nobody", ""), 1, 10)
	if err != nil || total != 0 || empty == nil || len(empty) != 0 {
		t.Fatalf("empty listing = %v, %d, %v", empty, total, err)
	}
}

func TestResearchService_ListPage_CountError(t *testing.T) {
	boom := errors.New("boom")
	s := NewResearchService(newSvcDB(t), &fakeResearchRepo{countErr: boom})
	if _, _, err := s.ListPage(context.Background(), identity.User("u1", ""), 1, 10); !errors.Is(err, boom) {
		t.Fatalf("expected count error, got %v", err)
	}
}

func TestResearchService_GetDeleteNotes(t *testing.T) {
	db := newSvcDB(t)
	s := NewResearchService(db, repoShim{})
	ctx := context.Background()
	owner, other := identity.User("u1", ""), identity.User("u2", "")
	r := seedResearch(t, db, "u1", domain.StatusCompleted, sampleReport())

	got, err := s.Get(ctx, owner, r.ID)
	if err != nil || got.Result == nil {
		t.Fatalf("Get: %+v, %v", got, err)
	}
	if _, err := s.Get(ctx, other, r.ID); !errors.Is(err, ErrResearchNotFound) {
		t.Fatalf("other user Get: %v", err)
	}

	if err := s.UpdateNotes(ctx, owner, r.ID, "  call three agencies  "); err != nil {
		t.Fatalf("UpdateNotes: %v", err)
	}
	got, _ = s.Get(ctx, owner, r.ID)
	if got.Notes != "call three agencies" {
		t.Fatalf("notes = %q", got.Notes)
	}
	if err := s.UpdateNotes(ctx, other, r.ID, "hijack"); !errors.Is(err, ErrResearchNotFound) {
		t.Fatalf("other user notes: %v", err)
	}
	s.NotesMaxRunes = 5
	if err := s.UpdateNotes(ctx, owner, r.ID, strings.Repeat("é", 6)); !errors.Is(err, ErrNotesTooLong) {
		t.Fatalf("expected ErrNotesTooLong, got %v", err)
	}

	n, newest, err := s.Stats(ctx, owner)
	if err != nil || n != 1 || newest == nil {
		t.Fatalf("Stats = %d, %v, %v", n, newest, err)
	}

	if err := s.Delete(ctx, other, r.ID); !errors.Is(err, ErrResearchNotFound) {
		t.Fatalf("other user Delete: %v", err)
	}
	if err := s.Delete(ctx, owner, r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, owner, r.ID); !errors.Is(err, ErrResearchNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if err := s.Delete(ctx, owner, r.ID); !errors.Is(err, ErrResearchNotFound) {
		t.Fatalf("second Delete: %v", err)
	}
}
