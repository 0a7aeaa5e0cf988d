// Package services – ResearchService
//
// This file implements ResearchService, which manages a signed-in user's
// research history: paginated listing, retrieval of one record with its
// report, deletion, and the free-text notes attached to a record. Every
// operation is scoped to the owner; records belonging to someone else are
// reported as ErrResearchNotFound. Anonymous callers get ErrAuthRequired.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/shiporskip-backend/internal/domain"
	"github.com/tbourn/shiporskip-backend/internal/identity"
	"github.com/tbourn/shiporskip-backend/internal/utils"
)

// ResearchRepo defines the repository contract required by ResearchService.
type ResearchRepo interface {
	// GetResearch fetches a record by ID ensuring it belongs to the user.
	GetResearch(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Research, error)

	// CountResearch returns the total number of records for pagination.
	CountResearch(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListResearchPage returns a page of records belonging to the user.
	ListResearchPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Research, error)

	// DeleteResearch removes a record (only if it belongs to the user).
	DeleteResearch(ctx context.Context, db *gorm.DB, id, userID string) error

	// UpdateResearchNotes replaces a record's notes.
	UpdateResearchNotes(ctx context.Context, db *gorm.DB, id, userID, notes string) error

	// ResearchStats returns the row count and newest update for ETags.
	ResearchStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error)
}

// ResearchService provides history operations over research records.
type ResearchService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the research repository used by this service.
	Repo ResearchRepo

	// NotesMaxRunes caps stored notes by rune length.
	NotesMaxRunes int
}

// NewResearchService constructs a ResearchService with the default notes cap.
func NewResearchService(db *gorm.DB, r ResearchRepo) *ResearchService {
	return &ResearchService{DB: db, Repo: r, NotesMaxRunes: 10000}
}

// ListPage returns a page of the caller's records, newest first, and the
// total count. It applies defaults for invalid page/pageSize.
func (s *ResearchService) ListPage(ctx context.Context, id identity.Identity, page, pageSize int) ([]domain.Research, int64, error) {
	ctx, span := otel.Tracer("services/ResearchService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if !id.Authenticated() {
		return nil, 0, ErrAuthRequired
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := utils.Offset(page, pageSize)

	total, err := s.Repo.CountResearch(ctx, s.DB, id.UserID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Research{}, 0, nil
	}

	items, err := s.Repo.ListResearchPage(ctx, s.DB, id.UserID, offset, pageSize)
	return items, total, err
}

// Get returns one of the caller's records including its report.
func (s *ResearchService) Get(ctx context.Context, id identity.Identity, researchID string) (*domain.Research, error) {
	ctx, span := otel.Tracer("services/ResearchService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("research.id", researchID)),
	)
	defer span.End()

	if !id.Authenticated() {
		return nil, ErrAuthRequired
	}
	r, err := s.Repo.GetResearch(ctx, s.DB, researchID, id.UserID)
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// Delete removes one of the caller's records.
func (s *ResearchService) Delete(ctx context.Context, id identity.Identity, researchID string) error {
	ctx, span := otel.Tracer("services/ResearchService").Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("research.id", researchID)),
	)
	defer span.End()

	if !id.Authenticated() {
		return ErrAuthRequired
	}
	return notFound(s.Repo.DeleteResearch(ctx, s.DB, researchID, id.UserID))
}

// UpdateNotes replaces the notes of one of the caller's records. Notes are
// trimmed; an empty value clears them.
func (s *ResearchService) UpdateNotes(ctx context.Context, id identity.Identity, researchID, notes string) error {
	if !id.Authenticated() {
		return ErrAuthRequired
	}
	notes = strings.TrimSpace(notes)
	if s.NotesMaxRunes > 0 && utf8.RuneCountInString(notes) > s.NotesMaxRunes {
		return ErrNotesTooLong
	}
	return notFound(s.Repo.UpdateResearchNotes(ctx, s.DB, researchID, id.UserID, notes))
}

// Stats returns the caller's record count and newest update time, used to
// build weak ETags for the history listing.
func (s *ResearchService) Stats(ctx context.Context, id identity.Identity) (int64, *time.Time, error) {
	if !id.Authenticated() {
		return 0, nil, ErrAuthRequired
	}
	return s.Repo.ResearchStats(ctx, s.DB, id.UserID)
}

// notFound maps a missing row to ErrResearchNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrResearchNotFound
	}
	return err
}
