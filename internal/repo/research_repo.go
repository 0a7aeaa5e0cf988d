// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Research
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found (or not owned by the caller), functions
//     return gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - A status change that would break the monotonic lifecycle returns
//     ErrInvalidTransition; the row is left untouched.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrInvalidTransition is returned when a status update would move a record
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid research status transition")

// CreateResearch inserts a new Research row with a random UUID and UTC
// timestamp. userID may be empty for anonymous runs.
func CreateResearch(ctx context.Context, db *gorm.DB, userID, idea, category string, mode domain.Mode, status domain.Status) (*domain.Research, error) {
	r := &domain.Research{
		ID:        uuid.NewString(),
		UserID:    userID,
		Idea:      idea,
		Category:  category,
		Mode:      mode,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetResearch fetches a record by ID and owner. Records owned by another
// identity are reported as ErrNotFound.
func GetResearch(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Research, error) {
	var r domain.Research
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountResearch returns the number of records owned by userID.
func CountResearch(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Research{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListResearchPage returns a page of userID's records, newest first. The
// heavy Result column is omitted; callers fetch it through GetResearch.
func ListResearchPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Research, error) {
	var out []domain.Research
	err := db.WithContext(ctx).
		Select("id", "user_id", "idea", "category", "mode", "status", "error", "created_at", "updated_at").
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteResearch soft-deletes a record owned by userID.
func DeleteResearch(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Research{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionResearch moves a record to next, storing result and errMsg when
// given. The update is conditional on the current status being one from
// which next is reachable, so concurrent writers cannot regress a record.
func TransitionResearch(ctx context.Context, db *gorm.DB, id string, next domain.Status, result *domain.AnalysisReport, errMsg string) error {
	from := allowedFrom(next)
	if len(from) == 0 {
		return ErrInvalidTransition
	}
	// Updates through the struct so Result goes through its JSON serializer.
	rec := domain.Research{Status: next, Result: result, UpdatedAt: time.Now().UTC()}
	cols := []string{"status", "updated_at"}
	if result != nil {
		cols = append(cols, "result")
	}
	if errMsg != "" {
		rec.Error = clipBytes(errMsg, 255)
		cols = append(cols, "error")
	}

	res := db.WithContext(ctx).
		Model(&domain.Research{}).
		Where("id = ? AND status IN ?", id, from).
		Select(cols).
		Updates(&rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.WithContext(ctx).Model(&domain.Research{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

// UpdateResearchNotes replaces the notes of a record owned by userID.
func UpdateResearchNotes(ctx context.Context, db *gorm.DB, id, userID, notes string) error {
	res := db.WithContext(ctx).
		Model(&domain.Research{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("notes", notes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// HasActiveResearch reports whether userID already has a run of mode in
// the processing state.
func HasActiveResearch(ctx context.Context, db *gorm.DB, userID string, mode domain.Mode) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Research{}).
		Where("user_id = ? AND mode = ? AND status = ?", userID, mode, domain.StatusProcessing).
		Count(&n).Error
	return n > 0, err
}

// SweepStaleResearch fails every processing record last touched before
// cutoff and returns how many rows were swept.
func SweepStaleResearch(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Research{}).
		Where("status = ? AND updated_at < ?", domain.StatusProcessing, cutoff).
		Updates(map[string]any{
			"status":     domain.StatusFailed,
			"error":      "timed out",
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// allowedFrom lists the statuses from which next may be entered.
func allowedFrom(next domain.Status) []domain.Status {
	var out []domain.Status
	for _, s := range []domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed} {
		if s.CanTransition(next) {
			out = append(out, s)
		}
	}
	return out
}

func clipBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
