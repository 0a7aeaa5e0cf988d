// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the daily usage ledger used for quota
// admission.
//
// Admission is a three-step sequence that stays correct under concurrency
// without explicit locks:
//
//  1. EnsureUsage inserts the identity's row if absent (ON CONFLICT DO NOTHING).
//  2. ResetUsageIfStale zeroes the counters when the stored day is not today.
//  3. TryConsumeUsage performs a single conditional increment
//     (WHERE used < limit); exactly one affected row means admitted.
//
// ReleaseUsage undoes a reservation and never drives a counter below zero.
package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

// ErrUnknownMode is returned for a mode without a ledger column.
var ErrUnknownMode = errors.New("unknown usage mode")

func usageColumn(mode domain.Mode) (string, error) {
	switch mode {
	case domain.ModeFast:
		return "fast_used", nil
	case domain.ModeDeep:
		return "deep_used", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// EnsureUsage creates the ledger row for identity on day when none exists.
func EnsureUsage(ctx context.Context, db *gorm.DB, identity, day string) error {
	row := &domain.UsageCounter{Identity: identity, Day: day}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row).Error
}

// ResetUsageIfStale zeroes identity's counters when the stored day is older
// than day. Days are YYYY-MM-DD, so the row's date only ever moves forward.
func ResetUsageIfStale(ctx context.Context, db *gorm.DB, identity, day string) error {
	return db.WithContext(ctx).
		Model(&domain.UsageCounter{}).
		Where("identity = ? AND day < ?", identity, day).
		Updates(map[string]any{"day": day, "fast_used": 0, "deep_used": 0}).Error
}

// TryConsumeUsage atomically increments the counter for mode when it is
// below limit. It reports whether the increment happened.
func TryConsumeUsage(ctx context.Context, db *gorm.DB, identity, day string, mode domain.Mode, limit int) (bool, error) {
	col, err := usageColumn(mode)
	if err != nil {
		return false, err
	}
	res := db.WithContext(ctx).
		Model(&domain.UsageCounter{}).
		Where("identity = ? AND day = ? AND "+col+" < ?", identity, day, limit).
		Update(col, gorm.Expr(col+" + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseUsage decrements the counter for mode, flooring at zero. A release
// against a row already rolled over to another day is a no-op.
func ReleaseUsage(ctx context.Context, db *gorm.DB, identity, day string, mode domain.Mode) error {
	col, err := usageColumn(mode)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&domain.UsageCounter{}).
		Where("identity = ? AND day = ? AND "+col+" > 0", identity, day).
		Update(col, gorm.Expr(col+" - 1")).Error
}

// GetUsage returns identity's counters for day. A missing row or one from a
// previous day reads as zero usage.
func GetUsage(ctx context.Context, db *gorm.DB, identity, day string) (domain.UsageCounter, error) {
	var row domain.UsageCounter
	err := db.WithContext(ctx).Where("identity = ?", identity).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.UsageCounter{Identity: identity, Day: day}, nil
	}
	if err != nil {
		return domain.UsageCounter{}, err
	}
	if row.Day != day {
		return domain.UsageCounter{Identity: identity, Day: day}, nil
	}
	return row, nil
}
